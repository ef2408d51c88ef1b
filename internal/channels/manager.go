package channels

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/okapi-bot/okapi/internal/bus"
)

// Manager owns all channel instances and routes outbound messages from
// the bus to the right adapter.
type Manager struct {
	Bus      *bus.MessageBus
	logger   *slog.Logger
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewManager creates a channel manager.
func NewManager(msgBus *bus.MessageBus, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		Bus:      msgBus,
		logger:   logger,
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the manager.
func (m *Manager) Register(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// Get returns a channel by name, nil when unknown.
func (m *Manager) Get(name string) Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.channels[name]
}

// EnabledChannels returns the sorted list of registered channel names.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll subscribes every channel to its outbound messages, starts the
// dispatcher, and runs all channels until ctx is cancelled.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	channels := make(map[string]Channel, len(m.channels))
	for name, ch := range m.channels {
		channels[name] = ch
	}
	m.mu.RUnlock()

	if len(channels) == 0 {
		m.logger.Warn("no channels enabled")
		return nil
	}

	for name, ch := range channels {
		name, ch := name, ch
		m.Bus.Subscribe(name, func(msg bus.OutboundMessage) {
			if err := ch.Send(msg); err != nil {
				m.logger.Error("send failed", "channel", name, "chat_id", msg.ChatID, "error", err)
			}
		})
	}

	go m.Bus.DispatchOutbound(ctx)

	var wg sync.WaitGroup
	for name, ch := range channels {
		wg.Add(1)
		go func(n string, c Channel) {
			defer wg.Done()
			m.logger.Info("starting channel", "channel", n)
			if err := c.Start(ctx); err != nil {
				m.logger.Error("channel stopped with error", "channel", n, "error", err)
			}
		}(name, ch)
	}

	wg.Wait()
	return nil
}

// StopAll stops all channels.
func (m *Manager) StopAll() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, ch := range m.channels {
		if err := ch.Stop(); err != nil {
			m.logger.Error("stop failed", "channel", name, "error", err)
		}
	}
}

// GetStatus returns the running status of all channels.
func (m *Manager) GetStatus() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		status[name] = ch.IsRunning()
	}
	return status
}
