// Package channels defines the Channel interface for chat platform
// integrations and the shared adapter plumbing.
package channels

import (
	"context"
	"strings"
	"time"

	"github.com/okapi-bot/okapi/internal/bus"
)

// Channel is the interface all chat platform integrations implement.
type Channel interface {
	// Name returns the channel identifier (e.g. "telegram", "slack").
	Name() string

	// Start connects to the platform and begins listening. Blocks until
	// ctx is cancelled.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop() error

	// Send delivers an outbound message through this channel.
	Send(msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is active.
	IsRunning() bool
}

// BaseChannel provides shared logic for all channel implementations.
type BaseChannel struct {
	ChannelName string
	Bus         *bus.MessageBus
	AllowFrom   []string
	Running     bool
}

// IsAllowed checks if a sender may interact with the bot. An empty
// allow-list admits everyone. Sender IDs and allow entries may both be
// "id|username" compounds; any side matching any side admits.
func (b *BaseChannel) IsAllowed(senderID string) bool {
	if len(b.AllowFrom) == 0 {
		return true
	}

	senderParts := splitCompound(senderID)
	for _, allowed := range b.AllowFrom {
		for _, ap := range splitCompound(allowed) {
			for _, sp := range senderParts {
				if ap == sp {
					return true
				}
			}
		}
	}
	return false
}

func splitCompound(id string) []string {
	parts := []string{id}
	if strings.Contains(id, "|") {
		for _, p := range strings.Split(id, "|") {
			if p != "" {
				parts = append(parts, p)
			}
		}
	}
	return parts
}

// HandleMessage checks permissions and publishes to the bus. Disallowed
// senders are dropped silently.
func (b *BaseChannel) HandleMessage(senderID, chatID, content string, media []string, metadata map[string]any) {
	if !b.IsAllowed(senderID) {
		return
	}
	b.Bus.PublishInbound(bus.InboundMessage{
		Channel:   b.ChannelName,
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   content,
		Timestamp: time.Now(),
		Media:     media,
		Metadata:  metadata,
	})
}
