// Package heartbeat gives the assistant a periodic pulse. On each tick
// inside active hours it feeds the workspace HEARTBEAT.md checklist
// through an agent turn, and delivers the reply to a configured channel
// unless the agent reports there is nothing to do.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/config"
	"github.com/okapi-bot/okapi/internal/statecache"
)

// okToken is the reply that signals a tick with nothing to deliver.
const okToken = "HEARTBEAT_OK"

const sessionKey = "heartbeat:main"

// Runner runs a single agent turn for a heartbeat tick.
type Runner interface {
	ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error)
}

// Heartbeat triggers proactive agent turns on a timer.
type Heartbeat struct {
	cfg       config.HeartbeatConfig
	workspace string
	runner    Runner
	bus       *bus.MessageBus
	cache     *statecache.Cache
	logger    *slog.Logger

	// Channel and ChatID name where proactive messages go. Empty means
	// replies are logged but not delivered.
	Channel string
	ChatID  string

	cancel context.CancelFunc
}

// New creates a heartbeat service.
func New(cfg config.HeartbeatConfig, workspace string, runner Runner, msgBus *bus.MessageBus, cache *statecache.Cache, logger *slog.Logger) *Heartbeat {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeat{
		cfg:       cfg,
		workspace: workspace,
		runner:    runner,
		bus:       msgBus,
		cache:     cache,
		logger:    logger.With("component", "heartbeat"),
	}
}

// Start begins the tick loop in a background goroutine. No-op when
// disabled.
func (h *Heartbeat) Start(ctx context.Context) {
	if !h.cfg.Enabled {
		h.logger.Info("heartbeat disabled")
		return
	}

	ctx, h.cancel = context.WithCancel(ctx)

	interval := time.Duration(h.cfg.IntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 30 * time.Minute
	}

	h.logger.Info("heartbeat started",
		"interval", interval.String(),
		"active_hours", fmt.Sprintf("%02d:00-%02d:00", h.cfg.ActiveHourStart, h.cfg.ActiveHourEnd),
	)
	go h.loop(ctx, interval)
}

// Stop shuts the heartbeat down.
func (h *Heartbeat) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

func (h *Heartbeat) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("heartbeat stopped")
			return
		case <-ticker.C:
			h.Tick(ctx)
		}
	}
}

// Tick performs one heartbeat check.
func (h *Heartbeat) Tick(ctx context.Context) {
	now := time.Now()
	if !h.inActiveHours(now.Hour()) {
		return
	}

	prompt, ok := h.buildPrompt(now)
	if !ok {
		// No HEARTBEAT.md, nothing to check
		return
	}

	turnCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	reply, err := h.runner.ProcessDirect(turnCtx, prompt, sessionKey, "heartbeat", "main")
	if err != nil {
		h.logger.Error("heartbeat turn failed", "error", err)
		return
	}

	if h.cache != nil {
		h.cache.MarkHeartbeat(ctx, now)
	}

	trimmed := strings.TrimSpace(reply)
	if trimmed == "" || strings.EqualFold(trimmed, okToken) || strings.Contains(trimmed, okToken) {
		h.logger.Debug("heartbeat: nothing to deliver")
		return
	}

	if h.Channel == "" || h.ChatID == "" {
		h.logger.Info("heartbeat reply with no delivery target", "reply_len", len(trimmed))
		return
	}
	h.bus.PublishOutbound(bus.OutboundMessage{
		Channel: h.Channel,
		ChatID:  h.ChatID,
		Content: trimmed,
	})
	h.logger.Info("heartbeat delivered proactive message", "channel", h.Channel)
}

func (h *Heartbeat) inActiveHours(hour int) bool {
	return hour >= h.cfg.ActiveHourStart && hour < h.cfg.ActiveHourEnd
}

// buildPrompt reads the workspace checklist. Returns false when the
// file is missing or empty, which skips the tick entirely.
func (h *Heartbeat) buildPrompt(now time.Time) (string, bool) {
	content, err := os.ReadFile(filepath.Join(h.workspace, "HEARTBEAT.md"))
	if err != nil || len(strings.TrimSpace(string(content))) == 0 {
		return "", false
	}
	prompt := fmt.Sprintf("[HEARTBEAT at %s]\n\n%s\n\nIf there is nothing to do, respond with %s.",
		now.Format("2006-01-02 15:04"), strings.TrimSpace(string(content)), okToken)
	return prompt, true
}
