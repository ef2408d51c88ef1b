package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okapi-bot/okapi/internal/bus"
)

// WhatsAppChannel connects to a WhatsApp bridge process over WebSocket.
// The bridge handles the WhatsApp protocol; this side speaks a small
// JSON frame protocol: auth, message, send, status, qr, error.
type WhatsAppChannel struct {
	BaseChannel
	BridgeURL   string
	BridgeToken string

	logger   *slog.Logger
	cancelFn context.CancelFunc

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
}

// NewWhatsAppChannel creates a WhatsAppChannel.
func NewWhatsAppChannel(bridgeURL, bridgeToken string, allowFrom []string, msgBus *bus.MessageBus, logger *slog.Logger) *WhatsAppChannel {
	if bridgeURL == "" {
		bridgeURL = "ws://localhost:3001"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WhatsAppChannel{
		BaseChannel: BaseChannel{
			ChannelName: "whatsapp",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		BridgeURL:   bridgeURL,
		BridgeToken: bridgeToken,
		logger:      logger,
	}
}

func (w *WhatsAppChannel) Name() string    { return "whatsapp" }
func (w *WhatsAppChannel) IsRunning() bool { return w.Running }

// Start dials the bridge and reads frames until ctx is cancelled,
// reconnecting with backoff on failure.
func (w *WhatsAppChannel) Start(ctx context.Context) error {
	w.Running = true
	ctx, w.cancelFn = context.WithCancel(ctx)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			w.Running = false
			return nil
		default:
		}

		if err := w.runConnection(ctx); err != nil {
			w.logger.Warn("whatsapp bridge connection lost", "error", err, "retry_in", backoff)
		}
		w.setConn(nil)

		select {
		case <-ctx.Done():
			w.Running = false
			return nil
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (w *WhatsAppChannel) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.BridgeURL, err)
	}
	defer conn.Close()
	w.setConn(conn)

	if w.BridgeToken != "" {
		auth, _ := json.Marshal(map[string]string{"type": "auth", "token": w.BridgeToken})
		if err := w.writeFrame(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	w.logger.Info("whatsapp bridge connected", "url", w.BridgeURL)

	// Close the socket when ctx ends so ReadMessage unblocks
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		w.processBridgeFrame(string(raw))
	}
}

func (w *WhatsAppChannel) setConn(conn *websocket.Conn) {
	w.mu.Lock()
	w.conn = conn
	if conn == nil {
		w.connected = false
	}
	w.mu.Unlock()
}

func (w *WhatsAppChannel) writeFrame(payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

// Stop stops the WhatsApp channel.
func (w *WhatsAppChannel) Stop() error {
	w.Running = false
	if w.cancelFn != nil {
		w.cancelFn()
	}
	w.setConn(nil)
	return nil
}

// Send sends a message through the bridge.
func (w *WhatsAppChannel) Send(msg bus.OutboundMessage) error {
	payload, _ := json.Marshal(map[string]string{
		"type": "send",
		"to":   msg.ChatID,
		"text": msg.Content,
	})
	return w.writeFrame(payload)
}

// processBridgeFrame handles one incoming frame from the bridge.
func (w *WhatsAppChannel) processBridgeFrame(raw string) {
	var data map[string]any
	if json.Unmarshal([]byte(raw), &data) != nil {
		return
	}

	msgType, _ := data["type"].(string)
	switch msgType {
	case "message":
		sender, _ := data["sender"].(string)
		pn, _ := data["pn"].(string)
		content, _ := data["content"].(string)

		senderID := pn
		if senderID == "" {
			senderID = sender
		}
		// Strip the JID domain; allow-lists carry bare phone numbers
		if idx := strings.Index(senderID, "@"); idx > 0 {
			senderID = senderID[:idx]
		}

		w.HandleMessage(senderID, sender, content, nil, map[string]any{
			"message_id": data["id"],
			"is_group":   data["isGroup"],
		})

	case "status":
		status, _ := data["status"].(string)
		w.logger.Info("whatsapp bridge status", "status", status)
		w.mu.Lock()
		w.connected = status == "connected"
		w.mu.Unlock()

	case "qr":
		w.logger.Info("scan the QR code in the bridge terminal to connect WhatsApp")

	case "error":
		errMsg, _ := data["error"].(string)
		w.logger.Error("whatsapp bridge error", "error", errMsg)
	}
}
