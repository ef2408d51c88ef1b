package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/okapi-bot/okapi/internal/bus"
)

// TelegramChannel implements the Telegram bot channel using long polling.
type TelegramChannel struct {
	BaseChannel
	Token    string
	botUser  string
	apiBase  string
	client   *http.Client
	logger   *slog.Logger
	cancelFn context.CancelFunc
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(token string, allowFrom []string, msgBus *bus.MessageBus, logger *slog.Logger) *TelegramChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &TelegramChannel{
		BaseChannel: BaseChannel{
			ChannelName: "telegram",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		Token:   token,
		apiBase: "https://api.telegram.org",
		logger:  logger,
		// Long-poll timeout is 30s server side; leave headroom
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *TelegramChannel) Name() string    { return "telegram" }
func (t *TelegramChannel) IsRunning() bool { return t.Running }

// Start begins long polling for Telegram updates.
func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.Token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	ctx, t.cancelFn = context.WithCancel(ctx)

	info, err := t.apiCall("getMe", nil)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if result, ok := info["result"].(map[string]any); ok {
		if username, ok := result["username"].(string); ok {
			t.botUser = username
			t.logger.Info("telegram connected", "bot", "@"+username)
		}
	}
	// Running only once the bot is authenticated and polling
	t.Running = true

	offset := 0
	for {
		select {
		case <-ctx.Done():
			t.Running = false
			return nil
		default:
		}

		updates, err := t.apiCall("getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         30,
			"allowed_updates": []string{"message"},
		})
		if err != nil {
			t.logger.Warn("telegram getUpdates failed", "error", err)
			time.Sleep(5 * time.Second)
			continue
		}

		results, _ := updates["result"].([]any)
		for _, u := range results {
			update, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if uid, ok := update["update_id"].(float64); ok {
				offset = int(uid) + 1
			}
			t.processUpdate(update)
		}
	}
}

// Stop stops the Telegram bot.
func (t *TelegramChannel) Stop() error {
	t.Running = false
	if t.cancelFn != nil {
		t.cancelFn()
	}
	return nil
}

// Send sends a plain-text message via Telegram.
func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	_, err := t.apiCall("sendMessage", map[string]any{
		"chat_id": msg.ChatID,
		"text":    msg.Content,
	})
	return err
}

func (t *TelegramChannel) processUpdate(update map[string]any) {
	msg, ok := update["message"].(map[string]any)
	if !ok {
		return
	}
	from, _ := msg["from"].(map[string]any)
	chat, _ := msg["chat"].(map[string]any)
	if from == nil || chat == nil {
		return
	}

	// Sender ID is "id|username" when a username exists, so allow-lists
	// can name either
	userID := fmt.Sprintf("%.0f", from["id"])
	if username, ok := from["username"].(string); ok && username != "" {
		userID = fmt.Sprintf("%s|%s", userID, username)
	}
	chatID := fmt.Sprintf("%.0f", chat["id"])

	text, _ := msg["text"].(string)
	caption, _ := msg["caption"].(string)
	if text == "" && caption != "" {
		text = caption
	}
	if text == "" {
		text = "[empty message]"
	}

	t.HandleMessage(userID, chatID, text, nil, map[string]any{
		"message_id": msg["message_id"],
	})
}

func (t *TelegramChannel) apiCall(method string, params map[string]any) (map[string]any, error) {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.Token, method)
	body, _ := json.Marshal(params)
	req, _ := http.NewRequest(http.MethodPost, url, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	if ok, _ := result["ok"].(bool); !ok {
		desc, _ := result["description"].(string)
		if desc == "" {
			desc = resp.Status
		}
		return result, fmt.Errorf("telegram api %s: %s", method, desc)
	}
	return result, nil
}
