package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/okapi-bot/okapi/internal/bus"
)

// SlackChannel implements the Slack channel over Socket Mode.
type SlackChannel struct {
	BaseChannel
	BotToken  string
	AppToken  string
	BotUserID string

	api      *slack.Client
	sock     *socketmode.Client
	logger   *slog.Logger
	cancelFn context.CancelFunc
}

// NewSlackChannel creates a SlackChannel.
func NewSlackChannel(botToken, appToken string, allowFrom []string, msgBus *bus.MessageBus, logger *slog.Logger) *SlackChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlackChannel{
		BaseChannel: BaseChannel{
			ChannelName: "slack",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		BotToken: botToken,
		AppToken: appToken,
		logger:   logger,
	}
}

func (s *SlackChannel) Name() string    { return "slack" }
func (s *SlackChannel) IsRunning() bool { return s.Running }

// Start connects via Socket Mode and pumps events until ctx is cancelled.
func (s *SlackChannel) Start(ctx context.Context) error {
	if s.BotToken == "" || s.AppToken == "" {
		return fmt.Errorf("slack bot/app token not configured")
	}
	s.Running = true
	ctx, s.cancelFn = context.WithCancel(ctx)

	s.api = slack.New(s.BotToken, slack.OptionAppLevelToken(s.AppToken))

	auth, err := s.api.AuthTestContext(ctx)
	if err != nil {
		s.Running = false
		return fmt.Errorf("slack auth.test: %w", err)
	}
	s.BotUserID = auth.UserID
	s.logger.Info("slack connected", "bot_user", auth.User)

	s.sock = socketmode.New(s.api)
	go s.pumpEvents(ctx)

	err = s.sock.RunContext(ctx)
	s.Running = false
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (s *SlackChannel) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-s.sock.Events:
			if !ok {
				return
			}
			if evt.Type != socketmode.EventTypeEventsAPI {
				continue
			}
			if evt.Request != nil {
				s.sock.Ack(*evt.Request)
			}
			ev, ok := evt.Data.(slackevents.EventsAPIEvent)
			if !ok || ev.Type != slackevents.CallbackEvent {
				continue
			}
			switch in := ev.InnerEvent.Data.(type) {
			case *slackevents.MessageEvent:
				s.handleMessageEvent(in)
			case *slackevents.AppMentionEvent:
				s.handleMentionEvent(in)
			}
		}
	}
}

func (s *SlackChannel) handleMessageEvent(ev *slackevents.MessageEvent) {
	if ev == nil || ev.User == "" || ev.Channel == "" {
		return
	}
	// Ignore our own and other bots' traffic
	if ev.BotID != "" || ev.SubType == "bot_message" || ev.User == s.BotUserID {
		return
	}
	// Mentions arrive again as AppMentionEvent; handle them there
	if s.BotUserID != "" && strings.Contains(ev.Text, "<@"+s.BotUserID+">") {
		return
	}
	if ev.Text == "" {
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	s.HandleMessage(ev.User, ev.Channel, ev.Text, nil, map[string]any{
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": ev.ChannelType,
		},
	})
}

func (s *SlackChannel) handleMentionEvent(ev *slackevents.AppMentionEvent) {
	if ev == nil || ev.User == "" || ev.Channel == "" || ev.User == s.BotUserID {
		return
	}
	text := s.stripBotMention(ev.Text)
	if text == "" {
		return
	}

	threadTS := ev.ThreadTimeStamp
	if threadTS == "" {
		threadTS = ev.TimeStamp
	}
	s.HandleMessage(ev.User, ev.Channel, text, nil, map[string]any{
		"slack": map[string]any{
			"thread_ts":    threadTS,
			"channel_type": "channel",
		},
	})
}

func (s *SlackChannel) stripBotMention(text string) string {
	if text == "" || s.BotUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+s.BotUserID+">", ""))
}

// Stop stops the Slack channel.
func (s *SlackChannel) Stop() error {
	s.Running = false
	if s.cancelFn != nil {
		s.cancelFn()
	}
	return nil
}

// Send posts a plain-text message, threading the reply when the inbound
// metadata carried a thread in a non-DM conversation.
func (s *SlackChannel) Send(msg bus.OutboundMessage) error {
	if s.api == nil {
		return fmt.Errorf("slack not connected")
	}

	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if slackMeta, ok := msg.Metadata["slack"].(map[string]any); ok {
		threadTS, _ := slackMeta["thread_ts"].(string)
		channelType, _ := slackMeta["channel_type"].(string)
		if threadTS != "" && channelType != "im" {
			opts = append(opts, slack.MsgOptionTS(threadTS))
		}
	}

	_, _, err := s.api.PostMessage(msg.ChatID, opts...)
	return err
}
