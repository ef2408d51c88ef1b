package channels

import (
	"context"
	"testing"

	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapi-bot/okapi/internal/bus"
)

func TestSlack_MessageEventPublishes(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewSlackChannel("xoxb-test", "xapp-test", nil, msgBus, nil)
	ch.BotUserID = "UBOT"

	ch.handleMessageEvent(&slackevents.MessageEvent{
		User:        "U123",
		Channel:     "C456",
		Text:        "hello",
		TimeStamp:   "1700000000.000100",
		ChannelType: "im",
	})

	msg := popInbound(t, msgBus)
	assert.Equal(t, "slack", msg.Channel)
	assert.Equal(t, "U123", msg.SenderID)
	assert.Equal(t, "C456", msg.ChatID)
	assert.Equal(t, "hello", msg.Content)
	slackMeta, ok := msg.Metadata["slack"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "1700000000.000100", slackMeta["thread_ts"])
	assert.Equal(t, "im", slackMeta["channel_type"])
}

func TestSlack_MessageEventKeepsExistingThread(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewSlackChannel("xoxb-test", "xapp-test", nil, msgBus, nil)

	ch.handleMessageEvent(&slackevents.MessageEvent{
		User:            "U123",
		Channel:         "C456",
		Text:            "in thread",
		TimeStamp:       "1700000000.000200",
		ThreadTimeStamp: "1700000000.000100",
	})

	msg := popInbound(t, msgBus)
	slackMeta := msg.Metadata["slack"].(map[string]any)
	assert.Equal(t, "1700000000.000100", slackMeta["thread_ts"])
}

func TestSlack_IgnoresBotAndOwnMessages(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewSlackChannel("xoxb-test", "xapp-test", nil, msgBus, nil)
	ch.BotUserID = "UBOT"

	ch.handleMessageEvent(&slackevents.MessageEvent{User: "U1", Channel: "C1", Text: "x", BotID: "B99"})
	ch.handleMessageEvent(&slackevents.MessageEvent{User: "UBOT", Channel: "C1", Text: "x"})
	ch.handleMessageEvent(&slackevents.MessageEvent{User: "U1", Channel: "C1", Text: "x", SubType: "bot_message"})
	// Mentions are handled by the app_mention path
	ch.handleMessageEvent(&slackevents.MessageEvent{User: "U1", Channel: "C1", Text: "<@UBOT> hi"})

	assert.Equal(t, 0, msgBus.InboundSize())
}

func TestSlack_MentionStripsBotTag(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewSlackChannel("xoxb-test", "xapp-test", nil, msgBus, nil)
	ch.BotUserID = "UBOT"

	ch.handleMentionEvent(&slackevents.AppMentionEvent{
		User:      "U123",
		Channel:   "C456",
		Text:      "<@UBOT> what's up",
		TimeStamp: "1700000000.000300",
	})

	msg := popInbound(t, msgBus)
	assert.Equal(t, "what's up", msg.Content)
	slackMeta := msg.Metadata["slack"].(map[string]any)
	assert.Equal(t, "channel", slackMeta["channel_type"])
}

func TestSlack_MentionWithOnlyTagDropped(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewSlackChannel("xoxb-test", "xapp-test", nil, msgBus, nil)
	ch.BotUserID = "UBOT"

	ch.handleMentionEvent(&slackevents.AppMentionEvent{User: "U1", Channel: "C1", Text: "<@UBOT>"})
	assert.Equal(t, 0, msgBus.InboundSize())
}

func TestSlack_AllowListFilters(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewSlackChannel("xoxb-test", "xapp-test", []string{"U123"}, msgBus, nil)

	ch.handleMessageEvent(&slackevents.MessageEvent{User: "U999", Channel: "C1", Text: "nope", TimeStamp: "1.0"})
	assert.Equal(t, 0, msgBus.InboundSize())

	ch.handleMessageEvent(&slackevents.MessageEvent{User: "U123", Channel: "C1", Text: "yes", TimeStamp: "1.0"})
	assert.Equal(t, 1, msgBus.InboundSize())
}

func TestSlack_StartWithoutTokens(t *testing.T) {
	ch := NewSlackChannel("", "", nil, bus.NewMessageBus(), nil)
	err := ch.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestSlack_SendWithoutConnection(t *testing.T) {
	ch := NewSlackChannel("xoxb-test", "xapp-test", nil, bus.NewMessageBus(), nil)
	err := ch.Send(bus.OutboundMessage{Channel: "slack", ChatID: "C1", Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
