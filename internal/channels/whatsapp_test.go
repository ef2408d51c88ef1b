package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapi-bot/okapi/internal/bus"
)

func TestWhatsApp_DefaultBridgeURL(t *testing.T) {
	ch := NewWhatsAppChannel("", "", nil, bus.NewMessageBus(), nil)
	assert.Equal(t, "ws://localhost:3001", ch.BridgeURL)
}

func TestWhatsApp_MessageFramePublishes(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewWhatsAppChannel("ws://bridge", "", nil, msgBus, nil)

	ch.processBridgeFrame(`{"type":"message","sender":"15551234567@s.whatsapp.net","content":"hello","id":"m1","isGroup":false}`)

	msg := popInbound(t, msgBus)
	assert.Equal(t, "whatsapp", msg.Channel)
	assert.Equal(t, "15551234567", msg.SenderID)
	assert.Equal(t, "15551234567@s.whatsapp.net", msg.ChatID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "m1", msg.Metadata["message_id"])
	assert.Equal(t, false, msg.Metadata["is_group"])
}

func TestWhatsApp_MessageFramePrefersPhoneNumber(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewWhatsAppChannel("ws://bridge", "", nil, msgBus, nil)

	ch.processBridgeFrame(`{"type":"message","sender":"abc123@lid","pn":"15551234567@s.whatsapp.net","content":"hi"}`)

	msg := popInbound(t, msgBus)
	assert.Equal(t, "15551234567", msg.SenderID)
	assert.Equal(t, "abc123@lid", msg.ChatID)
}

func TestWhatsApp_StatusFrameTracksConnection(t *testing.T) {
	ch := NewWhatsAppChannel("ws://bridge", "", nil, bus.NewMessageBus(), nil)

	ch.processBridgeFrame(`{"type":"status","status":"connected"}`)
	ch.mu.Lock()
	connected := ch.connected
	ch.mu.Unlock()
	assert.True(t, connected)

	ch.processBridgeFrame(`{"type":"status","status":"disconnected"}`)
	ch.mu.Lock()
	connected = ch.connected
	ch.mu.Unlock()
	assert.False(t, connected)
}

func TestWhatsApp_MalformedFrameIgnored(t *testing.T) {
	msgBus := bus.NewMessageBus()
	ch := NewWhatsAppChannel("ws://bridge", "", nil, msgBus, nil)

	ch.processBridgeFrame(`not json`)
	ch.processBridgeFrame(`{"type":"unknown"}`)
	assert.Equal(t, 0, msgBus.InboundSize())
}

func TestWhatsApp_SendWithoutConnection(t *testing.T) {
	ch := NewWhatsAppChannel("ws://bridge", "", nil, bus.NewMessageBus(), nil)
	err := ch.Send(bus.OutboundMessage{Channel: "whatsapp", ChatID: "x", Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected")
}
