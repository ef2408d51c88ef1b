package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/providers"
)

func newTestSubagents(t *testing.T, mp *mockProvider, msgBus *bus.MessageBus) *SubagentManager {
	t.Helper()
	return NewSubagentManager(mp, t.TempDir(), msgBus, SubagentOptions{Model: "mock-model"})
}

func waitInbound(t *testing.T, msgBus *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	msg, err := msgBus.ConsumeInbound(ctx)
	require.NoError(t, err)
	return msg
}

func TestSubagent_SpawnReturnsAck(t *testing.T) {
	msgBus := bus.NewMessageBus()
	mp := &mockProvider{responses: []*providers.LLMResponse{
		{Content: strP("result"), FinishReason: "stop"},
	}}
	sm := newTestSubagents(t, mp, msgBus)

	ack := sm.Spawn(context.Background(), "research something", "research", "telegram", "42")
	assert.Contains(t, ack, "research")
	assert.Contains(t, ack, "started")

	// Drain the completion announcement
	waitInbound(t, msgBus)
}

func TestSubagent_AnnouncesOnSystemChannel(t *testing.T) {
	msgBus := bus.NewMessageBus()
	mp := &mockProvider{responses: []*providers.LLMResponse{
		{Content: strP("findings: 42"), FinishReason: "stop"},
	}}
	sm := newTestSubagents(t, mp, msgBus)

	sm.Spawn(context.Background(), "count things", "", "telegram", "42")

	msg := waitInbound(t, msgBus)
	assert.Equal(t, "system", msg.Channel)
	assert.Equal(t, "subagent", msg.SenderID)
	// ChatID encodes the origin so the main loop can route the summary
	assert.Equal(t, "telegram:42", msg.ChatID)
	assert.Contains(t, msg.Content, "findings: 42")
	assert.Contains(t, msg.Content, "completed")
}

func TestSubagent_DefaultLabelFromTask(t *testing.T) {
	msgBus := bus.NewMessageBus()
	mp := &mockProvider{responses: []*providers.LLMResponse{
		{Content: strP("ok"), FinishReason: "stop"},
	}}
	sm := newTestSubagents(t, mp, msgBus)

	long := "this task description is definitely longer than thirty characters"
	ack := sm.Spawn(context.Background(), long, "", "cli", "direct")
	assert.Contains(t, ack, long[:30]+"...")
	waitInbound(t, msgBus)
}

func TestSubagent_RestrictedToolSet(t *testing.T) {
	sm := newTestSubagents(t, &mockProvider{}, bus.NewMessageBus())
	registry := sm.buildRegistry()

	for _, name := range []string{"read_file", "write_file", "edit_file", "list_dir", "exec", "web_search", "web_fetch"} {
		assert.NotNil(t, registry.Get(name), "missing tool %s", name)
	}
	// No user messaging, no recursion, no scheduling
	assert.Nil(t, registry.Get("message"))
	assert.Nil(t, registry.Get("spawn"))
	assert.Nil(t, registry.Get("cron"))
}

func TestSubagent_RunsToolCalls(t *testing.T) {
	msgBus := bus.NewMessageBus()
	dir := t.TempDir()
	mp := &mockProvider{responses: []*providers.LLMResponse{
		{
			FinishReason: "tool_calls",
			ToolCalls: []providers.ToolCallRequest{
				{ID: "c1", Name: "list_dir", Arguments: map[string]any{"path": dir}},
			},
		},
		{Content: strP("listed"), FinishReason: "stop"},
	}}
	sm := NewSubagentManager(mp, dir, msgBus, SubagentOptions{Model: "mock-model"})

	sm.Spawn(context.Background(), "list the workspace", "", "cli", "direct")
	msg := waitInbound(t, msgBus)
	assert.Contains(t, msg.Content, "listed")
}

func TestSubagent_IterationCap(t *testing.T) {
	msgBus := bus.NewMessageBus()
	mp := &mockProvider{responses: make([]*providers.LLMResponse, 50)}
	for i := range mp.responses {
		mp.responses[i] = &providers.LLMResponse{
			FinishReason: "tool_calls",
			ToolCalls:    []providers.ToolCallRequest{{ID: "c", Name: "web_fetch", Arguments: map[string]any{"url": "http://127.0.0.1:1"}}},
		}
	}
	sm := NewSubagentManager(mp, t.TempDir(), msgBus, SubagentOptions{Model: "mock-model", MaxIterations: 2})

	sm.Spawn(context.Background(), "loop forever", "", "cli", "direct")
	msg := waitInbound(t, msgBus)
	assert.Contains(t, msg.Content, "no response was generated")
	assert.Equal(t, 2, mp.calls())
}

func TestSubagent_ConcurrentSpawns(t *testing.T) {
	msgBus := bus.NewMessageBus()
	mp := &mockProvider{} // always answers "No more responses"
	sm := newTestSubagents(t, mp, msgBus)

	sm.Spawn(context.Background(), "task one", "a", "telegram", "1")
	sm.Spawn(context.Background(), "task two", "b", "telegram", "2")

	targets := map[string]bool{}
	for i := 0; i < 2; i++ {
		msg := waitInbound(t, msgBus)
		targets[msg.ChatID] = true
	}
	assert.True(t, targets["telegram:1"])
	assert.True(t, targets["telegram:2"])

	require.Eventually(t, func() bool { return sm.RunningCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
