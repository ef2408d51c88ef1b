package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageTool_Contract(t *testing.T) {
	RunToolContractTests(t, &MessageTool{})
	RunToolContractTests(t, &SpawnTool{})
	RunToolContractTests(t, &CronTool{})
}

func TestMessageTool_UsesContextDefaults(t *testing.T) {
	var sent []bus.OutboundMessage
	tool := &MessageTool{
		SendCallback: func(msg bus.OutboundMessage) error {
			sent = append(sent, msg)
			return nil
		},
	}
	tool.SetContext("telegram", "123")

	result, err := tool.Execute(context.Background(), map[string]any{"content": "hi"})
	require.NoError(t, err)
	assert.Contains(t, result, "telegram:123")
	require.Len(t, sent, 1)
	assert.Equal(t, "telegram", sent[0].Channel)
	assert.Equal(t, "123", sent[0].ChatID)
	assert.Equal(t, "hi", sent[0].Content)
}

func TestMessageTool_ExplicitTargetWins(t *testing.T) {
	var sent []bus.OutboundMessage
	tool := &MessageTool{
		SendCallback: func(msg bus.OutboundMessage) error {
			sent = append(sent, msg)
			return nil
		},
	}
	tool.SetContext("telegram", "123")

	_, err := tool.Execute(context.Background(), map[string]any{
		"content": "hi",
		"channel": "slack",
		"chat_id": "C9",
	})
	require.NoError(t, err)
	require.Len(t, sent, 1)
	assert.Equal(t, "slack", sent[0].Channel)
	assert.Equal(t, "C9", sent[0].ChatID)
}

func TestMessageTool_NoTarget(t *testing.T) {
	tool := &MessageTool{SendCallback: func(bus.OutboundMessage) error { return nil }}
	result, err := tool.Execute(context.Background(), map[string]any{"content": "hi"})
	require.NoError(t, err)
	assert.Contains(t, result, "no target")
}

func TestMessageTool_SendFailure(t *testing.T) {
	tool := &MessageTool{
		SendCallback: func(bus.OutboundMessage) error { return errors.New("offline") },
	}
	tool.SetContext("telegram", "1")
	result, err := tool.Execute(context.Background(), map[string]any{"content": "hi"})
	require.NoError(t, err)
	assert.Contains(t, result, "offline")
}

func TestSpawnTool_PassesOrigin(t *testing.T) {
	var gotTask, gotLabel, gotChannel, gotChatID string
	tool := &SpawnTool{
		SpawnCallback: func(task, label, channel, chatID string) (string, error) {
			gotTask, gotLabel, gotChannel, gotChatID = task, label, channel, chatID
			return "spawned", nil
		},
	}
	tool.SetContext("whatsapp", "555")

	result, err := tool.Execute(context.Background(), map[string]any{
		"task":  "research",
		"label": "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, "spawned", result)
	assert.Equal(t, "research", gotTask)
	assert.Equal(t, "r1", gotLabel)
	assert.Equal(t, "whatsapp", gotChannel)
	assert.Equal(t, "555", gotChatID)
}

func TestSpawnTool_NotConfigured(t *testing.T) {
	tool := &SpawnTool{}
	result, err := tool.Execute(context.Background(), map[string]any{"task": "x"})
	require.NoError(t, err)
	assert.Contains(t, result, "not configured")
}

type fakeCron struct {
	added   []string
	removed []string
}

func (f *fakeCron) AddJob(name, message, channel, chatID string, everySeconds int, cronExpr, at string) (string, error) {
	f.added = append(f.added, name)
	return "added " + name, nil
}
func (f *fakeCron) ListJobs() (string, error) { return "2 jobs", nil }
func (f *fakeCron) RemoveJob(jobID string) (string, error) {
	f.removed = append(f.removed, jobID)
	return "removed " + jobID, nil
}

func TestCronTool_Actions(t *testing.T) {
	fc := &fakeCron{}
	tool := &CronTool{Cron: fc}
	tool.SetContext("telegram", "1")

	add, err := tool.Execute(context.Background(), map[string]any{
		"action":        "add",
		"message":       "stand up",
		"every_seconds": 60.0,
	})
	require.NoError(t, err)
	assert.Contains(t, add, "added")

	list, err := tool.Execute(context.Background(), map[string]any{"action": "list"})
	require.NoError(t, err)
	assert.Equal(t, "2 jobs", list)

	remove, err := tool.Execute(context.Background(), map[string]any{
		"action": "remove",
		"job_id": "j1",
	})
	require.NoError(t, err)
	assert.Contains(t, remove, "removed j1")
	assert.Equal(t, []string{"j1"}, fc.removed)
}

func TestCronTool_AddWithoutContext(t *testing.T) {
	tool := &CronTool{Cron: &fakeCron{}}
	result, err := tool.Execute(context.Background(), map[string]any{
		"action":  "add",
		"message": "x",
	})
	require.NoError(t, err)
	assert.Contains(t, result, "no session context")
}
