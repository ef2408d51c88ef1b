package tools

import (
	"context"
	"fmt"

	"github.com/okapi-bot/okapi/internal/bus"
)

// SendFunc delivers an outbound message on behalf of the message tool.
type SendFunc func(msg bus.OutboundMessage) error

// MessageTool sends messages to users on chat channels. The agent loop
// re-points DefaultChannel/DefaultChatID at the current conversation each
// turn, so the model may omit explicit targets.
type MessageTool struct {
	SendCallback   SendFunc
	DefaultChannel string
	DefaultChatID  string
}

func (t *MessageTool) Name() string        { return "message" }
func (t *MessageTool) Description() string { return "Send a message to the user." }
func (t *MessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "The message content to send"},
			"channel": map[string]any{"type": "string", "description": "Optional: target channel"},
			"chat_id": map[string]any{"type": "string", "description": "Optional: target chat/user ID"},
		},
		"required": []string{"content"},
	}
}

// SetContext points the tool at the conversation being processed.
func (t *MessageTool) SetContext(channel, chatID string) {
	t.DefaultChannel = channel
	t.DefaultChatID = chatID
}

func (t *MessageTool) Execute(_ context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	channel, _ := args["channel"].(string)
	chatID, _ := args["chat_id"].(string)

	if channel == "" {
		channel = t.DefaultChannel
	}
	if chatID == "" {
		chatID = t.DefaultChatID
	}
	if channel == "" || chatID == "" {
		return "Error: no target channel/chat specified", nil
	}
	if t.SendCallback == nil {
		return "Error: message sending not configured", nil
	}

	if err := t.SendCallback(bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content}); err != nil {
		return fmt.Sprintf("Error sending message: %v", err), nil
	}
	return fmt.Sprintf("Message sent to %s:%s", channel, chatID), nil
}

// SpawnFunc starts a background subagent and returns its acknowledgement.
type SpawnFunc func(task, label, channel, chatID string) (string, error)

// SpawnTool hands a task to the subagent manager. Excluded from subagent
// tool sets so subagents cannot recurse.
type SpawnTool struct {
	SpawnCallback SpawnFunc
	OriginChannel string
	OriginChatID  string
}

func (t *SpawnTool) Name() string { return "spawn" }
func (t *SpawnTool) Description() string {
	return "Spawn a subagent to handle a task in the background."
}
func (t *SpawnTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task":  map[string]any{"type": "string", "description": "The task for the subagent"},
			"label": map[string]any{"type": "string", "description": "Optional short label"},
		},
		"required": []string{"task"},
	}
}

// SetContext records where the subagent's completion notice should go.
func (t *SpawnTool) SetContext(channel, chatID string) {
	t.OriginChannel = channel
	t.OriginChatID = chatID
}

func (t *SpawnTool) Execute(_ context.Context, args map[string]any) (string, error) {
	task, _ := args["task"].(string)
	label, _ := args["label"].(string)

	if t.SpawnCallback == nil {
		return "Error: subagent spawning not configured", nil
	}
	return t.SpawnCallback(task, label, t.OriginChannel, t.OriginChatID)
}

// CronCallback is what the cron tool needs from the scheduler.
type CronCallback interface {
	AddJob(name, message, channel, chatID string, everySeconds int, cronExpr string, at string) (string, error)
	ListJobs() (string, error)
	RemoveJob(jobID string) (string, error)
}

// CronTool manages scheduled reminders and recurring tasks.
type CronTool struct {
	Cron    CronCallback
	Channel string
	ChatID  string
}

func (t *CronTool) Name() string { return "cron" }
func (t *CronTool) Description() string {
	return "Schedule reminders and recurring tasks. Actions: add, list, remove."
}
func (t *CronTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action":        map[string]any{"type": "string", "enum": []string{"add", "list", "remove"}},
			"message":       map[string]any{"type": "string", "description": "Reminder message (for add)"},
			"every_seconds": map[string]any{"type": "integer", "description": "Interval in seconds"},
			"cron_expr":     map[string]any{"type": "string", "description": "Cron expression"},
			"at":            map[string]any{"type": "string", "description": "RFC 3339 datetime for a one-shot job"},
			"job_id":        map[string]any{"type": "string", "description": "Job ID (for remove)"},
		},
		"required": []string{"action"},
	}
}

// SetContext sets the delivery target for scheduled messages.
func (t *CronTool) SetContext(channel, chatID string) {
	t.Channel = channel
	t.ChatID = chatID
}

func (t *CronTool) Execute(_ context.Context, args map[string]any) (string, error) {
	if t.Cron == nil {
		return "Error: scheduler not configured", nil
	}

	action, _ := args["action"].(string)
	switch action {
	case "add":
		message, _ := args["message"].(string)
		if message == "" {
			return "Error: message is required for add", nil
		}
		if t.Channel == "" || t.ChatID == "" {
			return "Error: no session context (channel/chat_id)", nil
		}
		everySeconds := 0
		if v, ok := args["every_seconds"].(float64); ok {
			everySeconds = int(v)
		}
		cronExpr, _ := args["cron_expr"].(string)
		at, _ := args["at"].(string)

		name := message
		if len(name) > 30 {
			name = name[:30]
		}
		return t.Cron.AddJob(name, message, t.Channel, t.ChatID, everySeconds, cronExpr, at)

	case "list":
		return t.Cron.ListJobs()

	case "remove":
		jobID, _ := args["job_id"].(string)
		if jobID == "" {
			return "Error: job_id is required for remove", nil
		}
		return t.Cron.RemoveJob(jobID)

	default:
		return fmt.Sprintf("Unknown action: %s", action), nil
	}
}
