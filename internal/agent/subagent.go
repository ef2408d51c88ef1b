package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/providers"
	"github.com/okapi-bot/okapi/internal/tools"
)

// SubagentOptions configures background subagent execution.
type SubagentOptions struct {
	Model         string
	MaxTokens     int
	Temperature   float64
	MaxIterations int
	BraveAPIKey   string
	Logger        *slog.Logger
}

// SubagentManager runs detached background tasks. Each task gets its own
// restricted tool set (files, shell, web — no messaging, no recursion)
// and announces its result back through the bus on the system channel.
type SubagentManager struct {
	Provider  providers.LLMProvider
	Workspace string
	Bus       *bus.MessageBus

	opts   SubagentOptions
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewSubagentManager creates a SubagentManager.
func NewSubagentManager(provider providers.LLMProvider, workspace string, msgBus *bus.MessageBus, opts SubagentOptions) *SubagentManager {
	if opts.MaxIterations == 0 {
		opts.MaxIterations = 15
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &SubagentManager{
		Provider:  provider,
		Workspace: workspace,
		Bus:       msgBus,
		opts:      opts,
		logger:    opts.Logger,
		running:   make(map[string]context.CancelFunc),
	}
}

// Spawn starts a subagent in the background and returns an immediate
// acknowledgement. The work is detached from the caller's context.
func (sm *SubagentManager) Spawn(ctx context.Context, task, label, originChannel, originChatID string) string {
	taskID := uuid.NewString()[:8]
	if label == "" {
		if len(task) > 30 {
			label = task[:30] + "..."
		} else {
			label = task
		}
	}

	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sm.mu.Lock()
	sm.running[taskID] = cancel
	sm.mu.Unlock()

	sm.logger.Info("subagent spawned", "id", taskID, "label", label)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				sm.logger.Error("subagent panic", "id", taskID, "panic", r)
			}
			sm.mu.Lock()
			delete(sm.running, taskID)
			sm.mu.Unlock()
			cancel()
		}()
		sm.runSubagent(subCtx, taskID, task, label, originChannel, originChatID)
	}()

	return fmt.Sprintf("Subagent [%s] started (id: %s). I'll notify you when it completes.", label, taskID)
}

func (sm *SubagentManager) runSubagent(ctx context.Context, taskID, task, label, channel, chatID string) {
	start := time.Now()
	registry := sm.buildRegistry()

	messages := []providers.Message{
		{Role: "system", Content: sm.buildSubagentPrompt(task)},
		{Role: "user", Content: task},
	}

	status := "completed"
	var finalResult string

	for i := 0; i < sm.opts.MaxIterations; i++ {
		resp, err := sm.Provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       registry.Schemas(),
			Model:       sm.opts.Model,
			MaxTokens:   sm.opts.MaxTokens,
			Temperature: sm.opts.Temperature,
		})
		if err != nil {
			status = "failed"
			finalResult = fmt.Sprintf("Error: %v", err)
			break
		}

		if !resp.HasToolCalls() {
			if resp.Content != nil {
				finalResult = *resp.Content
			}
			break
		}

		content := ""
		if resp.Content != nil {
			content = *resp.Content
		}
		messages = AppendAssistant(messages, content, toolCallPayload(resp.ToolCalls))

		for _, tc := range resp.ToolCalls {
			result := registry.Execute(ctx, tc.Name, tc.Arguments)
			messages = AppendToolResult(messages, tc.ID, tc.Name, result)
		}
	}

	if finalResult == "" {
		finalResult = "Task completed but no response was generated."
	}

	sm.logger.Info("subagent finished", "id", taskID, "status", status, "elapsed", time.Since(start))

	// Announce on the system channel; ChatID carries the reply target so
	// the main loop can route the summary back.
	if sm.Bus != nil {
		sm.Bus.PublishInbound(bus.InboundMessage{
			Channel:   "system",
			SenderID:  "subagent",
			ChatID:    channel + ":" + chatID,
			Content:   fmt.Sprintf("[Subagent '%s' %s]\n\nTask: %s\n\nResult:\n%s\n\nSummarize this result for the user in one or two sentences.", label, status, task, finalResult),
			Timestamp: time.Now(),
		})
	}
}

// buildRegistry assembles the restricted subagent tool set. No message,
// spawn, or cron tools: subagents cannot reach users or recurse.
func (sm *SubagentManager) buildRegistry() *tools.Registry {
	registry := tools.NewRegistry()
	registry.Register(&tools.ReadFileTool{})
	registry.Register(&tools.WriteFileTool{})
	registry.Register(&tools.EditFileTool{})
	registry.Register(&tools.ListDirTool{})
	exec := tools.NewExecTool()
	exec.WorkingDir = sm.Workspace
	registry.Register(exec)
	registry.Register(&tools.WebSearchTool{APIKey: sm.opts.BraveAPIKey})
	registry.Register(&tools.WebFetchTool{})
	return registry
}

func (sm *SubagentManager) buildSubagentPrompt(task string) string {
	return fmt.Sprintf(`# Subagent

You are a subagent spawned by the main agent to complete a specific task.

## Rules
1. Stay focused - complete only the assigned task
2. Your final response will be reported back to the main agent
3. Be concise but informative

## What You Can Do
- Read, write, and edit files
- Run shell commands
- Search the web and fetch web pages

## Workspace
%s`, sm.Workspace)
}

// RunningCount returns the number of active subagents.
func (sm *SubagentManager) RunningCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.running)
}
