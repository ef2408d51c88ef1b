package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/providers"
	"github.com/okapi-bot/okapi/internal/session"
	"github.com/okapi-bot/okapi/internal/statecache"
	"github.com/okapi-bot/okapi/internal/tools"
	"github.com/okapi-bot/okapi/internal/utils"
)

// iterationLimitNotice is returned when a turn runs out of tool-call
// iterations before the model produces a final answer.
const iterationLimitNotice = "I hit my step limit while working on this. Ask me to continue if you'd like me to keep going."

const pollInterval = 1 * time.Second

// Options configures an AgentLoop.
type Options struct {
	Workspace           string
	DataDir             string
	Model               string
	MaxIterations       int
	SubagentIterations  int
	Temperature         float64
	MaxTokens           int
	HistoryWindow       int
	AlwaysSkills        []string
	BraveAPIKey         string
	RestrictToWorkspace bool
	ExecTimeout         time.Duration
	ExecDenyPatterns    []string
	ExecAllowPatterns   []string
	Logger              *slog.Logger
	Cache               *statecache.Cache
}

// AgentLoop is the core processing engine. It consumes inbound messages,
// builds context, drives the provider/tool iteration, and publishes
// replies to the outbound queue.
type AgentLoop struct {
	Bus           *bus.MessageBus
	Provider      providers.LLMProvider
	Workspace     string
	Model         string
	MaxIterations int
	Temperature   float64
	MaxTokens     int
	HistoryWindow int

	Context   *ContextBuilder
	Sessions  *session.Manager
	Tools     *tools.Registry
	Subagents *SubagentManager

	cache  *statecache.Cache
	logger *slog.Logger

	// turnMu serializes turns. The bus consumer, cron, heartbeat, and
	// the CLI all drive the same loop; tool context (message/spawn/cron)
	// and session history are shared mutable per-turn state.
	turnMu sync.Mutex

	msgTool   *tools.MessageTool
	spawnTool *tools.SpawnTool
	cronTool  *tools.CronTool
}

// NewAgentLoop creates and wires an agent loop with its default tool set.
func NewAgentLoop(msgBus *bus.MessageBus, provider providers.LLMProvider, opts Options) *AgentLoop {
	model := opts.Model
	if model == "" {
		model = provider.DefaultModel()
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = 20
	}
	if opts.SubagentIterations == 0 {
		opts.SubagentIterations = 15
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 4096
	}
	if opts.HistoryWindow == 0 {
		opts.HistoryWindow = 50
	}
	if opts.DataDir == "" {
		opts.DataDir = utils.DataPath()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	a := &AgentLoop{
		Bus:           msgBus,
		Provider:      provider,
		Workspace:     opts.Workspace,
		Model:         model,
		MaxIterations: opts.MaxIterations,
		Temperature:   opts.Temperature,
		MaxTokens:     opts.MaxTokens,
		HistoryWindow: opts.HistoryWindow,
		Context:       NewContextBuilder(opts.Workspace, opts.AlwaysSkills),
		Sessions:      session.NewManager(opts.DataDir),
		Tools:         tools.NewRegistry(),
		cache:         opts.Cache,
		logger:        opts.Logger,
	}
	a.Subagents = NewSubagentManager(provider, opts.Workspace, msgBus, SubagentOptions{
		Model:         model,
		MaxTokens:     opts.MaxTokens,
		Temperature:   opts.Temperature,
		MaxIterations: opts.SubagentIterations,
		BraveAPIKey:   opts.BraveAPIKey,
		Logger:        opts.Logger,
	})
	a.registerDefaultTools(opts)
	return a
}

func (a *AgentLoop) registerDefaultTools(opts Options) {
	allowed := ""
	if opts.RestrictToWorkspace {
		allowed = opts.Workspace
	}
	a.Tools.Register(&tools.ReadFileTool{AllowedDir: allowed})
	a.Tools.Register(&tools.WriteFileTool{AllowedDir: allowed})
	a.Tools.Register(&tools.EditFileTool{AllowedDir: allowed})
	a.Tools.Register(&tools.ListDirTool{AllowedDir: allowed})

	execTool := tools.NewExecTool()
	execTool.WorkingDir = opts.Workspace
	execTool.RestrictToWorkspace = opts.RestrictToWorkspace
	if opts.ExecTimeout > 0 {
		execTool.Timeout = opts.ExecTimeout
	}
	// Operator deny patterns extend the defaults, never replace them
	execTool.DenyPatterns = append(execTool.DenyPatterns, opts.ExecDenyPatterns...)
	execTool.AllowPatterns = opts.ExecAllowPatterns
	a.Tools.Register(execTool)

	a.Tools.Register(&tools.WebSearchTool{APIKey: opts.BraveAPIKey})
	a.Tools.Register(&tools.WebFetchTool{})

	a.msgTool = &tools.MessageTool{SendCallback: func(msg bus.OutboundMessage) error {
		a.Bus.PublishOutbound(msg)
		return nil
	}}
	a.Tools.Register(a.msgTool)

	a.spawnTool = &tools.SpawnTool{SpawnCallback: func(task, label, channel, chatID string) (string, error) {
		return a.Subagents.Spawn(context.Background(), task, label, channel, chatID), nil
	}}
	a.Tools.Register(a.spawnTool)
}

// SetCron attaches a scheduler to the cron tool, registering it on first
// call.
func (a *AgentLoop) SetCron(cb tools.CronCallback) {
	if a.cronTool == nil {
		a.cronTool = &tools.CronTool{}
		a.Tools.Register(a.cronTool)
	}
	a.cronTool.Cron = cb
}

// Run consumes inbound messages until ctx is cancelled. Consume timeouts
// mean an idle bus and are not errors; a failing turn is logged and the
// loop keeps going.
func (a *AgentLoop) Run(ctx context.Context) error {
	a.logger.Info("agent loop started", "model", a.Model)
	for {
		pollCtx, cancel := context.WithTimeout(ctx, pollInterval)
		msg, err := a.Bus.ConsumeInbound(pollCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				a.logger.Info("agent loop stopped")
				return nil
			}
			if errors.Is(err, bus.ErrTimeout) {
				continue
			}
			a.logger.Error("consume inbound", "error", err)
			continue
		}
		a.handleInbound(ctx, msg)
	}
}

func (a *AgentLoop) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic processing message", "channel", msg.Channel, "chat_id", msg.ChatID, "panic", r)
		}
	}()

	reply, err := a.processMessage(ctx, msg)
	if err != nil {
		a.logger.Error("process message", "channel", msg.Channel, "chat_id", msg.ChatID, "error", err)
		return
	}
	if reply.Content != "" {
		a.Bus.PublishOutbound(reply)
	}
}

// processMessage runs one full turn for an inbound message and returns
// the outbound reply. Messages on the reserved "system" channel carry
// their reply target encoded in ChatID as "channel:chat_id".
func (a *AgentLoop) processMessage(ctx context.Context, msg bus.InboundMessage) (bus.OutboundMessage, error) {
	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	replyChannel, replyChatID := msg.Channel, msg.ChatID
	if msg.Channel == "system" {
		if ch, id, ok := utils.SplitSessionKey(msg.ChatID); ok {
			replyChannel, replyChatID = ch, id
		}
	}
	sessionKey := replyChannel + ":" + replyChatID

	sess := a.Sessions.GetOrCreate(sessionKey)
	history := sess.GetHistory(a.HistoryWindow)

	a.msgTool.SetContext(replyChannel, replyChatID)
	a.spawnTool.SetContext(replyChannel, replyChatID)
	if a.cronTool != nil {
		a.cronTool.SetContext(replyChannel, replyChatID)
	}

	messages := a.Context.BuildMessages(history, msg.Content, replyChannel, replyChatID)

	finalContent, toolsUsed, err := a.runAgentLoop(ctx, messages)
	if err != nil {
		return bus.OutboundMessage{}, err
	}
	if finalContent == "" {
		finalContent = "Completed processing."
	}

	// Only the user turn and the final answer go into history;
	// intermediate tool traffic stays ephemeral.
	sess.AddMessage("user", msg.Content)
	sess.AddMessage("assistant", finalContent)
	if err := a.Sessions.Save(sess); err != nil {
		a.logger.Warn("save session", "key", sessionKey, "error", err)
	}
	if a.cache != nil {
		a.cache.TouchSession(ctx, sessionKey)
	}

	if len(toolsUsed) > 0 {
		a.logger.Debug("turn complete", "session", sessionKey, "tools", toolsUsed)
	}

	// Inbound metadata rides along so adapters can thread replies
	// (Slack thread_ts and the like)
	return bus.OutboundMessage{
		Channel:  replyChannel,
		ChatID:   replyChatID,
		Content:  finalContent,
		Metadata: msg.Metadata,
	}, nil
}

// runAgentLoop drives the provider/tool iteration until the model stops
// requesting tools or the iteration cap is hit. Tool calls execute
// strictly in the order the model returned them.
func (a *AgentLoop) runAgentLoop(ctx context.Context, messages []providers.Message) (string, []string, error) {
	var toolsUsed []string

	for i := 0; i < a.MaxIterations; i++ {
		resp, err := a.Provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       a.Tools.Schemas(),
			Model:       a.Model,
			MaxTokens:   a.MaxTokens,
			Temperature: a.Temperature,
		})
		if err != nil {
			return "", toolsUsed, fmt.Errorf("llm chat: %w", err)
		}

		if !resp.HasToolCalls() {
			content := ""
			if resp.Content != nil {
				content = *resp.Content
			}
			return content, toolsUsed, nil
		}

		content := ""
		if resp.Content != nil {
			content = *resp.Content
		}
		messages = AppendAssistant(messages, content, toolCallPayload(resp.ToolCalls))

		for _, tc := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, tc.Name)
			result := a.Tools.Execute(ctx, tc.Name, tc.Arguments)
			messages = AppendToolResult(messages, tc.ID, tc.Name, result)
		}
	}

	return iterationLimitNotice, toolsUsed, nil
}

// toolCallPayload rebuilds the wire-format tool_calls list the provider
// expects to see echoed on the assistant message.
func toolCallPayload(calls []providers.ToolCallRequest) []map[string]any {
	out := make([]map[string]any, 0, len(calls))
	for _, tc := range calls {
		argsJSON, _ := json.Marshal(tc.Arguments)
		out = append(out, map[string]any{
			"id":   tc.ID,
			"type": "function",
			"function": map[string]any{
				"name":      tc.Name,
				"arguments": string(argsJSON),
			},
		})
	}
	return out
}

// ProcessDirect runs one turn outside the bus (CLI, cron, heartbeat)
// and returns the reply.
func (a *AgentLoop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	if sessionKey == "" {
		sessionKey = "cli:direct"
	}
	if channel == "" {
		channel = "cli"
	}
	if chatID == "" {
		chatID = "direct"
	}

	a.turnMu.Lock()
	defer a.turnMu.Unlock()

	sess := a.Sessions.GetOrCreate(sessionKey)
	history := sess.GetHistory(a.HistoryWindow)

	a.msgTool.SetContext(channel, chatID)
	a.spawnTool.SetContext(channel, chatID)
	if a.cronTool != nil {
		a.cronTool.SetContext(channel, chatID)
	}

	messages := a.Context.BuildMessages(history, content, channel, chatID)

	finalContent, _, err := a.runAgentLoop(ctx, messages)
	if err != nil {
		return "", err
	}
	if finalContent == "" {
		finalContent = "Completed processing."
	}

	sess.AddMessage("user", content)
	sess.AddMessage("assistant", finalContent)
	if err := a.Sessions.Save(sess); err != nil {
		a.logger.Warn("save session", "key", sessionKey, "error", err)
	}

	return finalContent, nil
}
