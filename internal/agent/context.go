package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/okapi-bot/okapi/internal/providers"
)

// BootstrapFiles are loaded into the system prompt when present, in this
// order. Absent files are skipped silently.
var BootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// ContextBuilder assembles system prompts and message lists for the agent.
// The output is deterministic for a given workspace state.
type ContextBuilder struct {
	Workspace    string
	Memory       *MemoryStore
	Skills       *SkillsLoader
	AlwaysSkills []string
}

// NewContextBuilder creates a ContextBuilder for a workspace.
// alwaysSkills are configured skill names loaded in full on every turn,
// joined with any skill flagged always in its frontmatter.
func NewContextBuilder(workspace string, alwaysSkills []string) *ContextBuilder {
	return &ContextBuilder{
		Workspace:    workspace,
		Memory:       NewMemoryStore(workspace),
		Skills:       NewSkillsLoader(workspace, ""),
		AlwaysSkills: alwaysSkills,
	}
}

// BuildSystemPrompt builds the full system prompt: identity, bootstrap
// docs, memory, always-on skills in full, then a catalog of the rest.
func (c *ContextBuilder) BuildSystemPrompt() string {
	parts := []string{c.getIdentity()}

	if bs := c.loadBootstrapFiles(); bs != "" {
		parts = append(parts, bs)
	}

	if mem := c.Memory.GetMemoryContext(); mem != "" {
		parts = append(parts, fmt.Sprintf("# Memory\n\n%s", mem))
	}

	always := c.resolveAlwaysSkills()
	if len(always) > 0 {
		if full := c.Skills.LoadSkillsForContext(always); full != "" {
			parts = append(parts, fmt.Sprintf("# Active Skills\n\n%s", full))
		}
	}

	exclude := make(map[string]bool, len(always))
	for _, name := range always {
		exclude[name] = true
	}
	if summary := c.Skills.BuildSkillsSummary(exclude); summary != "" {
		parts = append(parts, fmt.Sprintf(`# Skills

The following skills extend your capabilities. To use a skill, read its SKILL.md file using the read_file tool.

%s`, summary))
	}

	return strings.Join(parts, "\n\n---\n\n")
}

// resolveAlwaysSkills merges configured always-on skills with skills
// flagged always in their frontmatter, deduplicated, order preserved.
func (c *ContextBuilder) resolveAlwaysSkills() []string {
	seen := map[string]bool{}
	var names []string
	for _, name := range append(append([]string{}, c.AlwaysSkills...), c.Skills.AlwaysSkillNames()...) {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (c *ContextBuilder) getIdentity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	sys := runtime.GOOS
	if sys == "darwin" {
		sys = "macOS"
	}
	rt := fmt.Sprintf("%s %s, Go %s", sys, runtime.GOARCH, runtime.Version())
	ws, _ := filepath.Abs(c.Workspace)

	return fmt.Sprintf(`# okapi

You are okapi, a personal AI assistant. You have access to tools that allow you to:
- Read, write, and edit files
- Execute shell commands
- Search the web and fetch web pages
- Send messages to users on chat channels
- Schedule reminders and recurring tasks
- Spawn subagents for complex background tasks

## Current Time
%s (%s)

## Runtime
%s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- Daily notes: %s/memory/YYYY-MM-DD.md
- History log: %s/memory/HISTORY.md (grep-searchable)
- Custom skills: %s/skills/{skill-name}/SKILL.md

Always be helpful, accurate, and concise.`, now, tz, rt, ws, ws, ws, ws, ws)
}

func (c *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range BootstrapFiles {
		path := filepath.Join(c.Workspace, name)
		data, err := os.ReadFile(path)
		if err == nil {
			parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages constructs the full message list for an LLM call:
// system prompt, prior history, then the current user turn.
func (c *ContextBuilder) BuildMessages(history []map[string]string, userMsg, channel, chatID string) []providers.Message {
	systemPrompt := c.BuildSystemPrompt()
	if channel != "" && chatID != "" {
		systemPrompt += fmt.Sprintf("\n\n## Current Session\nChannel: %s\nChat ID: %s", channel, chatID)
	}

	messages := make([]providers.Message, 0, len(history)+2)
	messages = append(messages, providers.Message{Role: "system", Content: systemPrompt})
	for _, h := range history {
		messages = append(messages, providers.Message{Role: h["role"], Content: h["content"]})
	}
	return append(messages, providers.Message{Role: "user", Content: userMsg})
}

// AppendAssistant appends an assistant message carrying the raw
// tool_calls payload for the provider to echo back.
func AppendAssistant(messages []providers.Message, content string, toolCalls []map[string]any) []providers.Message {
	return append(messages, providers.Message{
		Role:      "assistant",
		Content:   content,
		ToolCalls: toolCalls,
	})
}

// AppendToolResult appends one tool-result message.
func AppendToolResult(messages []providers.Message, toolCallID, toolName, result string) []providers.Message {
	return append(messages, providers.Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: toolCallID,
		Name:       toolName,
	})
}
