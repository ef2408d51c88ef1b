// Package providers defines the LLM provider contract and the
// OpenAI-compatible HTTP implementation.
package providers

import "context"

// ToolCallRequest is one tool invocation requested by the model.
type ToolCallRequest struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// LLMResponse is the standardized response from any LLM backend.
// A response either carries tool calls (content may accompany them) or
// terminal content; HasToolCalls is the loop's continuation signal.
type LLMResponse struct {
	Content      *string           `json:"content"`
	ToolCalls    []ToolCallRequest `json:"tool_calls,omitempty"`
	FinishReason string            `json:"finish_reason"`
	Usage        map[string]int    `json:"usage,omitempty"`
}

// HasToolCalls reports whether the response requests tool execution.
func (r *LLMResponse) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}

// Message is one chat message in provider wire format. Tool-call plumbing
// fields are set only on assistant/tool messages mid-turn.
type Message struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	ToolCalls  []map[string]any `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	Name       string           `json:"name,omitempty"`
}

// ChatRequest holds all parameters for a chat completion call.
type ChatRequest struct {
	Messages    []Message        `json:"messages"`
	Tools       []map[string]any `json:"tools,omitempty"`
	Model       string           `json:"model,omitempty"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

// LLMProvider is the interface for all LLM backends.
type LLMProvider interface {
	// Chat sends a chat completion request. Ordinary request failures are
	// returned as a terminal response with FinishReason "error", never as
	// a Go error.
	Chat(ctx context.Context, req ChatRequest) (*LLMResponse, error)

	// DefaultModel returns the default model identifier.
	DefaultModel() string
}
