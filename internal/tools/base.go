// Package tools defines the Tool capability contract and the guarded
// registry the agent loop executes tools through.
package tools

import "context"

// Tool is the interface every agent capability implements.
type Tool interface {
	// Name returns the tool name used in LLM function calls.
	Name() string

	// Description returns what the tool does, for the model.
	Description() string

	// Parameters returns the JSON Schema for tool parameters.
	Parameters() map[string]any

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToSchema converts a tool to OpenAI function calling format.
func ToSchema(t Tool) map[string]any {
	return map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name(),
			"description": t.Description(),
			"parameters":  t.Parameters(),
		},
	}
}
