package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds all registered tools, keyed by name, and guards every
// invocation: parameters are validated against the tool's schema before
// Execute runs, and failures of any kind come back as textual results.
// Nothing a tool does can raise past this boundary.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name, or nil if not found.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns all registered tools, sorted by name.
func (r *Registry) All() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Schemas returns OpenAI function-call schemas for all registered tools.
func (r *Registry) Schemas() []map[string]any {
	all := r.All()
	schemas := make([]map[string]any, len(all))
	for i, t := range all {
		schemas[i] = ToSchema(t)
	}
	return schemas
}

// Execute validates args against the named tool's schema and runs it.
// The returned string is always suitable as tool-result content: unknown
// tools, invalid parameters, execution errors, and panics all render as
// text the model can react to.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result string) {
	tool := r.Get(name)
	if tool == nil {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	if violations := ValidateParams(tool.Parameters(), args); len(violations) > 0 {
		return fmt.Sprintf("Invalid parameters for %s: %s", name, strings.Join(violations, "; "))
	}

	defer func() {
		if rec := recover(); rec != nil {
			result = fmt.Sprintf("Error executing %s: panic: %v", name, rec)
		}
	}()

	out, err := tool.Execute(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing %s: %v", name, err)
	}
	return out
}
