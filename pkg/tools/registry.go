package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps tool names to handlers for a single run. It is safe for concurrent use.
type Registry struct {
	tools map[string]Tool
	mu    sync.RWMutex
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t != nil {
			r.tools[t.Name()] = t
		}
	}
	return r
}

// Register adds a tool, rejecting duplicates and empty names.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("tool cannot be nil")
	}
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// Definitions returns the definitions of every registered tool, sorted by name.
func (r *Registry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}

// PromptDocumentation joins the prompt documentation of all tools.
func (r *Registry) PromptDocumentation() string {
	defs := r.Definitions()
	r.mu.RLock()
	defer r.mu.RUnlock()

	docs := make([]string, 0, len(defs))
	for i := range defs {
		docs = append(docs, r.tools[defs[i].Name].PromptDocumentation())
	}
	return strings.Join(docs, "\n")
}

// Invoke runs the named tool and always returns a string. Unknown tools, handler
// errors and panics are reported in the returned text, never as Go errors.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result string) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("Error: unknown tool %q", name)
	}

	defer func() {
		if p := recover(); p != nil {
			result = fmt.Sprintf("Error: tool %s panicked: %v", name, p)
		}
	}()

	if args == nil {
		args = map[string]any{}
	}
	res, err := tool.Exec(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if res == nil {
		return ""
	}
	return res.Content
}
