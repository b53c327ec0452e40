// Package tools provides tool definitions, the per-run tool registry, and the tool handlers
// workers may bind for the model.
package tools

import "context"

// Property describes one parameter of a tool's input schema.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
}

// InputSchema is the JSON-schema object a model fills in when calling a tool.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ToolDefinition is the provider-neutral description of a callable tool.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// ExecResult is the textual outcome of a tool execution.
type ExecResult struct {
	Content string
}

// Tool is a side-effecting handler the model can request by name.
type Tool interface {
	// Name returns the tool's identifier.
	Name() string
	// Definition returns the schema shown to the model.
	Definition() ToolDefinition
	// PromptDocumentation returns a short human description for system prompts.
	PromptDocumentation() string
	// Exec runs the tool. Errors are converted to result strings by the registry.
	Exec(ctx context.Context, args map[string]any) (*ExecResult, error)
}
