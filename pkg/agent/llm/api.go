// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"

	"aura/pkg/tools"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user, or tool results returned to the model.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant CompletionRole = "assistant"
)

// Tool choice modes understood by every provider client.
const (
	// ToolChoiceAuto lets the model decide whether to call a tool.
	ToolChoiceAuto = "auto"
	// ToolChoiceAny forces the model to call one of the bound tools.
	ToolChoiceAny = "any"
	// ToolChoiceNone forbids tool calls even when tools are bound.
	ToolChoiceNone = "none"
)

const (
	// DefaultMaxTokens caps the model reply when the caller does not.
	DefaultMaxTokens = 2048

	// TemperatureDefault is the default temperature for worker replies.
	TemperatureDefault = 0.3

	// TemperatureDeterministic is used for routing and other classification calls.
	TemperatureDeterministic = 0.0
)

// ToolCall represents a tool call made by the LLM.
type ToolCall struct {
	Parameters map[string]any `json:"parameters"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
}

// ToolResult carries the output of one tool call back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// CompletionMessage represents a message in a completion request.
// Assistant messages may carry ToolCalls; user messages may carry ToolResults.
type CompletionMessage struct {
	Content     string
	Role        CompletionRole
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	Tools       []tools.ToolDefinition
	ToolChoice  string
	MaxTokens   int
	Temperature float32
}

// CompletionResponse represents a response from a completion request.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionResponse struct {
	ToolCalls  []ToolCall
	Content    string // Main response text
	StopReason string // Why the response stopped: "end_turn", "max_tokens", "tool_use", etc.
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Keep name for consistency with provider packages
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string, calls ...ToolCall) CompletionMessage {
	return CompletionMessage{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// NewToolResultMessage creates a user message carrying tool results.
func NewToolResultMessage(results ...ToolResult) CompletionMessage {
	return CompletionMessage{Role: RoleUser, ToolResults: results}
}

// FlattenToolTurns rewrites tool calls and results as plain text for providers whose
// request format here is text-only. Empty messages are dropped.
func FlattenToolTurns(messages []CompletionMessage) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(messages))
	for i := range messages {
		msg := messages[i]
		text := msg.Content
		for _, tc := range msg.ToolCalls {
			text = joinNonEmpty(text, "[called tool "+tc.Name+"]")
		}
		for _, tr := range msg.ToolResults {
			text = joinNonEmpty(text, "[tool "+tr.Name+" result] "+tr.Content)
		}
		if text == "" {
			continue
		}
		out = append(out, CompletionMessage{Role: msg.Role, Content: text})
	}
	return out
}

func joinNonEmpty(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}
