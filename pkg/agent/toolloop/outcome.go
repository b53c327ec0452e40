package toolloop

import (
	"fmt"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
)

// OutcomeKind categorizes the result of a tool loop run.
type OutcomeKind int

const (
	// OutcomeNoToolCalls indicates the first result requested no tools; it is final as-is.
	OutcomeNoToolCalls OutcomeKind = iota

	// OutcomeCompleted indicates the tools ran and the follow-up call succeeded.
	OutcomeCompleted

	// OutcomeFollowUpFailed indicates the tools ran but the follow-up call exhausted
	// every candidate. Final carries the failed result and its user message.
	OutcomeFollowUpFailed
)

// String returns human-readable name for OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNoToolCalls:
		return "NoToolCalls"
	case OutcomeCompleted:
		return "Completed"
	case OutcomeFollowUpFailed:
		return "FollowUpFailed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", k)
	}
}

// Execution records one requested tool call and its textual result.
//
//nolint:govet // fieldalignment: readability
type Execution struct {
	Call   llm.ToolCall
	Result string
	// Skipped is true when no handler is registered under Call.Name.
	Skipped bool
}

// Outcome represents the result of a tool loop run.
//
//nolint:govet // Field order optimized for readability over memory alignment
type Outcome struct {
	// Kind categorizes what happened during the loop.
	Kind OutcomeKind

	// Final is the result whose content is the worker's reply: the first result for
	// OutcomeNoToolCalls, the follow-up result otherwise.
	Final invoke.Result

	// Executions lists every tool call of the first result, in request order.
	Executions []Execution

	// Appended holds the assistant tool-call message and the tool-result message that
	// were added to the history for the follow-up call.
	Appended []llm.CompletionMessage

	// IgnoredToolCalls counts tool calls requested by the follow-up; they are never run.
	IgnoredToolCalls int
}
