// Package toolloop runs the single bounded tool round trip of a worker turn: execute the
// tool calls of one model reply, append their results, and make exactly one follow-up call.
package toolloop

import (
	"context"
	"fmt"
	"time"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/logx"
	"aura/pkg/tools"
)

// Invoker is the part of the invocation engine the loop needs.
type Invoker interface {
	Invoke(ctx context.Context, req invoke.Request) (invoke.Result, error)
}

// ToolLoop executes tool calls and issues the follow-up call.
// It keeps no per-run state and may be shared between concurrent runs.
type ToolLoop struct {
	invoker Invoker
	logger  *logx.Logger
}

// New creates a new ToolLoop instance.
func New(invoker Invoker, logger *logx.Logger) *ToolLoop {
	if logger == nil {
		logger = logx.NewLogger("toolloop")
	}
	return &ToolLoop{
		invoker: invoker,
		logger:  logger,
	}
}

// Config defines one loop run.
//
//nolint:govet // fieldalignment: struct fields ordered for clarity over memory alignment
type Config struct {
	// Request is the request that produced the first result. Its Messages are the
	// history the follow-up extends.
	Request invoke.Request

	// Registry resolves tool handlers by name.
	Registry *tools.Registry

	// OnToolCall is called before each tool executes.
	OnToolCall func(call llm.ToolCall)

	// OnToolResult is called after each tool executes, skipped calls included.
	OnToolResult func(exec Execution)
}

// Run executes every tool call of first against the registry and makes one follow-up call
// with tool choice "none". Tool calls in the follow-up are counted and ignored.
// Returned errors are limited to configuration errors and cancellation.
//
//nolint:gocritic // invoke.Result passed by value; it is not mutated
func (tl *ToolLoop) Run(ctx context.Context, cfg *Config, first invoke.Result) (Outcome, error) {
	if !first.OK() {
		return Outcome{}, ErrNotSuccessful
	}
	calls := first.Response.ToolCalls
	if len(calls) == 0 {
		return Outcome{Kind: OutcomeNoToolCalls, Final: first}, nil
	}
	if cfg.Registry == nil {
		return Outcome{}, ErrNoRegistry
	}

	tl.logger.Info("Processing %d tool calls from %s", len(calls), first.Model)
	executions := make([]Execution, len(calls))
	results := make([]llm.ToolResult, len(calls))
	for i := range calls {
		call := calls[i]
		if cfg.OnToolCall != nil {
			cfg.OnToolCall(call)
		}

		exec := Execution{Call: call}
		if !cfg.Registry.Has(call.Name) {
			exec.Skipped = true
			tl.logger.Warn("Skipping unknown tool %q (call %s)", call.Name, call.ID)
		}

		start := time.Now()
		exec.Result = cfg.Registry.Invoke(ctx, call.Name, call.Parameters)
		tl.logger.Info("Tool %s completed in %.3fs", call.Name, time.Since(start).Seconds())

		executions[i] = exec
		results[i] = llm.ToolResult{
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    exec.Result,
			IsError:    exec.Skipped,
		}
		if cfg.OnToolResult != nil {
			cfg.OnToolResult(exec)
		}
	}

	appended := []llm.CompletionMessage{
		llm.NewAssistantMessage(first.Response.Content, calls...),
		llm.NewToolResultMessage(results...),
	}

	followUp := cfg.Request
	followUp.Messages = make([]llm.CompletionMessage, 0, len(cfg.Request.Messages)+len(appended))
	followUp.Messages = append(followUp.Messages, cfg.Request.Messages...)
	followUp.Messages = append(followUp.Messages, appended...)
	followUp.ToolChoice = llm.ToolChoiceNone

	final, err := tl.invoker.Invoke(ctx, followUp)
	if err != nil {
		return Outcome{}, fmt.Errorf("tool loop follow-up: %w", err)
	}

	out := Outcome{
		Kind:       OutcomeCompleted,
		Final:      final,
		Executions: executions,
		Appended:   appended,
	}
	if !final.OK() {
		out.Kind = OutcomeFollowUpFailed
		tl.logger.Error("Follow-up call after tools failed: %s", final.Outcome)
		return out, nil
	}
	if n := len(final.Response.ToolCalls); n > 0 {
		out.IgnoredToolCalls = n
		tl.logger.Warn("Ignoring %d tool calls requested by the follow-up call", n)
	}
	return out, nil
}
