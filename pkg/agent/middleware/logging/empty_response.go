// Package logging provides logging middleware for LLM clients.
package logging

import (
	"context"
	"strings"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/logx"
	"aura/pkg/tools"
)

const maxLoggedMessageChars = 2000

// Middleware logs every attempt outcome at debug level and dumps the request when a
// provider returns an empty response. Errors pass through unchanged.
func Middleware(logger *logx.Logger) llm.Middleware {
	if logger == nil {
		logger = logx.NewLogger("llm-middleware")
	}
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)

				switch {
				case err == nil:
					logger.Debug("model %s replied: %d chars, %d tool calls, stop=%s",
						next.GetModelName(), len(resp.Content), len(resp.ToolCalls), resp.StopReason)
				case llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse):
					logEmptyResponseDebugInfo(logger, next.GetModelName(), req)
				default:
					logger.Debug("model %s failed (%s): %v", next.GetModelName(), llmerrors.Classify(err), err)
				}

				//nolint:wrapcheck // Middleware intentionally passes through errors unchanged
				return resp, err
			},
			next.GetModelName,
		)
	}
}

// logEmptyResponseDebugInfo logs the request that produced an empty LLM response.
//
//nolint:gocritic // request passed by value for logging only
func logEmptyResponseDebugInfo(logger *logx.Logger, model string, req llm.CompletionRequest) {
	logger.Warn("empty response from %s; request follows", model)

	for i := range req.Messages {
		msg := &req.Messages[i]
		logger.Warn("message [%d] role=%s content=%s", i, msg.Role, llmerrors.SanitizePrompt(msg.Content, maxLoggedMessageChars))
	}

	logger.Warn("temperature=%v max_tokens=%d tool_choice=%q tools=[%s]",
		req.Temperature, req.MaxTokens, req.ToolChoice, strings.Join(getToolNames(req.Tools), ", "))
}

// getToolNames extracts tool names from tool definitions for logging.
func getToolNames(toolDefs []tools.ToolDefinition) []string {
	names := make([]string, len(toolDefs))
	for i := range toolDefs {
		names[i] = toolDefs[i].Name
	}
	return names
}
