package metrics

import (
	"context"
	"time"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/logx"
	"aura/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor is a function that extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor estimates token usage with the tiktoken counter.
//
//nolint:gocritic // matches UsageExtractor signature
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	texts := make([]string, 0, len(req.Messages))
	for i := range req.Messages {
		texts = append(texts, req.Messages[i].Content)
		for _, tr := range req.Messages[i].ToolResults {
			texts = append(texts, tr.Content)
		}
	}
	return utils.CountTokensJoined(texts), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records metrics for LLM operations.
// It tracks attempt latency, token usage, success/failure rates, and error kinds.
func Middleware(recorder Recorder, provider string, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				component := ComponentFrom(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				errorKind := ""
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
				} else {
					kind := llmerrors.Classify(err)
					errorKind = kind.String()
					if kind == llmerrors.KindRateLimited {
						recorder.IncThrottle(model, "rate_limited")
					}
				}

				recorder.ObserveRequest(model, provider, component, promptTokens, completionTokens, err == nil, errorKind, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Debug("LLM request: model=%s component=%s tokens=%d+%d status=%s duration=%dms",
						model, component, promptTokens, completionTokens, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
