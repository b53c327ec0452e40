// Package invoke implements the resilient invocation engine: one generation request
// cascaded over model candidates (outer) and credential candidates (inner) until a
// pair succeeds or every pair has failed.
package invoke

import (
	"context"
	"fmt"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/config"
	"aura/pkg/logx"
	"aura/pkg/tools"
)

// ClientFactory builds a provider client bound to one model and one credential.
type ClientFactory interface {
	NewClient(provider, model string, cred config.Credential) (llm.LLMClient, error)
}

// SnapshotClientFactory is implemented by factories whose clients depend on settings
// (attempt timeout, provider host). The engine uses it when a request carries the
// snapshot its run started with, so later settings edits never reach that run.
type SnapshotClientFactory interface {
	ClientFactory
	NewClientForSnapshot(snap *config.Snapshot, provider, model string, cred config.Credential) (llm.LLMClient, error)
}

// Request is one generation request.
//
//nolint:govet // fieldalignment: readability
type Request struct {
	Provider    string
	Models      []string
	Credentials []config.Credential
	Messages    []llm.CompletionMessage
	Tools       []tools.ToolDefinition
	ToolChoice  string
	// Temperature overrides llm.TemperatureDefault when set.
	Temperature *float32
	MaxTokens   int
	// Snapshot is the settings version the request was derived from, if any.
	Snapshot    *config.Snapshot
}

// Engine runs the cascade. It holds no per-call state and is safe for concurrent use.
type Engine struct {
	factory ClientFactory
	logger  *logx.Logger
}

// New creates an engine that builds clients with factory.
func New(factory ClientFactory, logger *logx.Logger) *Engine {
	if logger == nil {
		logger = logx.NewLogger("invoke")
	}
	return &Engine{factory: factory, logger: logger}
}

func (e *Engine) newClient(req *Request, model string, cred config.Credential) (llm.LLMClient, error) {
	if sf, ok := e.factory.(SnapshotClientFactory); ok && req.Snapshot != nil {
		return sf.NewClientForSnapshot(req.Snapshot, req.Provider, model, cred) //nolint:wrapcheck // wrapped by caller
	}
	return e.factory.NewClient(req.Provider, model, cred) //nolint:wrapcheck // wrapped by caller
}

// Temperature returns a pointer to t for Request.Temperature.
func Temperature(t float32) *float32 {
	return &t
}

// Invoke attempts every (model, credential) pair in order and returns the first success.
// Remote failures never surface as errors: they are folded into the Result. The only
// returned errors are *ConfigurationError and the caller's context error.
//
//nolint:gocritic // Request passed by value so callers cannot observe mutation
func (e *Engine) Invoke(ctx context.Context, req Request) (Result, error) {
	if len(req.Models) == 0 {
		return Result{}, &ConfigurationError{Reason: "no model candidates"}
	}
	if len(req.Credentials) == 0 {
		return Result{}, &ConfigurationError{Reason: "API key missing"}
	}
	if len(req.Messages) == 0 {
		return Result{}, &ConfigurationError{Reason: "no messages to send"}
	}

	completion := llm.NewCompletionRequest(req.Messages)
	completion.Tools = req.Tools
	completion.ToolChoice = req.ToolChoice
	if req.Temperature != nil {
		completion.Temperature = *req.Temperature
	}
	if req.MaxTokens > 0 {
		completion.MaxTokens = req.MaxTokens
	}

	var result Result
	credentialsTried := make(map[int]struct{}, len(req.Credentials))
	lastKind := llmerrors.KindOther

	for mi, model := range req.Models {
		result.ModelsAttempted = mi + 1
		for ci := range req.Credentials {
			if err := ctx.Err(); err != nil {
				return Result{}, fmt.Errorf("invocation canceled: %w", err)
			}
			cred := req.Credentials[ci]
			credentialsTried[ci] = struct{}{}
			result.CredentialsAttempted = len(credentialsTried)
			logx.Debug(ctx, "invoke", "attempt model=%s key=%s (#%d)", model, cred.ID, ci)

			client, err := e.newClient(&req, model, cred)
			if err != nil {
				return Result{}, &ConfigurationError{Reason: fmt.Sprintf("cannot build %s client for %s: %v", req.Provider, model, err)}
			}

			resp, err := client.Complete(ctx, completion)
			if err == nil {
				result.Outcome = OutcomeSuccess
				result.Response = resp
				result.Model = model
				result.CredentialIndex = ci
				result.CredentialID = cred.ID
				if len(result.Errors) > 0 {
					e.logger.Info("model %s succeeded with key #%d after %d failed attempts", model, ci, len(result.Errors))
				}
				return result, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Result{}, fmt.Errorf("invocation canceled: %w", ctxErr)
			}

			lastKind = llmerrors.Classify(err)
			result.Errors = append(result.Errors, Attempt{
				Model:           model,
				CredentialIndex: ci,
				CredentialID:    cred.ID,
				Kind:            lastKind,
				Err:             err,
			})
			if lastKind == llmerrors.KindRateLimited {
				e.logger.Warn("model %s key #%d rate limited, trying next key", model, ci)
			} else {
				e.logger.Error("model %s key #%d failed (%s): %v", model, ci, lastKind, err)
			}
		}
	}

	result.Outcome = OutcomeExhausted
	if lastKind == llmerrors.KindRateLimited {
		result.Outcome = OutcomeRateLimited
	}
	e.logger.Error("invocation %s after %d attempts", result.Outcome, len(result.Errors))
	return result, nil
}
