// Package agent builds provider clients wrapped in the standard middleware chain.
package agent

import (
	"fmt"
	"time"

	"aura/pkg/agent/internal/llmimpl/anthropic"
	"aura/pkg/agent/internal/llmimpl/google"
	"aura/pkg/agent/internal/llmimpl/ollama"
	"aura/pkg/agent/internal/llmimpl/openaiofficial"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/middleware/logging"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/agent/middleware/resilience/timeout"
	"aura/pkg/config"
	"aura/pkg/logx"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
// It is immutable; WithSnapshot returns a copy bound to one settings version.
type LLMClientFactory struct {
	recorder       metrics.Recorder
	logger         *logx.Logger
	attemptTimeout time.Duration
	ollamaHost     string
}

// NewLLMClientFactory creates a factory that reports attempts to recorder.
func NewLLMClientFactory(recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		recorder:       recorder,
		logger:         logx.NewLogger("llm"),
		attemptTimeout: time.Duration(config.DefaultAttemptTimeoutSeconds) * time.Second,
		ollamaHost:     config.DefaultOllamaHost,
	}
}

// WithSnapshot returns a factory using the attempt timeout and ollama host of snap.
func (f *LLMClientFactory) WithSnapshot(snap *config.Snapshot) *LLMClientFactory {
	out := *f
	out.attemptTimeout = snap.AttemptTimeout()
	out.ollamaHost = snap.Config().Ollama.Host
	return &out
}

// AttemptTimeout returns the per-attempt deadline applied to every client.
func (f *LLMClientFactory) AttemptTimeout() time.Duration {
	return f.attemptTimeout
}

// NewClient creates a client for model using cred, wrapped as
// metrics -> logging -> timeout -> provider.
func (f *LLMClientFactory) NewClient(provider, model string, cred config.Credential) (llm.LLMClient, error) {
	raw, err := f.newRawClient(provider, model, cred)
	if err != nil {
		return nil, err
	}
	return llm.Chain(raw,
		metrics.Middleware(f.recorder, provider, nil, f.logger),
		logging.Middleware(f.logger),
		timeout.Middleware(f.attemptTimeout),
	), nil
}

func (f *LLMClientFactory) newRawClient(provider, model string, cred config.Credential) (llm.LLMClient, error) {
	if model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	switch provider {
	case config.ProviderGoogle, "":
		return google.NewGeminiClientWithModel(cred.Key, model), nil
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(cred.Key, model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(cred.Key, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(f.ollamaHost, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// NewClientForSnapshot creates a client configured from snap rather than from the
// factory's own snapshot.
func (f *LLMClientFactory) NewClientForSnapshot(snap *config.Snapshot, provider, model string, cred config.Credential) (llm.LLMClient, error) {
	return f.WithSnapshot(snap).NewClient(provider, model, cred)
}
