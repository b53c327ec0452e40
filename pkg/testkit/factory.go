// Package testkit provides scripted LLM clients and factories for tests across the
// orchestration packages.
package testkit

import (
	"context"
	"fmt"
	"sync"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
	"aura/pkg/config"
)

// Reply scripts the outcome of one attempt.
type Reply struct {
	Err      error
	Response llm.CompletionResponse
}

// Text returns a reply with plain content.
func Text(content string) Reply {
	return Reply{Response: llm.CompletionResponse{Content: content, StopReason: "end_turn"}}
}

// ToolCall returns a reply requesting one tool call.
func ToolCall(id, name string, args map[string]any) Reply {
	return Reply{Response: llm.CompletionResponse{
		ToolCalls:  []llm.ToolCall{{ID: id, Name: name, Parameters: args}},
		StopReason: "tool_use",
	}}
}

// Route returns a reply selecting next through the supervisor's route tool.
func Route(next string) Reply {
	return ToolCall("route_0", "route", map[string]any{"next": next})
}

// Fail returns a reply failing with err.
func Fail(err error) Reply {
	return Reply{Err: err}
}

// RateLimited returns a quota failure.
func RateLimited() Reply {
	return Fail(llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeRateLimit, 429, "RESOURCE_EXHAUSTED: quota exceeded"))
}

// Unauthorized returns a rejected-credential failure.
func Unauthorized() Reply {
	return Fail(llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeAuth, 401, "API key not valid"))
}

// NotFound returns an unknown-model failure.
func NotFound() Reply {
	return Fail(llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeNotFound, 404, "model not found"))
}

// Other returns an unclassified remote failure.
func Other(detail string) Reply {
	return Fail(llmerrors.NewError(llmerrors.ErrorTypeTransient, detail))
}

// Call records one attempt made through a ScriptedFactory.
//
//nolint:govet // fieldalignment: readability over packing in test helpers
type Call struct {
	Provider     string
	Model        string
	CredentialID string
	Request      llm.CompletionRequest
}

// Handler computes a reply from the attempt's model, credential and request.
type Handler func(model, credentialID string, req llm.CompletionRequest) Reply

// ScriptedFactory is a client factory whose clients answer from per-(model, credential)
// scripts. Each script is consumed in order and its last reply repeats.
type ScriptedFactory struct {
	mu      sync.Mutex
	scripts map[string][]Reply
	handler Handler
	calls   []Call
}

// NewScriptedFactory returns an empty factory. Unscripted attempts fail with Other.
func NewScriptedFactory() *ScriptedFactory {
	return &ScriptedFactory{scripts: make(map[string][]Reply)}
}

func scriptKey(model, credentialID string) string {
	return model + "|" + credentialID
}

// On scripts replies for model and credentialID. An empty model or credentialID matches any.
func (f *ScriptedFactory) On(model, credentialID string, replies ...Reply) *ScriptedFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := scriptKey(model, credentialID)
	f.scripts[key] = append(f.scripts[key], replies...)
	return f
}

// Handle installs a handler used when no script matches.
func (f *ScriptedFactory) Handle(h Handler) *ScriptedFactory {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return f
}

// Calls returns every attempt made so far, in order.
func (f *ScriptedFactory) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// NewClient returns a client bound to model and cred.
func (f *ScriptedFactory) NewClient(provider, model string, cred config.Credential) (llm.LLMClient, error) {
	return &scriptedClient{factory: f, provider: provider, model: model, credentialID: cred.ID}, nil
}

func (f *ScriptedFactory) next(provider, model, credentialID string, req llm.CompletionRequest) Reply { //nolint:gocritic // test helper
	f.mu.Lock()
	f.calls = append(f.calls, Call{Provider: provider, Model: model, CredentialID: credentialID, Request: req})
	for _, key := range []string{scriptKey(model, credentialID), scriptKey(model, ""), scriptKey("", credentialID), scriptKey("", "")} {
		script, ok := f.scripts[key]
		if !ok || len(script) == 0 {
			continue
		}
		reply := script[0]
		if len(script) > 1 {
			f.scripts[key] = script[1:]
		}
		f.mu.Unlock()
		return reply
	}
	h := f.handler
	f.mu.Unlock()

	if h != nil {
		return h(model, credentialID, req)
	}
	return Other(fmt.Sprintf("no script for model %s credential %s", model, credentialID))
}

type scriptedClient struct {
	factory      *ScriptedFactory
	provider     string
	model        string
	credentialID string
}

func (c *scriptedClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) { //nolint:gocritic // interface
	if err := ctx.Err(); err != nil {
		return llm.CompletionResponse{}, err
	}
	reply := c.factory.next(c.provider, c.model, c.credentialID, req)
	return reply.Response, reply.Err
}

func (c *scriptedClient) GetModelName() string {
	return c.model
}

// Credentials builds credential candidates with the given ids as keys.
func Credentials(ids ...string) []config.Credential {
	out := make([]config.Credential, len(ids))
	for i, id := range ids {
		out[i] = config.Credential{ID: id, Name: id, Key: "key-" + id, Provider: config.ProviderGoogle}
	}
	return out
}

// Snapshot returns a google settings snapshot with activeModel and one credential per id,
// the first id active.
func Snapshot(activeModel string, credentialIDs ...string) *config.Snapshot {
	cfg := config.Default()
	cfg.ActiveModelID = activeModel
	cfg.APIKeys = Credentials(credentialIDs...)
	if len(credentialIDs) > 0 {
		cfg.ActiveAPIKeyID = credentialIDs[0]
	}
	return config.NewSnapshot(cfg, 1)
}
