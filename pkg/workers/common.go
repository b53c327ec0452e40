package workers

import (
	"context"
	"fmt"
	"strings"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/logx"
	"aura/pkg/state"
	"aura/pkg/templates"
	"aura/pkg/utils"
)

// specialist holds what every worker shares: its name, its prompt template and a logger.
type specialist struct {
	renderer *templates.Renderer
	logger   *logx.Logger
	name     string
	prompt   templates.StateTemplate
}

func newSpecialist(route state.Route, prompt templates.StateTemplate, renderer *templates.Renderer) specialist {
	name := string(route)
	return specialist{
		renderer: renderer,
		logger:   newLogger(strings.ToLower(name)),
		name:     name,
		prompt:   prompt,
	}
}

// Name returns the worker name, which is also its route and message author.
func (s *specialist) Name() string {
	return s.name
}

// label tags ctx so per-call metrics are attributed to this worker.
func (s *specialist) label(ctx context.Context) context.Context {
	return metrics.WithComponent(ctx, strings.ToLower(s.name))
}

// messages builds the provider history: configured system instruction, worker prompt,
// then the conversation. A history ending on an assistant turn gets a handoff user turn.
func (s *specialist) messages(st *state.State, env *Env, data *templates.TemplateData) ([]llm.CompletionMessage, error) {
	prompt, err := s.renderer.Render(s.prompt, data)
	if err != nil {
		return nil, fmt.Errorf("%s prompt: %w", s.name, err)
	}

	history := state.ToCompletionMessages(st.Messages)
	out := make([]llm.CompletionMessage, 0, len(history)+3)
	if instruction := strings.TrimSpace(env.Snapshot.SystemInstruction()); instruction != "" {
		out = append(out, llm.NewSystemMessage(instruction))
	}
	out = append(out, llm.NewSystemMessage(prompt))
	out = append(out, history...)

	if n := len(out); out[n-1].Role != llm.RoleUser {
		handoff, err := s.renderer.RenderSimple(templates.HandoffTemplate, map[string]any{"Worker": s.name})
		if err != nil {
			return nil, fmt.Errorf("%s handoff: %w", s.name, err)
		}
		out = append(out, llm.NewUserMessage(handoff))
	}
	return out, nil
}

// ask makes one plain engine call with the worker prompt.
func (s *specialist) ask(ctx context.Context, st *state.State, env *Env, data *templates.TemplateData) (invoke.Result, error) {
	msgs, err := s.messages(st, env, data)
	if err != nil {
		return invoke.Result{}, err
	}
	res, err := env.Invoker.Invoke(ctx, invoke.NewRequest(env.Snapshot, msgs))
	if err != nil {
		return res, fmt.Errorf("%s: %w", s.name, err)
	}
	return res, nil
}

// failed returns the patch for an invocation that did not succeed: the engine's
// user-facing text as the reply and a Failed audit entry.
func (s *specialist) failed(action string, res *invoke.Result) state.Patch {
	s.logger.Error("%s failed: %s after %d attempts", action, res.Outcome, len(res.Errors))
	return state.Patch{
		Messages: []state.Message{state.AssistantMessage(s.name, res.UserMessage())},
		AuditLog: []state.AuditEntry{state.NewAuditEntry(s.name, action, state.StatusFailed, map[string]any{
			"outcome":  res.Outcome.String(),
			"attempts": len(res.Errors),
		})},
	}
}

// replied returns the patch for a successful single-call turn.
func (s *specialist) replied(action, status string, res *invoke.Result) state.Patch {
	s.logger.Info("%s via %s (key #%d)", action, res.Model, res.CredentialIndex+1)
	return state.Patch{
		Messages: []state.Message{state.AssistantMessage(s.name, res.Response.Content)},
		AuditLog: []state.AuditEntry{state.NewAuditEntry(s.name, action, status, map[string]any{
			"model": res.Model,
		})},
	}
}

// contextString reads a string value stored by an earlier worker.
func contextString(m map[string]any, key string) string {
	return utils.GetMapFieldOr(m, key, "")
}
