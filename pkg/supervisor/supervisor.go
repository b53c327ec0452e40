// Package supervisor implements the routing step: one classification call that picks
// the next worker or FINISH from a closed set.
package supervisor

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/logx"
	"aura/pkg/state"
	"aura/pkg/templates"
	"aura/pkg/tools"
	"aura/pkg/utils"
	"aura/pkg/workers"
)

// Name is the supervisor's actor name in messages and audit entries.
const Name = "Supervisor"

// RouteToolName is the tool the model calls to report its decision.
const RouteToolName = "route"

// ActionRoute is the supervisor's audit action.
const ActionRoute = "Route"

// maxAnswers is the number of routing answers accepted before a RoutingFault:
// the first answer plus one corrective re-ask.
const maxAnswers = 2

// RoutingFault is returned when the model twice answers outside the closed set.
type RoutingFault struct {
	Answers []string
}

func (e *RoutingFault) Error() string {
	quoted := make([]string, len(e.Answers))
	for i, a := range e.Answers {
		quoted[i] = fmt.Sprintf("%q", a)
	}
	return fmt.Sprintf("routing fault: supervisor answered outside %v: %s",
		state.OptionNames(), strings.Join(quoted, ", "))
}

// RouteTool returns the single tool bound to the routing call. Its only parameter is
// an enum of the allowed wire names.
func RouteTool() tools.ToolDefinition {
	return tools.ToolDefinition{
		Name:        RouteToolName,
		Description: "Select who should act next.",
		InputSchema: tools.InputSchema{
			Type: "object",
			Properties: map[string]tools.Property{
				"next": {
					Type:        "string",
					Description: "The worker to act next, or FINISH when the request is addressed.",
					Enum:        state.OptionNames(),
				},
			},
			Required: []string{"next"},
		},
	}
}

// Supervisor chooses the next step of a run. It never runs worker logic.
type Supervisor struct {
	renderer *templates.Renderer
	logger   *logx.Logger
}

// New creates a Supervisor rendering its prompts with renderer.
func New(renderer *templates.Renderer) *Supervisor {
	return &Supervisor{
		renderer: renderer,
		logger:   logx.NewLogger("supervisor"),
	}
}

// Handle returns a patch whose Next is the chosen route.
//
// When the engine cannot produce an answer, the engine's user-facing text is appended
// as a reply and the run routes to FINISH. Only configuration errors, cancellation and
// a RoutingFault are returned as errors.
func (s *Supervisor) Handle(ctx context.Context, st *state.State, env workers.Env) (state.Patch, error) {
	if env.Invoker == nil || env.Snapshot == nil {
		return state.Patch{}, workers.ErrIncompleteEnv
	}
	ctx = metrics.WithComponent(ctx, "supervisor")

	msgs, err := s.messages(st)
	if err != nil {
		return state.Patch{}, err
	}
	req := invoke.NewRequest(env.Snapshot, msgs)
	req.Tools = []tools.ToolDefinition{RouteTool()}
	req.ToolChoice = llm.ToolChoiceAny
	req.Temperature = invoke.Temperature(llm.TemperatureDeterministic)

	var answers []string
	for len(answers) < maxAnswers {
		res, err := env.Invoker.Invoke(ctx, req)
		if err != nil {
			return state.Patch{}, fmt.Errorf("supervisor: %w", err)
		}
		if !res.OK() {
			s.logger.Error("Routing call failed (%s); finishing run", res.Outcome)
			return state.Patch{
				Messages: []state.Message{state.AssistantMessage(Name, res.UserMessage())},
				Next:     state.RouteFinish,
				AuditLog: []state.AuditEntry{state.NewAuditEntry(Name, ActionRoute, state.StatusFailed, map[string]any{
					"outcome":  res.Outcome.String(),
					"attempts": len(res.Errors),
				})},
			}, nil
		}

		answer := Answer(&res.Response)
		route, parseErr := state.ParseRoute(answer)
		if parseErr == nil {
			s.logger.Info("Routing to %s (model %s)", route, res.Model)
			return state.Patch{
				Next: route,
				AuditLog: []state.AuditEntry{state.NewAuditEntry(Name, ActionRoute, state.StatusSuccess, map[string]any{
					"next":    string(route),
					"model":   res.Model,
					"reasked": len(answers) > 0,
				})},
			}, nil
		}

		answers = append(answers, answer)
		s.logger.Warn("Routing answer %q is outside the allowed set", answer)
		if len(answers) == maxAnswers {
			break
		}
		reask, err := s.renderer.Render(templates.SupervisorReaskTemplate, &templates.TemplateData{
			Members: state.OptionNames(),
			Extra:   map[string]any{"Invalid": answer},
		})
		if err != nil {
			return state.Patch{}, fmt.Errorf("supervisor re-ask prompt: %w", err)
		}
		req.Messages = append(slices.Clone(req.Messages), llm.NewUserMessage(reask))
	}

	fault := &RoutingFault{Answers: answers}
	s.logger.Error("%v", fault)
	return state.Patch{}, fault
}

// messages builds the routing prompt: members and responsibilities, the conversation,
// then the closing question as a user turn.
func (s *Supervisor) messages(st *state.State) ([]llm.CompletionMessage, error) {
	data := &templates.TemplateData{Members: state.OptionNames()}
	system, err := s.renderer.Render(templates.SupervisorTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("supervisor prompt: %w", err)
	}
	question, err := s.renderer.Render(templates.SupervisorSelectTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("supervisor prompt: %w", err)
	}

	history := state.ToCompletionMessages(st.Messages)
	out := make([]llm.CompletionMessage, 0, len(history)+2)
	out = append(out, llm.NewSystemMessage(system))
	out = append(out, history...)
	out = append(out, llm.NewUserMessage(question))
	return out, nil
}

// Answer extracts the routing answer from a reply: the route tool's next argument,
// falling back to the text content.
func Answer(resp *llm.CompletionResponse) string {
	for i := range resp.ToolCalls {
		call := &resp.ToolCalls[i]
		if call.Name != RouteToolName {
			continue
		}
		if next, ok := utils.NonEmptyString(call.Parameters, "next"); ok {
			return next
		}
	}
	return strings.TrimSpace(resp.Content)
}
