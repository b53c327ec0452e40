package workers

import (
	"context"
	"errors"
	"strings"
	"time"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/toolloop"
	"aura/pkg/state"
	"aura/pkg/templates"
	"aura/pkg/tools"
	"aura/pkg/utils"
)

// Timekeeper audit actions.
const (
	ActionSchedule    = "Schedule"
	ActionCallingTool = "Calling Tool"
	ActionToolResult  = "Tool Result"
)

// UserEmailKey is the user-context key identifying whose calendar to use.
const UserEmailKey = "email"

// NoIdentityMessage is the Timekeeper's reply when the user cannot be identified.
const NoIdentityMessage = "I cannot access your calendar because I don't know who you are. " +
	"Please ensure you are logged in and connected to Google."

// ErrCalendarUnavailable is reported by the tool when no calendar backend is connected.
var ErrCalendarUnavailable = errors.New("calendar is not connected")

// Timekeeper executes calendar actions through the create_event tool.
type Timekeeper struct {
	specialist
}

// NewTimekeeper creates the Timekeeper worker.
func NewTimekeeper(renderer *templates.Renderer) *Timekeeper {
	return &Timekeeper{specialist: newSpecialist(state.RouteTimekeeper, templates.TimekeeperTemplate, renderer)}
}

// Handle asks the model for calendar actions, runs at most one tool round and
// replies with the follow-up answer.
func (t *Timekeeper) Handle(ctx context.Context, st *state.State, env Env) (state.Patch, error) {
	if err := env.validate(); err != nil {
		return state.Patch{}, err
	}
	email, ok := utils.NonEmptyString(st.UserContext, UserEmailKey)
	if !ok {
		t.logger.Warn("No user email in context; skipping calendar access")
		return state.Patch{
			Messages: []state.Message{state.AssistantMessage(t.name, NoIdentityMessage)},
			AuditLog: []state.AuditEntry{state.NewAuditEntry(t.name, ActionSchedule, state.StatusFailed,
				map[string]any{"reason": "No Email"})},
		}, nil
	}
	ctx = t.label(ctx)

	creator := env.Calendar
	if creator == nil {
		creator = disconnectedCalendar{}
	}
	registry := tools.NewRegistry(tools.NewCreateEventTool(creator, email))

	msgs, err := t.messages(st, &env, &templates.TemplateData{
		CurrentTime:       env.now().Format(time.RFC3339),
		ToolDocumentation: registry.PromptDocumentation(),
	})
	if err != nil {
		return state.Patch{}, err
	}
	req := invoke.NewRequest(env.Snapshot, msgs)
	req.Tools = registry.Definitions()
	req.ToolChoice = llm.ToolChoiceAuto
	req.Temperature = invoke.Temperature(llm.TemperatureDeterministic)

	first, err := env.Invoker.Invoke(ctx, req)
	if err != nil {
		return state.Patch{}, err
	}
	if !first.OK() {
		return t.failed(ActionSchedule, &first), nil
	}
	if len(first.Response.ToolCalls) == 0 {
		return t.replied(ActionSchedule, state.StatusSuccess, &first), nil
	}

	var audit []state.AuditEntry
	loop := toolloop.New(env.Invoker, t.logger)
	out, err := loop.Run(ctx, &toolloop.Config{
		Request:  req,
		Registry: registry,
		OnToolCall: func(call llm.ToolCall) {
			audit = append(audit, state.NewAuditEntry(t.name, ActionCallingTool, state.StatusSuccess, map[string]any{
				"tool": call.Name,
				"args": call.Parameters,
			}))
		},
		OnToolResult: func(exec toolloop.Execution) {
			audit = append(audit, state.NewAuditEntry(t.name, ActionToolResult, toolStatus(&exec), map[string]any{
				"tool":   exec.Call.Name,
				"result": exec.Result,
			}))
		},
	}, first)
	if err != nil {
		return state.Patch{}, err
	}

	messages := make([]state.Message, 0, len(out.Executions)+2)
	call := state.AssistantMessage(t.name, first.Response.Content)
	call.ToolCalls = state.FromToolCalls(first.Response.ToolCalls)
	messages = append(messages, call)
	for i := range out.Executions {
		exec := &out.Executions[i]
		messages = append(messages, state.ToolResultMessage(exec.Call.ID, exec.Call.Name, exec.Result))
	}

	if out.Kind == toolloop.OutcomeFollowUpFailed {
		failure := t.failed(ActionSchedule, &out.Final)
		messages = append(messages, failure.Messages...)
		audit = append(audit, failure.AuditLog...)
	} else {
		reply := strings.TrimSpace(out.Final.Response.Content)
		if reply == "" {
			reply = "Action Taken: " + out.Executions[len(out.Executions)-1].Result
		}
		messages = append(messages, state.AssistantMessage(t.name, reply))
		detail := map[string]any{"model": out.Final.Model, "tool_calls": len(out.Executions)}
		if out.IgnoredToolCalls > 0 {
			detail["ignored_tool_calls"] = out.IgnoredToolCalls
		}
		audit = append(audit, state.NewAuditEntry(t.name, ActionSchedule, state.StatusSuccess, detail))
	}

	return state.Patch{Messages: messages, AuditLog: audit}, nil
}

// toolStatus maps a tool execution to an audit status. Tool failures come back as text.
func toolStatus(exec *toolloop.Execution) string {
	if exec.Skipped || strings.HasPrefix(exec.Result, "Error:") || strings.HasPrefix(exec.Result, "Failed") {
		return state.StatusFailed
	}
	return state.StatusSuccess
}

type disconnectedCalendar struct{}

func (disconnectedCalendar) CreateEvent(context.Context, string, tools.Event) (tools.CreatedEvent, error) {
	return tools.CreatedEvent{}, ErrCalendarUnavailable
}
