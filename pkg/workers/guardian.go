package workers

import (
	"context"
	"strings"

	"aura/pkg/state"
	"aura/pkg/templates"
)

// GuardianVerdictKey is the task-context key holding the Guardian's last verdict.
const GuardianVerdictKey = "guardian_verdict"

// ActionHealthCheck is the Guardian's audit action.
const ActionHealthCheck = "Health Check"

const vetoPrefix = "VETO"

// Guardian checks requests and plans against the user's wellbeing and may veto them.
type Guardian struct {
	specialist
}

// NewGuardian creates the Guardian worker.
func NewGuardian(renderer *templates.Renderer) *Guardian {
	return &Guardian{specialist: newSpecialist(state.RouteGuardian, templates.GuardianTemplate, renderer)}
}

// Handle reviews the conversation and the proposed plan.
func (g *Guardian) Handle(ctx context.Context, st *state.State, env Env) (state.Patch, error) {
	if err := env.validate(); err != nil {
		return state.Patch{}, err
	}
	data := &templates.TemplateData{Extra: map[string]any{
		"Plan": contextString(st.ProposedPlan, PlanSummaryKey),
	}}
	res, err := g.ask(g.label(ctx), st, &env, data)
	if err != nil {
		return state.Patch{}, err
	}
	if !res.OK() {
		return g.failed(ActionHealthCheck, &res), nil
	}

	status := Verdict(res.Response.Content)
	patch := g.replied(ActionHealthCheck, status, &res)
	patch.TaskContext = map[string]any{GuardianVerdictKey: status}
	return patch, nil
}

// Verdict returns Vetoed when reply starts with VETO and Approved otherwise.
func Verdict(reply string) string {
	if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(reply)), vetoPrefix) {
		return state.StatusVetoed
	}
	return state.StatusApproved
}
