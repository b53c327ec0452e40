package workers

import (
	"context"

	"aura/pkg/state"
	"aura/pkg/templates"
)

// Proposed-plan keys written by the Strategist.
const (
	PlanSummaryKey = "summary"
	PlanAuthorKey  = "author"
)

// ActionCreatedPlan is the Strategist's audit action.
const ActionCreatedPlan = "Created Plan"

// Strategist breaks tasks down into plans.
type Strategist struct {
	specialist
}

// NewStrategist creates the Strategist worker.
func NewStrategist(renderer *templates.Renderer) *Strategist {
	return &Strategist{specialist: newSpecialist(state.RouteStrategist, templates.StrategistTemplate, renderer)}
}

// Handle drafts a plan and records it as the proposed plan.
func (s *Strategist) Handle(ctx context.Context, st *state.State, env Env) (state.Patch, error) {
	if err := env.validate(); err != nil {
		return state.Patch{}, err
	}
	data := &templates.TemplateData{Extra: map[string]any{
		"Analysis": contextString(st.TaskContext, ScribeAnalysisKey),
	}}
	res, err := s.ask(s.label(ctx), st, &env, data)
	if err != nil {
		return state.Patch{}, err
	}
	if !res.OK() {
		return s.failed(ActionCreatedPlan, &res), nil
	}

	patch := s.replied(ActionCreatedPlan, state.StatusSuccess, &res)
	patch.ProposedPlan = map[string]any{
		PlanSummaryKey: res.Response.Content,
		PlanAuthorKey:  s.Name(),
	}
	return patch, nil
}
