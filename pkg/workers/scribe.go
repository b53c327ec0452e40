package workers

import (
	"context"

	"aura/pkg/state"
	"aura/pkg/templates"
)

// ScribeAnalysisKey is the task-context key holding the Scribe's latest analysis.
const ScribeAnalysisKey = "scribe_analysis"

// ActionAnalyzed is the Scribe's audit action.
const ActionAnalyzed = "Analyzed Communication"

// Scribe reads, writes and analyzes emails and messages.
type Scribe struct {
	specialist
}

// NewScribe creates the Scribe worker.
func NewScribe(renderer *templates.Renderer) *Scribe {
	return &Scribe{specialist: newSpecialist(state.RouteScribe, templates.ScribeTemplate, renderer)}
}

// Handle analyzes the conversation and stores the analysis in the task context.
func (s *Scribe) Handle(ctx context.Context, st *state.State, env Env) (state.Patch, error) {
	if err := env.validate(); err != nil {
		return state.Patch{}, err
	}
	res, err := s.ask(s.label(ctx), st, &env, nil)
	if err != nil {
		return state.Patch{}, err
	}
	if !res.OK() {
		return s.failed(ActionAnalyzed, &res), nil
	}

	patch := s.replied(ActionAnalyzed, state.StatusSuccess, &res)
	patch.TaskContext = map[string]any{ScribeAnalysisKey: res.Response.Content}
	return patch, nil
}
