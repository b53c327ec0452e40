package graph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/graph"
	"aura/pkg/logx"
	"aura/pkg/state"
	"aura/pkg/supervisor"
	"aura/pkg/templates"
	"aura/pkg/testkit"
	"aura/pkg/workers"
)

// scriptedRouter returns its routes in order and FINISH once they run out.
type scriptedRouter struct {
	err    error
	routes []state.Route
	seen   []int
}

func (r *scriptedRouter) Handle(_ context.Context, st *state.State, _ workers.Env) (state.Patch, error) {
	r.seen = append(r.seen, len(st.Messages))
	if r.err != nil {
		return state.Patch{}, r.err
	}
	if len(r.routes) == 0 {
		return state.Patch{Next: state.RouteFinish}, nil
	}
	next := r.routes[0]
	r.routes = r.routes[1:]
	return state.Patch{Next: next}, nil
}

type echoWorker struct {
	name  string
	patch *state.Patch
	calls int
}

func (w *echoWorker) Name() string { return w.name }

func (w *echoWorker) Handle(_ context.Context, _ *state.State, _ workers.Env) (state.Patch, error) {
	w.calls++
	if w.patch != nil {
		return *w.patch, nil
	}
	return state.Patch{Messages: []state.Message{state.AssistantMessage(w.name, "done by "+w.name)}}, nil
}

func echoSet() *workers.Set {
	return &workers.Set{
		Scribe:     &echoWorker{name: "Scribe"},
		Timekeeper: &echoWorker{name: "Timekeeper"},
		Strategist: &echoWorker{name: "Strategist"},
		Guardian:   &echoWorker{name: "Guardian"},
	}
}

func TestRunAlternatesSupervisorAndWorkers(t *testing.T) {
	router := &scriptedRouter{routes: []state.Route{state.RouteStrategist, state.RouteGuardian}}
	g := graph.New(router, echoSet(), graph.Options{})
	st := state.New([]state.Message{state.UserMessage("earlier"), state.AssistantMessage("Scribe", "ok")}, "plan my week", nil)

	res, err := g.Run(context.Background(), st, workers.Env{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Supervisor", "Strategist", "Supervisor", "Guardian", "Supervisor", "FINISH"}, res.Trace)
	assert.Equal(t, state.RouteFinish, res.State.Next)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, res.NewMessages, 3)
	assert.Equal(t, "plan my week", res.NewMessages[0].Content)
	assert.Equal(t, "done by Guardian", res.NewMessages[2].Content)

	// Each supervisor decision sees the previous worker's output.
	assert.Equal(t, []int{3, 4, 5}, router.seen)
}

func TestRunImmediateFinish(t *testing.T) {
	set := echoSet()
	res, err := graph.New(&scriptedRouter{}, set, graph.Options{}).Run(context.Background(), state.New(nil, "thanks", nil), workers.Env{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Supervisor", "FINISH"}, res.Trace)
	assert.Equal(t, 0, set.Scribe.(*echoWorker).calls)
}

func TestRunTurnLimit(t *testing.T) {
	router := &scriptedRouter{routes: []state.Route{state.RouteScribe, state.RouteScribe, state.RouteScribe}}
	res, err := graph.New(router, echoSet(), graph.Options{MaxWorkerTurns: 2}).
		Run(context.Background(), state.New(nil, "loop", nil), workers.Env{})
	require.ErrorIs(t, err, graph.ErrTurnLimit)
	assert.Equal(t, []string{"Supervisor", "Scribe", "Supervisor", "Scribe", "Supervisor"}, res.Trace)
	assert.NotContains(t, res.Trace, "FINISH", "a stopped run never reaches FINISH")
	assert.Len(t, res.NewMessages, 3, "completed patches are kept")
}

func TestRunWorkerSettingNextIsFault(t *testing.T) {
	set := echoSet()
	set.Guardian = &echoWorker{name: "Guardian", patch: &state.Patch{Next: state.RouteScribe}}
	router := &scriptedRouter{routes: []state.Route{state.RouteGuardian}}

	_, err := graph.New(router, set, graph.Options{}).Run(context.Background(), state.New(nil, "hi", nil), workers.Env{})
	require.ErrorIs(t, err, graph.ErrWorkerSetNext)
}

func TestRunSupervisorErrorsStopRun(t *testing.T) {
	boom := errors.New("boom")
	_, err := graph.New(&scriptedRouter{err: boom}, echoSet(), graph.Options{}).
		Run(context.Background(), state.New(nil, "hi", nil), workers.Env{})
	require.ErrorIs(t, err, boom)
}

func TestRunCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := graph.New(&scriptedRouter{}, echoSet(), graph.Options{}).Run(ctx, state.New(nil, "hi", nil), workers.Env{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Trace)
}

func TestRunKeepsCallerRunID(t *testing.T) {
	ctx := logx.WithRunID(context.Background(), "run-42")
	res, err := graph.New(&scriptedRouter{}, echoSet(), graph.Options{}).Run(ctx, state.New(nil, "hi", nil), workers.Env{})
	require.NoError(t, err)
	assert.Equal(t, "run-42", res.RunID)
}

// TestRunEndToEnd drives the real supervisor and workers through one scripted provider.
func TestRunEndToEnd(t *testing.T) {
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	routes := []string{"Timekeeper", "FINISH"}
	f := testkit.NewScriptedFactory().Handle(func(_, _ string, req llm.CompletionRequest) testkit.Reply {
		if len(req.Tools) == 1 && req.Tools[0].Name == supervisor.RouteToolName {
			next := routes[0]
			routes = routes[1:]
			return testkit.Route(next)
		}
		return testkit.Text("You have nothing scheduled tomorrow.")
	})
	env := workers.Env{Invoker: invoke.New(f, nil), Snapshot: testkit.Snapshot("gemini-2.5-flash", "k1")}
	st := state.New(nil, "What is on my calendar tomorrow?", map[string]any{"email": "me@example.com"})

	res, err := graph.New(supervisor.New(renderer), workers.NewSet(renderer), graph.Options{}).Run(context.Background(), st, env)
	require.NoError(t, err)
	assert.Equal(t, []string{"Supervisor", "Timekeeper", "Supervisor", "FINISH"}, res.Trace)
	require.Len(t, res.NewMessages, 2)
	assert.Equal(t, "Timekeeper", res.NewMessages[1].Name)
	assert.Len(t, f.Calls(), 3)

	actions := make([]string, len(res.State.AuditLog))
	for i, e := range res.State.AuditLog {
		actions[i] = e.Role + ":" + e.Action
	}
	assert.Equal(t, []string{"Supervisor:Route", "Timekeeper:Schedule", "Supervisor:Route"}, actions)
}
