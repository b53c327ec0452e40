// Package graph runs the orchestration state machine: the supervisor picks a step,
// the chosen worker runs, control returns to the supervisor, until FINISH.
package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aura/pkg/logx"
	"aura/pkg/state"
	"aura/pkg/workers"
)

// NodeSupervisor is the trace name of the supervisor step.
const NodeSupervisor = "Supervisor"

var (
	// ErrTurnLimit is returned when a run would exceed Options.MaxWorkerTurns.
	ErrTurnLimit = errors.New("worker turn limit reached")
	// ErrWorkerSetNext is returned when a worker patch carries a routing decision.
	ErrWorkerSetNext = errors.New("worker patch set the routing decision")
	// ErrNoDecision is returned when a supervisor patch carries no routing decision.
	ErrNoDecision = errors.New("supervisor returned no routing decision")
)

// Router is the supervisor step.
type Router interface {
	Handle(ctx context.Context, st *state.State, env workers.Env) (state.Patch, error)
}

// Dispatcher resolves a route to its worker.
type Dispatcher interface {
	Lookup(route state.Route) (workers.Worker, error)
}

// Options bounds a run.
type Options struct {
	// MaxWorkerTurns caps worker visits per run. Zero means unlimited.
	MaxWorkerTurns int
}

// Result is the outcome of one run. It is returned on error too, holding every
// patch applied before the failure.
type Result struct {
	State       *state.State
	// Trace lists visited nodes in order, ending with FINISH on a completed run.
	Trace       []string
	NewMessages []state.Message
	RunID       string
}

// Graph wires the supervisor to the workers. It keeps no per-run state and may be
// shared between concurrent runs.
type Graph struct {
	supervisor Router
	workers    Dispatcher
	logger     *logx.Logger
	opts       Options
}

// New creates a graph.
func New(supervisor Router, set Dispatcher, opts Options) *Graph {
	return &Graph{
		supervisor: supervisor,
		workers:    set,
		logger:     logx.NewLogger("graph"),
		opts:       opts,
	}
}

// Run drives st from the supervisor to FINISH. st is modified in place through Apply.
func (g *Graph) Run(ctx context.Context, st *state.State, env workers.Env) (*Result, error) {
	runID := logx.RunID(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = logx.WithRunID(ctx, runID)
	}
	res := &Result{State: st, RunID: runID}
	start := time.Now()
	turns := 0

	err := g.loop(ctx, st, env, res, &turns)
	res.NewMessages = st.NewMessages()
	if err != nil {
		g.logger.Error("Run %s stopped after %d worker turns: %v", runID, turns, err)
		return res, err
	}
	g.logger.Info("Run %s finished in %.2fs: %v", runID, time.Since(start).Seconds(), res.Trace)
	return res, nil
}

func (g *Graph) loop(ctx context.Context, st *state.State, env workers.Env, res *Result, turns *int) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}

		res.Trace = append(res.Trace, NodeSupervisor)
		patch, err := g.supervisor.Handle(ctx, st, env)
		if err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		if !patch.SetsNext() {
			return ErrNoDecision
		}
		st.Apply(patch)
		logx.DebugFlow(ctx, "graph", "route", st.Next.String())

		if st.Next == state.RouteFinish {
			res.Trace = append(res.Trace, state.RouteFinish.String())
			return nil
		}
		worker, err := g.workers.Lookup(st.Next)
		if err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		if g.opts.MaxWorkerTurns > 0 && *turns >= g.opts.MaxWorkerTurns {
			return fmt.Errorf("%w (%d)", ErrTurnLimit, g.opts.MaxWorkerTurns)
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run canceled: %w", err)
		}

		*turns++
		res.Trace = append(res.Trace, worker.Name())
		patch, err = worker.Handle(ctx, st, env)
		if err != nil {
			return fmt.Errorf("%s: %w", worker.Name(), err)
		}
		if patch.SetsNext() {
			return fmt.Errorf("%s: %w", worker.Name(), ErrWorkerSetNext)
		}
		st.Apply(patch)
	}
}
