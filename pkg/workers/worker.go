// Package workers implements the specialist handlers the supervisor dispatches to.
//
// A worker reads the conversation state, makes its own model calls through the
// invocation engine and returns a state.Patch. Workers never set the routing decision.
package workers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aura/pkg/agent/toolloop"
	"aura/pkg/config"
	"aura/pkg/logx"
	"aura/pkg/state"
	"aura/pkg/templates"
	"aura/pkg/tools"
)

var (
	// ErrNotWorker is returned by Lookup for routes that name no worker.
	ErrNotWorker = errors.New("route does not name a worker")
	// ErrIncompleteEnv is returned when a worker runs without an invoker or snapshot.
	ErrIncompleteEnv = errors.New("worker environment requires an invoker and a settings snapshot")
)

// Env carries the collaborators of one run.
type Env struct {
	// Invoker is the resilient invocation engine.
	Invoker toolloop.Invoker
	// Snapshot is the settings captured at run start.
	Snapshot *config.Snapshot
	// Calendar backs the create_event tool. Nil means no calendar is connected.
	Calendar tools.EventCreator
	// Now returns the current time. Nil means time.Now.
	Now func() time.Time
}

func (e *Env) validate() error {
	if e.Invoker == nil || e.Snapshot == nil {
		return ErrIncompleteEnv
	}
	return nil
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Worker handles one dispatch from the supervisor.
type Worker interface {
	Name() string
	Handle(ctx context.Context, st *state.State, env Env) (state.Patch, error)
}

// Set holds one worker per route.
type Set struct {
	Scribe     Worker
	Timekeeper Worker
	Strategist Worker
	Guardian   Worker
}

// NewSet returns the standard workers rendering their prompts with renderer.
func NewSet(renderer *templates.Renderer) *Set {
	return &Set{
		Scribe:     NewScribe(renderer),
		Timekeeper: NewTimekeeper(renderer),
		Strategist: NewStrategist(renderer),
		Guardian:   NewGuardian(renderer),
	}
}

// Lookup returns the worker for route.
func (s *Set) Lookup(route state.Route) (Worker, error) {
	var w Worker
	switch route {
	case state.RouteScribe:
		w = s.Scribe
	case state.RouteTimekeeper:
		w = s.Timekeeper
	case state.RouteStrategist:
		w = s.Strategist
	case state.RouteGuardian:
		w = s.Guardian
	case state.RouteFinish, state.RouteUnset:
		return nil, fmt.Errorf("%w: %s", ErrNotWorker, route)
	default:
		return nil, fmt.Errorf("%w: %q", state.ErrUnknownRoute, string(route))
	}
	if w == nil {
		return nil, fmt.Errorf("no handler registered for %s", route)
	}
	return w, nil
}

func newLogger(name string) *logx.Logger {
	return logx.NewLogger("worker." + name)
}
