// Package assistant composes the orchestration graph with settings, persistence and
// the calendar into the operations the HTTP API and the CLI expose.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"aura/pkg/agent/toolloop"
	"aura/pkg/config"
	"aura/pkg/graph"
	"aura/pkg/logx"
	"aura/pkg/persistence"
	"aura/pkg/state"
	"aura/pkg/supervisor"
	"aura/pkg/templates"
	"aura/pkg/tools"
	"aura/pkg/workers"
)

// ErrEmptyMessage is returned when a run is requested without user text.
var ErrEmptyMessage = errors.New("message must not be empty")

// ThreadStore is the persistence the chat operation needs.
type ThreadStore interface {
	CreateThread(ctx context.Context, title string) (*persistence.Thread, error)
	GetThread(ctx context.Context, id string) (*persistence.Thread, error)
	History(ctx context.Context, threadID string) ([]state.Message, error)
	AppendMessages(ctx context.Context, threadID string, msgs []state.Message) error
	AppendAudit(ctx context.Context, threadID, runID string, entries []state.AuditEntry) error
}

// Deps are the collaborators of a Service. Threads and Calendar may be nil.
type Deps struct {
	Settings *config.Store
	Invoker  toolloop.Invoker
	Threads  ThreadStore
	Calendar tools.EventCreator
	Renderer *templates.Renderer
}

// Service runs conversations through the orchestration graph.
type Service struct {
	settings   *config.Store
	invoker    toolloop.Invoker
	threads    ThreadStore
	calendar   tools.EventCreator
	supervisor *supervisor.Supervisor
	workers    *workers.Set
	logger     *logx.Logger
	now        func() time.Time
}

// New creates a service. Settings and Invoker are required.
func New(deps Deps) (*Service, error) {
	if deps.Settings == nil || deps.Invoker == nil {
		return nil, fmt.Errorf("assistant requires settings and an invoker")
	}
	renderer := deps.Renderer
	if renderer == nil {
		var err error
		if renderer, err = templates.NewRenderer(); err != nil {
			return nil, fmt.Errorf("failed to load prompt templates: %w", err)
		}
	}
	return &Service{
		settings:   deps.Settings,
		invoker:    deps.Invoker,
		threads:    deps.Threads,
		calendar:   deps.Calendar,
		supervisor: supervisor.New(renderer),
		workers:    workers.NewSet(renderer),
		logger:     logx.NewLogger("assistant"),
		now:        time.Now,
	}, nil
}

// Settings returns the settings store the service reads snapshots from.
func (s *Service) Settings() *config.Store {
	return s.settings
}

// Run executes one stateless conversation turn. The returned result is non-nil
// whenever the graph started, including on error.
func (s *Service) Run(ctx context.Context, query string, userContext map[string]any) (*graph.Result, error) {
	if query == "" {
		return nil, ErrEmptyMessage
	}
	return s.run(ctx, state.New(nil, query, userContext))
}

// ChatResult is the outcome of one thread-aware turn.
//
//nolint:govet // fieldalignment: readability
type ChatResult struct {
	ThreadID string
	Response string
	RunID    string
	Messages []state.Message
	AuditLog []state.AuditEntry
}

// Chat runs message against the history of threadID, creating the thread when
// threadID is empty, and persists the new messages and the audit trail. New messages
// are persisted even when the run fails part-way.
func (s *Service) Chat(ctx context.Context, threadID, message string, userContext map[string]any) (*ChatResult, error) {
	if s.threads == nil {
		return nil, fmt.Errorf("chat requires thread persistence")
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	var history []state.Message
	if threadID == "" {
		thread, err := s.threads.CreateThread(ctx, persistence.ThreadTitle(message))
		if err != nil {
			return nil, err
		}
		threadID = thread.ID
	} else {
		if _, err := s.threads.GetThread(ctx, threadID); err != nil {
			return nil, err
		}
		var err error
		if history, err = s.threads.History(ctx, threadID); err != nil {
			return nil, err
		}
	}

	res, runErr := s.run(ctx, state.New(history, message, userContext))
	out := &ChatResult{ThreadID: threadID}
	if res == nil {
		return out, runErr
	}
	out.RunID = res.RunID
	out.Messages = res.NewMessages
	out.AuditLog = res.State.AuditLog
	out.Response = FinalReply(res.NewMessages)

	// Persist with a context the caller's cancellation cannot abort.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.threads.AppendMessages(persistCtx, threadID, res.NewMessages); err != nil {
		return out, errors.Join(runErr, fmt.Errorf("failed to persist messages: %w", err))
	}
	if err := s.threads.AppendAudit(persistCtx, threadID, res.RunID, res.State.AuditLog); err != nil {
		return out, errors.Join(runErr, fmt.Errorf("failed to persist audit log: %w", err))
	}
	return out, runErr
}

func (s *Service) run(ctx context.Context, st *state.State) (*graph.Result, error) {
	snap := s.settings.Snapshot()
	g := graph.New(s.supervisor, s.workers, graph.Options{MaxWorkerTurns: snap.MaxWorkerTurns()})
	env := workers.Env{
		Invoker:  s.invoker,
		Snapshot: snap,
		Calendar: s.calendar,
		Now:      s.now,
	}
	s.logger.Debug("Starting run with model %s (settings v%d)", snap.ActiveModel(), snap.Version)
	return g.Run(ctx, st, env)
}

// FinalReply returns the content of the last non-empty assistant message, or "".
func FinalReply(msgs []state.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == state.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}
