package assistant_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/agent/middleware/metrics"
	"aura/pkg/assistant"
	"aura/pkg/config"
	"aura/pkg/persistence"
	"aura/pkg/supervisor"
	"aura/pkg/testkit"
)

// router answers routing calls from a queue of worker names and every other call
// with reply. An empty queue routes to FINISH.
type router struct {
	mu     sync.Mutex
	routes []string
	reply  string
}

func (r *router) handle(_, _ string, req llm.CompletionRequest) testkit.Reply {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(req.Tools) == 1 && req.Tools[0].Name == supervisor.RouteToolName {
		if len(r.routes) == 0 {
			return testkit.Route("FINISH")
		}
		next := r.routes[0]
		r.routes = r.routes[1:]
		return testkit.Route(next)
	}
	return testkit.Text(r.reply)
}

func newService(t *testing.T, f *testkit.ScriptedFactory, credIDs ...string) (*assistant.Service, *persistence.DatabaseOperations) {
	t.Helper()
	db, err := persistence.InitializeDatabase(filepath.Join(t.TempDir(), "aura.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ops := persistence.NewDatabaseOperations(db)

	store := config.NewStore(testkit.Snapshot("gemini-2.5-flash", credIDs...).Config(), "")
	svc, err := assistant.New(assistant.Deps{Settings: store, Invoker: invoke.New(f, nil), Threads: ops})
	require.NoError(t, err)
	return svc, ops
}

func TestNewRequiresSettingsAndInvoker(t *testing.T) {
	_, err := assistant.New(assistant.Deps{})
	require.Error(t, err)
}

func TestRun(t *testing.T) {
	r := &router{routes: []string{"Scribe"}, reply: "Draft: Hi team, running late."}
	svc, _ := newService(t, testkit.NewScriptedFactory().Handle(r.handle), "k1")

	res, err := svc.Run(context.Background(), "Draft a note to the team", nil)
	require.NoError(t, err)
	require.Len(t, res.NewMessages, 2)
	assert.Equal(t, "Draft: Hi team, running late.", assistant.FinalReply(res.NewMessages))
	assert.Equal(t, []string{"Supervisor", "Scribe", "Supervisor", "FINISH"}, res.Trace)

	_, err = svc.Run(context.Background(), "", nil)
	require.ErrorIs(t, err, assistant.ErrEmptyMessage)
}

func TestChatCreatesThreadAndPersists(t *testing.T) {
	r := &router{routes: []string{"Strategist"}, reply: "Plan: gym at 7."}
	f := testkit.NewScriptedFactory().Handle(r.handle)
	svc, ops := newService(t, f, "k1")
	ctx := context.Background()

	out, err := svc.Chat(ctx, "", "Plan my morning", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ThreadID)
	assert.Equal(t, "Plan: gym at 7.", out.Response)

	thread, err := ops.GetThread(ctx, out.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "Plan my morning", thread.Title)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "user", thread.Messages[0].Role)
	assert.Equal(t, "Strategist", thread.Messages[1].Name)

	audit, err := ops.ListAudit(ctx, out.ThreadID)
	require.NoError(t, err)
	require.Len(t, audit, len(out.AuditLog))
	assert.Equal(t, out.RunID, audit[0].RunID)

	// The second turn sees the stored history.
	r.mu.Lock()
	r.routes = []string{"Scribe"}
	r.reply = "Noted."
	r.mu.Unlock()
	before := len(f.Calls())
	_, err = svc.Chat(ctx, out.ThreadID, "Also remind me to stretch", nil)
	require.NoError(t, err)

	first := f.Calls()[before].Request
	var contents []string
	for _, m := range first.Messages {
		contents = append(contents, m.Content)
	}
	assert.Contains(t, contents, "Plan: gym at 7.")

	history, err := ops.History(ctx, out.ThreadID)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}

func TestChatUnknownThread(t *testing.T) {
	svc, _ := newService(t, testkit.NewScriptedFactory(), "k1")
	_, err := svc.Chat(context.Background(), "missing", "hello", nil)
	require.ErrorIs(t, err, persistence.ErrThreadNotFound)
}

func TestChatWithoutKeysKeepsUserMessage(t *testing.T) {
	svc, ops := newService(t, testkit.NewScriptedFactory())
	ctx := context.Background()

	out, err := svc.Chat(ctx, "", "hello", nil)
	var cfgErr *invoke.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)

	history, err := ops.History(ctx, out.ThreadID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Content)
}

func TestDiagnose(t *testing.T) {
	f := testkit.NewScriptedFactory().On("gemini-2.5-flash", "k1", testkit.Text("online"))
	svc, _ := newService(t, f, "k1")
	usage := metrics.NewUsageRecorder()

	d := svc.Diagnose(context.Background(), usage)
	assert.True(t, d.Success)
	assert.Equal(t, "gemini-2.5-flash", d.ActiveModelID)
	assert.False(t, d.EnvAPIKeyPresent)

	last := d.Logs[len(d.Logs)-1]
	assert.Equal(t, assistant.StepSuccess, last.Status)
	assert.Contains(t, last.Details, "online")
	require.NoError(t, svc.Probe(context.Background()))
}

func TestDiagnoseFailures(t *testing.T) {
	t.Run("no keys", func(t *testing.T) {
		svc, _ := newService(t, testkit.NewScriptedFactory())
		d := svc.Diagnose(context.Background(), nil)
		assert.False(t, d.Success)
		assert.Equal(t, assistant.StepFail, d.Logs[len(d.Logs)-1].Status)

		var cfgErr *invoke.ConfigurationError
		assert.True(t, errors.As(svc.Probe(context.Background()), &cfgErr))
	})

	t.Run("rate limited", func(t *testing.T) {
		f := testkit.NewScriptedFactory().
			On("gemini-2.5-flash", "k1", testkit.RateLimited()).
			On("gemini-2.5-flash", "k2", testkit.RateLimited())
		svc, _ := newService(t, f, "k1", "k2")

		d := svc.Diagnose(context.Background(), nil)
		assert.False(t, d.Success)
		var statuses []string
		for _, l := range d.Logs {
			statuses = append(statuses, l.Status)
		}
		assert.Contains(t, statuses, assistant.StepQuota)

		var exhausted *invoke.ExhaustionError
		require.True(t, errors.As(svc.Probe(context.Background()), &exhausted))
		assert.True(t, exhausted.RateLimited)
	})
}
