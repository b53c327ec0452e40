package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	err    error
	name   string
	result string
	panics bool
	calls  int
}

func (s *stubTool) Name() string                { return s.name }
func (s *stubTool) PromptDocumentation() string { return "- " + s.name }
func (s *stubTool) Definition() ToolDefinition {
	return ToolDefinition{Name: s.name, InputSchema: InputSchema{Type: "object"}}
}

func (s *stubTool) Exec(_ context.Context, _ map[string]any) (*ExecResult, error) {
	s.calls++
	if s.panics {
		panic("kaboom")
	}
	if s.err != nil {
		return nil, s.err
	}
	return &ExecResult{Content: s.result}, nil
}

type fakeCreator struct {
	err   error
	got   Event
	email string
}

func (f *fakeCreator) CreateEvent(_ context.Context, email string, ev Event) (CreatedEvent, error) {
	f.email = email
	f.got = ev
	if f.err != nil {
		return CreatedEvent{}, f.err
	}
	return CreatedEvent{ID: "evt1", HTMLLink: "https://calendar.example/evt1"}, nil
}

func TestRegistryInvokeNeverErrors(t *testing.T) {
	ok := &stubTool{name: "ok", result: "done"}
	failing := &stubTool{name: "failing", err: errors.New("disk full")}
	panicky := &stubTool{name: "panicky", panics: true}
	reg := NewRegistry(ok, failing, panicky)

	ctx := context.Background()
	assert.Equal(t, "done", reg.Invoke(ctx, "ok", nil))
	assert.Equal(t, "Error: disk full", reg.Invoke(ctx, "failing", nil))
	assert.Contains(t, reg.Invoke(ctx, "panicky", nil), "panicked")
	assert.Contains(t, reg.Invoke(ctx, "missing", nil), "unknown tool")
	assert.Equal(t, 1, ok.calls)
}

func TestRegistryRegister(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(&stubTool{name: "b"}))
	require.NoError(t, reg.Register(&stubTool{name: "a"}))
	require.Error(t, reg.Register(&stubTool{name: "a"}))
	require.Error(t, reg.Register(&stubTool{name: ""}))
	require.Error(t, reg.Register(nil))

	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("c"))

	defs := reg.Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, "a", defs[0].Name)
	assert.Equal(t, "- a\n- b", reg.PromptDocumentation())
}

func TestCreateEventTool(t *testing.T) {
	creator := &fakeCreator{}
	reg := NewRegistry(NewCreateEventTool(creator, "user@example.com"))

	out := reg.Invoke(context.Background(), ToolCreateEvent, map[string]any{
		"summary":     "Dentist",
		"start_time":  "2024-05-01T15:00:00",
		"end_time":    "2024-05-01T16:00:00+00:00",
		"description": "checkup",
	})

	assert.Equal(t, "Event created successfully! Link: https://calendar.example/evt1", out)
	assert.Equal(t, "user@example.com", creator.email)
	assert.Equal(t, "Dentist", creator.got.Summary)
	assert.True(t, creator.got.Start.Equal(time.Date(2024, 5, 1, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, time.Hour, creator.got.End.Sub(creator.got.Start))
}

func TestCreateEventToolFailures(t *testing.T) {
	creator := &fakeCreator{err: errors.New("token expired")}
	reg := NewRegistry(NewCreateEventTool(creator, "user@example.com"))
	ctx := context.Background()

	out := reg.Invoke(ctx, ToolCreateEvent, map[string]any{
		"summary": "Sync", "start_time": "2024-05-01T15:00", "end_time": "2024-05-01T15:30",
	})
	assert.Equal(t, "Failed to create event: token expired", out)

	out = reg.Invoke(ctx, ToolCreateEvent, map[string]any{
		"summary": "Sync", "start_time": "tomorrow", "end_time": "2024-05-01T15:30",
	})
	assert.Contains(t, out, "invalid start_time")

	out = reg.Invoke(ctx, ToolCreateEvent, map[string]any{
		"summary": "Sync", "start_time": "2024-05-01T15:30", "end_time": "2024-05-01T15:00",
	})
	assert.Contains(t, out, "end_time must be after")

	out = reg.Invoke(ctx, ToolCreateEvent, map[string]any{})
	assert.Contains(t, out, "summary is required")
}
