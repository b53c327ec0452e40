package supervisor_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/invoke"
	"aura/pkg/agent/llm"
	"aura/pkg/state"
	"aura/pkg/supervisor"
	"aura/pkg/templates"
	"aura/pkg/testkit"
	"aura/pkg/workers"
)

func newSupervisor(t *testing.T) *supervisor.Supervisor {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)
	return supervisor.New(renderer)
}

func newEnv(f *testkit.ScriptedFactory) workers.Env {
	return workers.Env{Invoker: invoke.New(f, nil), Snapshot: testkit.Snapshot("m", "k1", "k2")}
}

func TestRoutesFromToolCall(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.Route("Timekeeper"))
	st := state.New(nil, "Add lunch tomorrow at noon", nil)

	patch, err := newSupervisor(t).Handle(context.Background(), st, newEnv(f))
	require.NoError(t, err)
	assert.Equal(t, state.RouteTimekeeper, patch.Next)
	assert.Empty(t, patch.Messages)
	require.Len(t, patch.AuditLog, 1)
	assert.Equal(t, state.StatusSuccess, patch.AuditLog[0].Status)

	calls := f.Calls()
	require.Len(t, calls, 1)
	req := calls[0].Request
	assert.Equal(t, llm.ToolChoiceAny, req.ToolChoice)
	assert.Equal(t, float32(0), req.Temperature)
	require.Len(t, req.Tools, 1)
	assert.Equal(t, supervisor.RouteToolName, req.Tools[0].Name)
	assert.Equal(t, []string{"Scribe", "Timekeeper", "Strategist", "Guardian", "FINISH"},
		req.Tools[0].InputSchema.Properties["next"].Enum)

	require.Len(t, req.Messages, 3)
	assert.Contains(t, req.Messages[0].Content, "Chief of Staff")
	assert.Equal(t, "Add lunch tomorrow at noon", req.Messages[1].Content)
	assert.True(t, strings.HasPrefix(req.Messages[2].Content,
		"Given the conversation above, who should act next? Select one: Scribe, Timekeeper, Strategist, Guardian, FINISH"))
}

func TestRoutesFromTextFallback(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.Text(" finish. "))

	patch, err := newSupervisor(t).Handle(context.Background(), state.New(nil, "thanks!", nil), newEnv(f))
	require.NoError(t, err)
	assert.Equal(t, state.RouteFinish, patch.Next)
}

func TestReasksOnceThenRoutes(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.Route("Accountant"), testkit.Route("Strategist"))

	patch, err := newSupervisor(t).Handle(context.Background(), state.New(nil, "plan my week", nil), newEnv(f))
	require.NoError(t, err)
	assert.Equal(t, state.RouteStrategist, patch.Next)
	assert.Equal(t, true, patch.AuditLog[0].Detail["reasked"])

	calls := f.Calls()
	require.Len(t, calls, 2)
	second := calls[1].Request.Messages
	assert.Len(t, second, len(calls[0].Request.Messages)+1)
	assert.Contains(t, second[len(second)-1].Content, `"Accountant"`)
}

func TestSecondViolationIsRoutingFault(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.Route("Accountant"), testkit.Text("I think the Scribe or Guardian"))

	_, err := newSupervisor(t).Handle(context.Background(), state.New(nil, "help", nil), newEnv(f))
	var fault *supervisor.RoutingFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, []string{"Accountant", "I think the Scribe or Guardian"}, fault.Answers)
	assert.Len(t, f.Calls(), 2)
}

func TestExhaustionRoutesToFinish(t *testing.T) {
	f := testkit.NewScriptedFactory().On("", "", testkit.RateLimited())

	patch, err := newSupervisor(t).Handle(context.Background(), state.New(nil, "hello", nil), newEnv(f))
	require.NoError(t, err)
	assert.Equal(t, state.RouteFinish, patch.Next)
	require.Len(t, patch.Messages, 1)
	assert.Equal(t, supervisor.Name, patch.Messages[0].Name)
	assert.True(t, strings.HasPrefix(patch.Messages[0].Content, "⚠️ **System Overload (Rate Limit)**"))
	assert.Equal(t, state.StatusFailed, patch.AuditLog[0].Status)
	assert.Len(t, f.Calls(), 2, "one attempt per credential")
}

func TestConfigurationErrorIsReturned(t *testing.T) {
	f := testkit.NewScriptedFactory()
	env := newEnv(f)
	env.Snapshot = testkit.Snapshot("m")

	_, err := newSupervisor(t).Handle(context.Background(), state.New(nil, "hello", nil), env)
	var cfgErr *invoke.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestAnswer(t *testing.T) {
	tests := []struct {
		name string
		resp llm.CompletionResponse
		want string
	}{
		{"tool call", llm.CompletionResponse{ToolCalls: []llm.ToolCall{{Name: "route", Parameters: map[string]any{"next": "Scribe"}}}}, "Scribe"},
		{"other tool ignored", llm.CompletionResponse{Content: "Guardian", ToolCalls: []llm.ToolCall{{Name: "create_event"}}}, "Guardian"},
		{"non-string arg", llm.CompletionResponse{Content: "FINISH", ToolCalls: []llm.ToolCall{{Name: "route", Parameters: map[string]any{"next": 3}}}}, "FINISH"},
		{"text only", llm.CompletionResponse{Content: "  Timekeeper\n"}, "Timekeeper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, supervisor.Answer(&tt.resp))
		})
	}
}
