package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
)

type stubClient struct {
	err  error
	resp llm.CompletionResponse
}

func (s stubClient) Complete(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) { //nolint:gocritic // interface
	return s.resp, s.err
}

func (s stubClient) GetModelName() string { return "gemini-2.5-flash" }

func TestMiddlewareRecordsSuccess(t *testing.T) {
	usage := NewUsageRecorder()
	client := llm.Chain(stubClient{resp: llm.CompletionResponse{Content: "hello there"}}, Middleware(usage, "google", nil, nil))

	ctx := WithComponent(context.Background(), "Scribe")
	_, err := client.Complete(ctx, llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)

	snap := usage.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "gemini-2.5-flash", snap[0].Model)
	assert.Equal(t, int64(1), snap[0].RequestCount)
	assert.Positive(t, snap[0].CompletionTokens)
	assert.Zero(t, snap[0].ErrorCount)
}

func TestMiddlewareRecordsThrottle(t *testing.T) {
	usage := NewUsageRecorder()
	rateLimited := llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	client := llm.Chain(stubClient{err: rateLimited}, Middleware(usage, "google", nil, nil))

	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.ErrorIs(t, err, rateLimited)

	snap := usage.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].ErrorCount)
	assert.Equal(t, int64(1), snap[0].ThrottleCount)
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRequest("m", "google", "Supervisor", 10, 5, true, "", time.Millisecond)
	rec.ObserveRequest("m", "google", "Supervisor", 0, 0, false, "Other", time.Millisecond)
	rec.IncThrottle("m", "rate_limited")

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.InDelta(t, 2, values["llm_requests_total"], 0)
	assert.InDelta(t, 15, values["llm_tokens_total"], 0)
	assert.InDelta(t, 1, values["llm_throttle_total"], 0)
}

func TestTeeAndComponent(t *testing.T) {
	a, b := NewUsageRecorder(), NewUsageRecorder()
	tee := Tee(a, nil, b)
	tee.ObserveRequest("m", "p", "c", 1, 1, true, "", 0)
	tee.IncThrottle("m", "x")
	assert.Len(t, a.Snapshot(), 1)
	assert.Len(t, b.Snapshot(), 1)

	assert.Equal(t, "unknown", ComponentFrom(context.Background()))
	assert.Equal(t, "Guardian", ComponentFrom(WithComponent(context.Background(), "Guardian")))

	a.Reset()
	assert.Empty(t, a.Snapshot())
}
