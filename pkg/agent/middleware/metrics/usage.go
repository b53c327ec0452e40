package metrics

import (
	"sort"
	"sync"
	"time"
)

// UsageRecorder implements the Recorder interface using in-memory per-model aggregation.
// It backs the diagnose endpoint when no Prometheus server is configured.
type UsageRecorder struct {
	models map[string]*ModelUsage
	mu     sync.RWMutex
}

// ModelUsage represents aggregated usage for one model.
//
//nolint:govet
type ModelUsage struct {
	Model            string    `json:"model"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens"`
	RequestCount     int64     `json:"request_count"`
	ErrorCount       int64     `json:"error_count"`
	ThrottleCount    int64     `json:"throttle_count"`
	LastUpdated      time.Time `json:"last_updated"`
}

// NewUsageRecorder returns an empty usage recorder.
func NewUsageRecorder() *UsageRecorder {
	return &UsageRecorder{models: make(map[string]*ModelUsage)}
}

func (r *UsageRecorder) entry(model string) *ModelUsage {
	u, ok := r.models[model]
	if !ok {
		u = &ModelUsage{Model: model}
		r.models[model] = u
	}
	return u
}

// ObserveRequest records one attempt.
func (r *UsageRecorder) ObserveRequest(model, _, _ string, promptTokens, completionTokens int, success bool, _ string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u := r.entry(model)
	u.RequestCount++
	if success {
		u.PromptTokens += int64(promptTokens)
		u.CompletionTokens += int64(completionTokens)
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	} else {
		u.ErrorCount++
	}
	u.LastUpdated = time.Now()
}

// IncThrottle counts a rate-limit event for model.
func (r *UsageRecorder) IncThrottle(model, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entry(model).ThrottleCount++
}

// Snapshot returns copies of all per-model usage, sorted by model name.
func (r *UsageRecorder) Snapshot() []ModelUsage {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelUsage, 0, len(r.models))
	for _, u := range r.models {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out
}

// Reset clears all usage (useful for testing).
func (r *UsageRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*ModelUsage)
}
