// Package metrics provides metrics recording for LLM client operations.
package metrics

import (
	"context"
	"time"
)

// Recorder defines the interface for recording LLM operation metrics.
type Recorder interface {
	// ObserveRequest records metrics for one completed provider attempt.
	ObserveRequest(
		model, provider, component string,
		promptTokens, completionTokens int,
		success bool,
		errorKind string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(model, reason string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _, _ string, _, _ int, _ bool, _ string, _ time.Duration) {}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {}

// teeRecorder fans every observation out to several recorders.
type teeRecorder []Recorder

// Tee returns a recorder that forwards to every non-nil recorder given.
func Tee(recorders ...Recorder) Recorder {
	out := make(teeRecorder, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (t teeRecorder) ObserveRequest(model, provider, component string, promptTokens, completionTokens int, success bool, errorKind string, duration time.Duration) {
	for _, r := range t {
		r.ObserveRequest(model, provider, component, promptTokens, completionTokens, success, errorKind, duration)
	}
}

func (t teeRecorder) IncThrottle(model, reason string) {
	for _, r := range t {
		r.IncThrottle(model, reason)
	}
}

type componentKey struct{}

// WithComponent labels every request made with ctx as coming from component
// (the supervisor or a worker name).
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey{}, component)
}

// ComponentFrom returns the component label stored by WithComponent, or "unknown".
func ComponentFrom(ctx context.Context) string {
	if c, ok := ctx.Value(componentKey{}).(string); ok && c != "" {
		return c
	}
	return "unknown"
}
