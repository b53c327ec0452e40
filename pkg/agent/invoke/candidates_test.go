package invoke

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveModelCandidates(t *testing.T) {
	policy := Policy{
		StableFallback: "gemini-2.5-flash",
		Deprecated:     []string{"gemini-1.5-flash", "gemini-2.0-flash-exp"},
	}

	tests := []struct {
		name   string
		active string
		policy Policy
		want   []string
	}{
		{"lite gets fallback", "gemini-2.5-flash-lite", policy, []string{"gemini-2.5-flash-lite", "gemini-2.5-flash"}},
		{"non lite stays alone", "gemini-2.5-pro", policy, []string{"gemini-2.5-pro"}},
		{"flash preview stays alone", "gemini-2.5-flash-preview-09-2025", policy, []string{"gemini-2.5-flash-preview-09-2025"}},
		{"active equals fallback", "gemini-2.5-flash", policy, []string{"gemini-2.5-flash"}},
		{"lite equal to fallback not duplicated", "x-lite", Policy{StableFallback: "x-lite"}, []string{"x-lite"}},
		{"deprecated fallback never appended", "gemini-1.5-flash-lite", Policy{StableFallback: "gemini-1.5-flash", Deprecated: policy.Deprecated}, []string{"gemini-1.5-flash-lite"}},
		{"no fallback configured", "x-lite", Policy{}, []string{"x-lite"}},
		{"empty active", "  ", policy, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveModelCandidates(tt.active, tt.policy))
		})
	}
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "Success", OutcomeSuccess.String())
	assert.Equal(t, "RateLimited", OutcomeRateLimited.String())
	assert.Equal(t, "Exhausted", OutcomeExhausted.String())
	assert.Equal(t, "Outcome(9)", Outcome(9).String())
}
