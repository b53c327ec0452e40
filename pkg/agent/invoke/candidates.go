package invoke

import (
	"slices"
	"strings"
)

// Policy controls model-candidate derivation.
type Policy struct {
	// StableFallback is appended after a "lite" active model.
	StableFallback string
	// Deprecated tiers are never appended as fallbacks.
	Deprecated []string
}

// DeriveModelCandidates returns the ordered model list for one invocation.
// The active model is always first. When it is a "lite" tier distinct from the
// stable fallback, the fallback follows, unless the fallback is deprecated.
// An empty active model yields an empty list.
func DeriveModelCandidates(active string, policy Policy) []string {
	active = strings.TrimSpace(active)
	if active == "" {
		return nil
	}
	candidates := []string{active}

	fallback := strings.TrimSpace(policy.StableFallback)
	if fallback == "" || fallback == active {
		return candidates
	}
	if !strings.Contains(strings.ToLower(active), "lite") {
		return candidates
	}
	if slices.Contains(policy.Deprecated, fallback) {
		return candidates
	}
	return append(candidates, fallback)
}
