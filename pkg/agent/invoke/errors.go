package invoke

import (
	"fmt"
	"strings"
)

// ConfigurationError reports an invocation that cannot be attempted at all,
// such as empty model or credential lists. No remote call is made.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "invocation configuration error: " + e.Reason
}

// ExhaustionError reports that every (model, credential) pair failed.
//
//nolint:govet // fieldalignment: readability
type ExhaustionError struct {
	// RateLimited is true when the final attempt was rejected for quota.
	RateLimited bool
	Attempts    []Attempt
	Models      int
	Credentials int
}

func (e *ExhaustionError) Error() string {
	kind := "exhausted"
	if e.RateLimited {
		kind = "rate limited"
	}
	parts := make([]string, 0, len(e.Attempts))
	for i := range e.Attempts {
		parts = append(parts, e.Attempts[i].String())
	}
	return fmt.Sprintf("invocation %s after %d attempts across %d models and %d credentials: %s",
		kind, len(e.Attempts), e.Models, e.Credentials, strings.Join(parts, "; "))
}
