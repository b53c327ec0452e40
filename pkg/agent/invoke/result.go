package invoke

import (
	"fmt"
	"strings"

	"aura/pkg/agent/llm"
	"aura/pkg/agent/llmerrors"
)

// MaxLoggedAttempts bounds the error log shown in user-facing messages.
const MaxLoggedAttempts = 5

// Outcome classifies an invocation result.
type Outcome int

const (
	// OutcomeSuccess means one pair produced a response.
	OutcomeSuccess Outcome = iota
	// OutcomeRateLimited means every pair failed and the last failure was a quota rejection.
	OutcomeRateLimited
	// OutcomeExhausted means every pair failed.
	OutcomeExhausted
)

// String returns human-readable name for Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "Success"
	case OutcomeRateLimited:
		return "RateLimited"
	case OutcomeExhausted:
		return "Exhausted"
	default:
		return fmt.Sprintf("Outcome(%d)", o)
	}
}

// Attempt is one failed (model, credential) entry in the ordered error log.
//
//nolint:govet // fieldalignment: readability
type Attempt struct {
	Model           string
	CredentialIndex int
	CredentialID    string
	Kind            llmerrors.Kind
	Err             error
}

func (a Attempt) String() string { //nolint:gocritic // value receiver for fmt
	return fmt.Sprintf("%s key#%d: %s: %v", a.Model, a.CredentialIndex, a.Kind, a.Err)
}

// Result is the typed outcome of Engine.Invoke.
//
//nolint:govet // fieldalignment: readability
type Result struct {
	Outcome  Outcome
	Response llm.CompletionResponse

	// Provenance of a successful response.
	Model           string
	CredentialIndex int
	CredentialID    string

	// Errors is the ordered log of failed attempts, including those before a success.
	Errors               []Attempt
	ModelsAttempted      int
	CredentialsAttempted int
}

// OK reports whether the invocation produced a response.
func (r *Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Err returns nil on success and an *ExhaustionError otherwise.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return &ExhaustionError{
		RateLimited: r.Outcome == OutcomeRateLimited,
		Attempts:    r.Errors,
		Models:      r.ModelsAttempted,
		Credentials: r.CredentialsAttempted,
	}
}

// UserMessage renders the assistant text shown when the invocation failed.
// It is empty on success.
func (r *Result) UserMessage() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return ""
	case OutcomeRateLimited:
		model := ""
		if n := len(r.Errors); n > 0 {
			model = r.Errors[n-1].Model
		}
		return fmt.Sprintf("⚠️ **System Overload (Rate Limit)**\n\n"+
			"The model `%s` is currently rejecting requests due to high traffic or quota limits (Error 429). "+
			"All %d configured API keys were tried.\n\n"+
			"*Suggestion*: Try again in a few seconds, or switch to a different model or API key in Settings.",
			model, r.CredentialsAttempted)
	default:
		var sb strings.Builder
		fmt.Fprintf(&sb, "❌ **System Error: All attempts failed.**\n\n")
		fmt.Fprintf(&sb, "Tried %d models with %d API keys.\n\n**Debug Log:**\n", r.ModelsAttempted, r.CredentialsAttempted)
		for i := range r.Errors {
			if i == MaxLoggedAttempts {
				fmt.Fprintf(&sb, "- ... %d more\n", len(r.Errors)-MaxLoggedAttempts)
				break
			}
			a := &r.Errors[i]
			fmt.Fprintf(&sb, "- **%s** (key #%d): %s\n", a.Model, a.CredentialIndex, llmerrors.SanitizePrompt(errString(a.Err), 300))
		}
		sb.WriteString("\n*Check the Debug tab in Settings for more diagnostics.*")
		return sb.String()
	}
}

func errString(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
