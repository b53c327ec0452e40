// Package llmerrors provides structured error classification for LLM API interactions.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType represents the provider-level category of an LLM error.
type ErrorType int8

const (
	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded, resource exhausted).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeNotFound represents an unknown model or endpoint (404).
	ErrorTypeNotFound
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeNotFound:
		return "not_found"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Kind is the coarse class the invocation engine acts on.
type Kind int8

const (
	// KindOther covers timeouts, network faults, bad prompts and anything unclassified.
	KindOther Kind = iota
	// KindRateLimited means the credential hit a quota; the next credential may succeed.
	KindRateLimited
	// KindUnauthorized means the credential was rejected.
	KindUnauthorized
	// KindNotFound means the model identifier is unknown to the provider.
	KindNotFound
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "RateLimited"
	case KindUnauthorized:
		return "Unauthorized"
	case KindNotFound:
		return "NotFound"
	default:
		return "Other"
	}
}

// Error represents a classified LLM error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// Kind maps the provider-level type to the engine class.
func (e *Error) Kind() Kind {
	switch e.Type {
	case ErrorTypeRateLimit:
		return KindRateLimited
	case ErrorTypeAuth:
		return KindUnauthorized
	case ErrorTypeNotFound:
		return KindNotFound
	default:
		return KindOther
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// Classify returns the engine class of any error returned by a client.
// Unclassified errors are inspected textually so raw SDK errors still cascade correctly.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Kind()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindOther
	}
	return FromError(err, "").Kind()
}

// NewError creates a new classified LLM error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a new classified LLM error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a new classified LLM error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// TypeForStatus maps an HTTP status code to an error type and reports whether it is recognized.
func TypeForStatus(statusCode int) (ErrorType, bool) {
	switch {
	case statusCode == 401 || statusCode == 403:
		return ErrorTypeAuth, true
	case statusCode == 404:
		return ErrorTypeNotFound, true
	case statusCode == 429:
		return ErrorTypeRateLimit, true
	case statusCode == 400 || statusCode == 413:
		return ErrorTypeBadPrompt, true
	case statusCode >= 500 && statusCode <= 599:
		return ErrorTypeTransient, true
	default:
		return ErrorTypeUnknown, false
	}
}

var statusPattern = regexp.MustCompile(`(?i)(?:status code:?|status:|http|error|code|":)\s*:?\s*(\d{3})\b`)

// ExtractStatusCode attempts to extract an HTTP status code from an error string.
// SDKs commonly render errors as "Error 429, ..." or "... status code: 404".
func ExtractStatusCode(errStr string) int {
	for _, m := range statusPattern.FindAllStringSubmatch(errStr, -1) {
		code, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, known := TypeForStatus(code); known {
			return code
		}
	}
	return 0
}

// FromError classifies a raw provider error by status code and message patterns.
// prefix is prepended to the message, e.g. "Gemini API call failed".
func FromError(err error, prefix string) *Error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if prefix != "" {
		msg = prefix + ": " + msg
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Type: ErrorTypeTransient, Err: err, Message: "request timeout: " + msg}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Type: ErrorTypeTransient, Err: err, Message: "request canceled: " + msg}
	}

	errStr := err.Error()
	if code := ExtractStatusCode(errStr); code != 0 {
		t, _ := TypeForStatus(code)
		return &Error{Type: t, Err: err, StatusCode: code, Message: msg}
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "resource_exhausted") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "too many requests"):
		return &Error{Type: ErrorTypeRateLimit, Err: err, Message: msg}
	case strings.Contains(lower, "permission_denied") ||
		strings.Contains(lower, "unauthenticated") ||
		strings.Contains(lower, "api key not valid") ||
		strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "unauthorized"):
		return &Error{Type: ErrorTypeAuth, Err: err, Message: msg}
	case strings.Contains(lower, "not_found") ||
		(strings.Contains(lower, "model") && strings.Contains(lower, "not found")):
		return &Error{Type: ErrorTypeNotFound, Err: err, Message: msg}
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "eof") ||
		strings.Contains(lower, "reset"):
		return &Error{Type: ErrorTypeTransient, Err: err, Message: msg}
	default:
		return &Error{Type: ErrorTypeUnknown, Err: err, Message: msg}
	}
}

// SanitizePrompt creates a safe representation of a prompt for logging.
// For large prompts, it returns first/last portions plus a hash of the full content.
func SanitizePrompt(prompt string, maxChars int) string {
	runes := []rune(prompt)
	if len(runes) <= maxChars {
		return prompt
	}

	halfMax := maxChars / 2
	if halfMax < 100 {
		halfMax = 100
	}
	if 2*halfMax >= len(runes) {
		return prompt
	}

	first := string(runes[:halfMax])
	last := string(runes[len(runes)-halfMax:])

	hash := sha256.Sum256([]byte(prompt))
	hashStr := fmt.Sprintf("%x", hash)[:16]

	return fmt.Sprintf("%s...[%d chars, hash:%s]...%s", first, len(runes), hashStr, last)
}
