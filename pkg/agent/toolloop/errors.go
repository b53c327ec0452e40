package toolloop

import "errors"

var (
	// ErrNotSuccessful indicates Run was given a failed invocation result.
	ErrNotSuccessful = errors.New("tool loop requires a successful invocation result")

	// ErrNoRegistry indicates the configuration has no tool registry.
	ErrNoRegistry = errors.New("tool registry is required")
)
