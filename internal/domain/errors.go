package domain

import "errors"

// Error taxonomy shared across components.
var (
	// ErrDataUnavailable marks a feed, snapshot or risk source that timed out or errored.
	// Callers skip the affected token for the current cycle.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrExecutionFailed is returned once every path and retry is exhausted.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrInvariantViolation signals a state that correct serialization should never produce.
	ErrInvariantViolation = errors.New("invariant violation")
)
