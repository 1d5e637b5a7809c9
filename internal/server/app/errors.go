package app

import (
	"errors"
	"fmt"
)

// Domain error sentinels for the server application layer.
// These enable consistent HTTP status mapping via errors.Is().

var (
	// ErrValidation indicates invalid input from the caller.
	ErrValidation = errors.New("validation error")

	// ErrExecutorUnavailable indicates the job could not be launched.
	ErrExecutorUnavailable = errors.New("executor unavailable")

	// ErrIdleTimeout aborts a run whose executor stopped emitting events.
	ErrIdleTimeout = errors.New("idle timeout")

	// ErrMaxDuration aborts a run that outlived the stream duration cap.
	ErrMaxDuration = errors.New("stream exceeded maximum duration")
)

// ValidationError wraps ErrValidation with a descriptive message.
func ValidationError(msg string) error {
	return fmt.Errorf("%s: %w", msg, ErrValidation)
}

// UnavailableError wraps ErrExecutorUnavailable and the launch failure.
func UnavailableError(err error) error {
	return fmt.Errorf("%w: %w", ErrExecutorUnavailable, err)
}
