package domain

import (
	"errors"
	"fmt"
)

var (
	// Validation errors: rejected before any computation.
	ErrEmptyStops         = errors.New("stop list must not be empty")
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrInvalidCapacity    = errors.New("driver vehicle capacity must be positive")
	ErrDuplicateStop      = errors.New("duplicate stop id")
	ErrInvalidStatus      = errors.New("unknown status")
	ErrInvalidInput       = errors.New("invalid input")

	// Resource-unavailability errors: retryable by the caller.
	ErrNoDriversAvailable = errors.New("no drivers available")
	ErrDriverUnavailable  = errors.New("driver unavailable")
	ErrStopsInFlight      = errors.New("stops are already being dispatched")

	ErrDriverNotFound = errors.New("driver not found")
	ErrOrderNotFound  = errors.New("order not found")
	ErrRouteNotFound  = errors.New("route not found")

	ErrOrderExists = errors.New("order already exists")

	// Illegal-state errors.
	ErrIllegalTransition = errors.New("illegal transition")
)

// TransitionError describes a rejected state change. It unwraps to ErrIllegalTransition.
type TransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: %s %s %s -> %s", e.Entity, e.ID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// IsValidation reports whether err was caused by malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrEmptyStops) ||
		errors.Is(err, ErrInvalidCoordinates) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrDuplicateStop) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidInput)
}

// IsRetryable reports whether the caller may retry the same request later without changes.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNoDriversAvailable) ||
		errors.Is(err, ErrDriverUnavailable) ||
		errors.Is(err, ErrStopsInFlight)
}
