package models

import (
	"errors"
	"fmt"
)

// Caller-visible error kinds. The request layer maps these to transport
// responses; everything else is an internal fault.
var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrConflict          = errors.New("document modified concurrently")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var (
	ErrEmptyCart         = fmt.Errorf("%w: cart is empty", ErrValidation)
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrValidation)
)

// ValidationError reports which field violated which invariant. It
// matches ErrValidation under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError names the current status and the attempted action so
// callers get an actionable message rather than a generic failure. It
// matches ErrInvalidTransition under errors.Is.
type TransitionError struct {
	Current   OrderStatus
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s an order in status %q", e.Attempted, e.Current)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
