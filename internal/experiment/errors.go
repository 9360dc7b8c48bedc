package experiment

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed experiment or event input.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidTransition marks an operation the current status does not permit.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// ValidationError reports the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError is returned when an action is not allowed from the
// experiment's current status.
type TransitionError struct {
	ID     string
	From   Status
	Action Action
}

func (e *TransitionError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("cannot %s experiment in status %s", e.Action, e.From)
	}
	return fmt.Sprintf("cannot %s experiment %s in status %s", e.Action, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
