/*
errors.go - Error types for the leave lifecycle

ERROR CATEGORIES:
  1. Validation - input rejected before anything is persisted
  2. Transition - event not allowed from the current status; no side effects ran
  3. Ledger inconsistency - a reversal found no adjustment history
  4. Not found - unknown or soft-deleted application
  5. Concurrent update - the application changed after it was read under
     the balance lock (another process not sharing the locker)

USAGE:
  var te *leave.InvalidTransitionError
  if errors.As(err, &te) { ... }
  if leave.IsClientError(err) { ... }
*/
package leave

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrLedgerInconsistency = errors.New("ledger inconsistency")
	ErrApplicationNotFound = errors.New("leave application not found")
	ErrConcurrentUpdate    = errors.New("leave application changed concurrently")
)

// ValidationError names the field and the invariant it broke.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError is returned by the transition guard.
type InvalidTransitionError struct {
	From  Status
	Event Event
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s application", e.Event, e.From)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// LedgerInconsistencyError means a reversal was requested for an application
// with no adjustment history.
type LedgerInconsistencyError struct {
	ApplicationID string
	Event         Event
}

func (e *LedgerInconsistencyError) Error() string {
	return fmt.Sprintf("%s on application %s: no adjustment history to reverse", e.Event, e.ApplicationID)
}

func (e *LedgerInconsistencyError) Unwrap() error { return ErrLedgerInconsistency }

// IsClientError returns true if the error is caused by caller input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrLedgerInconsistency) ||
		errors.Is(err, ErrConcurrentUpdate)
}

// IsNotFound returns true if the error indicates a missing application.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrApplicationNotFound)
}
