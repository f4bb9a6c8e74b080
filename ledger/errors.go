/*
errors.go - Error types for the ledger

ERROR CATEGORIES:
  1. Configuration errors - pool shares outside [0, 1]
  2. Split errors - a resolver returned amounts that do not add up
  3. Store errors - wrapped with %w by the store implementations

USAGE:
  var se *ledger.SplitError
  if errors.As(err, &se) { ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidShare is returned when a pool share is outside [0, 1].
	ErrInvalidShare = errors.New("annual share must be between 0 and 1")
)

// SplitError reports an apportionment that does not add up to the requested hours.
type SplitError struct {
	Category string
	Hours    string
	General  string
	Annual   string
}

func (e *SplitError) Error() string {
	return fmt.Sprintf("split for %s does not sum to %s hours (general %s, annual %s)",
		e.Category, e.Hours, e.General, e.Annual)
}
