/*
adjustment.go - Append-only adjustment log

PURPOSE:
  Every balance-affecting transition appends one entry per pool change.
  An application's balance history is the ordered sequence of its entries;
  the engine only ever consults the most recent one to decide what to undo.

CORRECTIONS:
  An entry is never edited. Undoing a forward entry appends a Returning
  entry whose deltas are the negation of what was added back:

    create   +8 general        (forward)
    cancel   -8 general        (returning)
    replay   0                 == application's current contribution
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record appends an entry for an application and returns it as stored.
func (l *Ledger) Record(ctx context.Context, applicationID string, general, annual decimal.Decimal, returning bool) (Adjustment, error) {
	entry, err := l.store.AppendAdjustment(ctx, Adjustment{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		GeneralHours:  general,
		AnnualHours:   annual,
		Returning:     returning,
		CreatedAt:     l.now(),
	})
	if err != nil {
		return Adjustment{}, fmt.Errorf("record adjustment: %w", err)
	}
	return entry, nil
}

// MostRecent returns the last entry appended for an application, or nil.
func (l *Ledger) MostRecent(ctx context.Context, applicationID string) (*Adjustment, error) {
	return l.store.LatestAdjustment(ctx, applicationID)
}

// History returns every entry for an application in creation order.
func (l *Ledger) History(ctx context.Context, applicationID string) ([]Adjustment, error) {
	return l.store.Adjustments(ctx, applicationID)
}

// Replay sums signed deltas. For a single application the result is its
// current contribution to the pair's used hours.
func Replay(entries []Adjustment) (general, annual decimal.Decimal) {
	general, annual = decimal.Zero, decimal.Zero
	for _, e := range entries {
		general = general.Add(e.GeneralHours)
		annual = annual.Add(e.AnnualHours)
	}
	return general, annual
}

// Outstanding reports whether the entry still holds hours that a reversal
// would return. Returning entries have nothing left to give back.
func Outstanding(latest *Adjustment) bool {
	return latest != nil && !latest.Returning
}
