package ledger

import "context"

// =============================================================================
// STORE - persistence for balances and the adjustment log
// =============================================================================

// Store persists balances and adjustments.
// Adjustments are APPEND-ONLY: there is no update or delete.
type Store interface {
	// GetOrCreateBalance returns the balance for key, creating it at zero.
	GetOrCreateBalance(ctx context.Context, key BalanceKey) (Balance, error)

	// SaveBalance writes the balance's UsedHours.
	SaveBalance(ctx context.Context, b Balance) error

	// Balances returns every balance of an employee.
	Balances(ctx context.Context, employeeID string) ([]Balance, error)

	// AppendAdjustment persists an entry and returns it with Seq assigned.
	AppendAdjustment(ctx context.Context, a Adjustment) (Adjustment, error)

	// Adjustments returns an application's entries ordered by Seq.
	Adjustments(ctx context.Context, applicationID string) ([]Adjustment, error)

	// LatestAdjustment returns the highest-Seq entry, or nil if there is none.
	LatestAdjustment(ctx context.Context, applicationID string) (*Adjustment, error)
}
