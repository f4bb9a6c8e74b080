package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POOL RESOLVER - which balances a category draws from, and in what split
// =============================================================================

// PoolResolver owns the apportionment policy between the general and annual
// pools. The ledger only calls it and applies the returned amounts.
type PoolResolver interface {
	// Keys returns the balance keys charged for an employee's category.
	Keys(employeeID, category string) (general, annual BalanceKey)

	// Split apportions hours between the two pools of pair.
	// general + annual must equal hours.
	Split(ctx context.Context, pair Pair, hours decimal.Decimal) (general, annual decimal.Decimal, err error)
}

// RatioResolver charges a fixed share of every request to the annual pool and
// the remainder to the general pool. Shares are per category with a default.
type RatioResolver struct {
	DefaultShare decimal.Decimal
	Shares       map[string]decimal.Decimal
}

// NewRatioResolver returns a resolver charging everything to the general pool
// unless a category share says otherwise.
func NewRatioResolver() *RatioResolver {
	return &RatioResolver{DefaultShare: decimal.Zero, Shares: map[string]decimal.Decimal{}}
}

// SetShare sets the annual share for a category.
func (r *RatioResolver) SetShare(category string, share decimal.Decimal) error {
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidShare
	}
	r.Shares[category] = share
	return nil
}

// ShareFor returns the annual share applied to a category.
func (r *RatioResolver) ShareFor(category string) decimal.Decimal {
	if s, ok := r.Shares[category]; ok {
		return s
	}
	return r.DefaultShare
}

func (r *RatioResolver) Keys(employeeID, category string) (BalanceKey, BalanceKey) {
	return BalanceKey{EmployeeID: employeeID, Category: category, Pool: PoolGeneral},
		BalanceKey{EmployeeID: employeeID, Category: category, Pool: PoolAnnual}
}

func (r *RatioResolver) Split(_ context.Context, pair Pair, hours decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	annual := hours.Mul(r.ShareFor(pair.Annual.Key.Category))
	return hours.Sub(annual), annual, nil
}

var _ PoolResolver = (*RatioResolver)(nil)
