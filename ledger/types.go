/*
Package ledger provides the leave-balance accounting primitives.

PURPOSE:
  Tracks how many hours an employee has used from each pooled balance and
  records every change as an immutable adjustment entry. The running
  UsedHours on a balance is the hot value; the adjustment log is the audit
  trail that can always rebuild it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Pool: which of the two linked balances (general, annual) is charged
  - BalanceKey / Balance: per employee, per category, per pool used hours
  - Pair: the general+annual balances resolved for one category
  - Adjustment: an immutable log entry tied to one application

DESIGN PRINCIPLES:
  1. Immutability: Adjustments are never modified, only followed by reversals
  2. Precision: decimal.Decimal for hour amounts (pool splits may be fractional)
  3. Single source of truth: UsedHours is only touched by Deduct and AddBack
  4. Auditability: replaying an application's adjustments yields its contribution

USAGE:
  l := ledger.New(store, resolver)
  pair, _ := l.LookupPair(ctx, "emp-1", "personal")
  before := pair
  _ = l.Deduct(ctx, &pair, 8)
  g, a := ledger.Delta(before, pair)
  entry, _ := l.Record(ctx, appID, g, a, false)

SEE ALSO:
  - balance.go: Deduct / AddBack
  - adjustment.go: Record / MostRecent / Replay
  - resolver.go: pool keys and apportionment
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POOLS
// =============================================================================

type Pool string

const (
	PoolGeneral Pool = "general"
	PoolAnnual  Pool = "annual"
)

func (p Pool) Valid() bool { return p == PoolGeneral || p == PoolAnnual }

// =============================================================================
// BALANCES
// =============================================================================

// BalanceKey identifies one pooled balance.
type BalanceKey struct {
	EmployeeID string
	Category   string
	Pool       Pool
}

func (k BalanceKey) String() string {
	return k.EmployeeID + "/" + k.Category + "/" + string(k.Pool)
}

// Balance is shared mutable state: every application of the same employee and
// category reads and writes it. Callers must hold the store transaction.
type Balance struct {
	Key       BalanceKey
	UsedHours decimal.Decimal
	UpdatedAt time.Time
}

// Pair is the general+annual balance pair charged for a category.
type Pair struct {
	General Balance
	Annual  Balance
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// Adjustment is one append-only log entry. GeneralHours and AnnualHours are the
// post-minus-pre deltas applied to each pool, so forward entries are positive
// and returning (reversal) entries are negative.
type Adjustment struct {
	ID            string
	Seq           int64 // assigned by the store; creation order
	ApplicationID string
	GeneralHours  decimal.Decimal
	AnnualHours   decimal.Decimal
	Returning     bool
	CreatedAt     time.Time
}

// Total is the combined delta across both pools.
func (a Adjustment) Total() decimal.Decimal { return a.GeneralHours.Add(a.AnnualHours) }

// Hours converts a whole-hour count into a ledger amount.
func Hours(h int64) decimal.Decimal { return decimal.NewFromInt(h) }
