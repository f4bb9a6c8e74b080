/*
balance.go - Deduct and add-back on pooled balances

PURPOSE:
  The only two mutations a balance ever sees. Neither enforces a lower or
  upper bound: insufficient-balance policy belongs to the resolver or a
  policy layer above this one.

CRITICAL INVARIANTS:
  1. AddBack amounts always come from a recorded Adjustment, never recomputed
  2. Every mutation happens inside the caller's store transaction
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Deduct increases used hours.
func (b *Balance) Deduct(hours decimal.Decimal) {
	b.UsedHours = b.UsedHours.Add(hours)
}

// AddBack decreases used hours on both pools.
func (p *Pair) AddBack(general, annual decimal.Decimal) {
	p.General.UsedHours = p.General.UsedHours.Sub(general)
	p.Annual.UsedHours = p.Annual.UsedHours.Sub(annual)
}

// Delta returns post-minus-pre per pool.
func Delta(before, after Pair) (general, annual decimal.Decimal) {
	return after.General.UsedHours.Sub(before.General.UsedHours),
		after.Annual.UsedHours.Sub(before.Annual.UsedHours)
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger applies balance mutations and log writes against one Store. Build it
// from the transaction-scoped store so reads and writes share the transaction.
type Ledger struct {
	store    Store
	resolver PoolResolver
	now      func() time.Time
}

func New(store Store, resolver PoolResolver) *Ledger {
	return &Ledger{store: store, resolver: resolver, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the timestamp source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// LookupPair resolves the general and annual balances for a category.
func (l *Ledger) LookupPair(ctx context.Context, employeeID, category string) (Pair, error) {
	gk, ak := l.resolver.Keys(employeeID, category)
	general, err := l.store.GetOrCreateBalance(ctx, gk)
	if err != nil {
		return Pair{}, fmt.Errorf("lookup general balance: %w", err)
	}
	annual, err := l.store.GetOrCreateBalance(ctx, ak)
	if err != nil {
		return Pair{}, fmt.Errorf("lookup annual balance: %w", err)
	}
	return Pair{General: general, Annual: annual}, nil
}

// Deduct apportions hours across the pair and persists both balances.
func (l *Ledger) Deduct(ctx context.Context, pair *Pair, hours decimal.Decimal) error {
	general, annual, err := l.resolver.Split(ctx, *pair, hours)
	if err != nil {
		return fmt.Errorf("split hours: %w", err)
	}
	if !general.Add(annual).Equal(hours) {
		return &SplitError{
			Category: pair.General.Key.Category,
			Hours:    hours.String(),
			General:  general.String(),
			Annual:   annual.String(),
		}
	}
	pair.General.Deduct(general)
	pair.Annual.Deduct(annual)
	return l.save(ctx, pair)
}

// AddBack restores the given amounts on both pools and persists them.
func (l *Ledger) AddBack(ctx context.Context, pair *Pair, general, annual decimal.Decimal) error {
	pair.AddBack(general, annual)
	return l.save(ctx, pair)
}

func (l *Ledger) save(ctx context.Context, pair *Pair) error {
	now := l.now()
	pair.General.UpdatedAt = now
	pair.Annual.UpdatedAt = now
	if err := l.store.SaveBalance(ctx, pair.General); err != nil {
		return fmt.Errorf("save general balance: %w", err)
	}
	if err := l.store.SaveBalance(ctx, pair.Annual); err != nil {
		return fmt.Errorf("save annual balance: %w", err)
	}
	return nil
}
