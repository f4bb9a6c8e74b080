package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/store/memory"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fixedClock() time.Time { return time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC) }

func TestRatioResolver_Split(t *testing.T) {
	r := ledger.NewRatioResolver()
	require.NoError(t, r.SetShare("personal", dec("0.25")))

	gk, ak := r.Keys("emp-1", "personal")
	assert.Equal(t, ledger.PoolGeneral, gk.Pool)
	assert.Equal(t, ledger.PoolAnnual, ak.Pool)
	pair := ledger.Pair{General: ledger.Balance{Key: gk}, Annual: ledger.Balance{Key: ak}}

	g, a, err := r.Split(context.Background(), pair, dec("8"))
	require.NoError(t, err)
	assert.True(t, g.Equal(dec("6")))
	assert.True(t, a.Equal(dec("2")))

	// Unlisted category falls back to the default share (all general)
	gk, ak = r.Keys("emp-1", "sick")
	g, a, err = r.Split(context.Background(), ledger.Pair{General: ledger.Balance{Key: gk}, Annual: ledger.Balance{Key: ak}}, dec("8"))
	require.NoError(t, err)
	assert.True(t, g.Equal(dec("8")))
	assert.True(t, a.IsZero())
}

func TestRatioResolver_SetShareRejectsOutOfRange(t *testing.T) {
	r := ledger.NewRatioResolver()
	assert.ErrorIs(t, r.SetShare("bonus", dec("1.01")), ledger.ErrInvalidShare)
	assert.ErrorIs(t, r.SetShare("bonus", dec("-0.5")), ledger.ErrInvalidShare)
	assert.NoError(t, r.SetShare("bonus", dec("1")))
}

func TestLedger_DeductAndAddBack(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	r := ledger.NewRatioResolver()
	require.NoError(t, r.SetShare("personal", dec("0.5")))
	l := ledger.New(store, r).WithClock(fixedClock)

	// GIVEN: a fresh pair
	pair, err := l.LookupPair(ctx, "emp-1", "personal")
	require.NoError(t, err)
	assert.True(t, pair.General.UsedHours.IsZero())
	before := pair

	// WHEN: 8 hours are deducted
	require.NoError(t, l.Deduct(ctx, &pair, ledger.Hours(8)))

	// THEN: both pools carry their share and the store agrees
	g, a := ledger.Delta(before, pair)
	assert.True(t, g.Equal(dec("4")))
	assert.True(t, a.Equal(dec("4")))

	reloaded, err := l.LookupPair(ctx, "emp-1", "personal")
	require.NoError(t, err)
	assert.True(t, reloaded.General.UsedHours.Equal(dec("4")))
	assert.True(t, reloaded.Annual.UsedHours.Equal(dec("4")))
	assert.Equal(t, fixedClock(), reloaded.General.UpdatedAt)

	// WHEN: the same amounts are added back
	require.NoError(t, l.AddBack(ctx, &reloaded, g, a))

	// THEN: the pair is back at zero
	final, err := l.LookupPair(ctx, "emp-1", "personal")
	require.NoError(t, err)
	assert.True(t, final.General.UsedHours.IsZero())
	assert.True(t, final.Annual.UsedHours.IsZero())
}

type skewedResolver struct{ *ledger.RatioResolver }

func (skewedResolver) Split(context.Context, ledger.Pair, decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return dec("1"), dec("1"), nil
}

type failingResolver struct{ *ledger.RatioResolver }

func (failingResolver) Split(context.Context, ledger.Pair, decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	return decimal.Zero, decimal.Zero, errors.New("policy unavailable")
}

func TestLedger_DeductRejectsBadSplit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()

	l := ledger.New(store, skewedResolver{ledger.NewRatioResolver()})
	pair, err := l.LookupPair(ctx, "emp-1", "bonus")
	require.NoError(t, err)

	err = l.Deduct(ctx, &pair, ledger.Hours(8))
	var se *ledger.SplitError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "bonus", se.Category)
	assert.Equal(t, "8", se.Hours)

	// Nothing was persisted
	reloaded, err := l.LookupPair(ctx, "emp-1", "bonus")
	require.NoError(t, err)
	assert.True(t, reloaded.General.UsedHours.IsZero())

	l = ledger.New(store, failingResolver{ledger.NewRatioResolver()})
	assert.ErrorContains(t, l.Deduct(ctx, &pair, ledger.Hours(8)), "policy unavailable")
}

func TestLedger_RecordAndMostRecent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	l := ledger.New(store, ledger.NewRatioResolver()).WithClock(fixedClock)

	latest, err := l.MostRecent(ctx, "app-1")
	require.NoError(t, err)
	assert.Nil(t, latest)
	assert.False(t, ledger.Outstanding(latest))

	fwd, err := l.Record(ctx, "app-1", dec("8"), decimal.Zero, false)
	require.NoError(t, err)
	assert.NotEmpty(t, fwd.ID)
	assert.Equal(t, fixedClock(), fwd.CreatedAt)

	ret, err := l.Record(ctx, "app-1", dec("-8"), decimal.Zero, true)
	require.NoError(t, err)
	assert.Greater(t, ret.Seq, fwd.Seq)

	latest, err = l.MostRecent(ctx, "app-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, ret.ID, latest.ID)
	assert.False(t, ledger.Outstanding(latest))

	history, err := l.History(ctx, "app-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, fwd.ID, history[0].ID)
}

func TestReplay(t *testing.T) {
	entries := []ledger.Adjustment{
		{GeneralHours: dec("6"), AnnualHours: dec("2")},
		{GeneralHours: dec("-6"), AnnualHours: dec("-2"), Returning: true},
		{GeneralHours: dec("3"), AnnualHours: dec("1")},
	}
	g, a := ledger.Replay(entries)
	assert.True(t, g.Equal(dec("3")))
	assert.True(t, a.Equal(dec("1")))
	assert.True(t, entries[2].Total().Equal(dec("4")))

	g, a = ledger.Replay(nil)
	assert.True(t, g.IsZero())
	assert.True(t, a.IsZero())
}

func TestBalanceKeyString(t *testing.T) {
	k := ledger.BalanceKey{EmployeeID: "emp-1", Category: "sick", Pool: ledger.PoolAnnual}
	assert.Equal(t, "emp-1/sick/annual", k.String())
	assert.True(t, k.Pool.Valid())
	assert.False(t, ledger.Pool("bogus").Valid())
}
