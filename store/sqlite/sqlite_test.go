package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var t0 = time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)

func testApp(id, employee string) leave.Application {
	return leave.Application{
		ID:          id,
		EmployeeID:  employee,
		ManagerID:   "mgr-1",
		Category:    leave.CategoryPersonal,
		Description: "trip",
		StartTime:   t0,
		EndTime:     t0.Add(8 * time.Hour),
		Hours:       8,
		Status:      leave.StatusPending,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}
}

func TestNew_MigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leave.db")
	s1, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s1.CreateApplication(context.Background(), testApp("a1", "emp-1")))
	require.NoError(t, s1.Close())

	s2, err := New(path)
	require.NoError(t, err)
	defer s2.Close()
	got, err := s2.GetApplication(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NoError(t, s2.Ping(context.Background()))
}

func TestApplications(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// GIVEN: two applications for one employee and one for another
	require.NoError(t, s.CreateApplication(ctx, testApp("a1", "emp-1")))
	a2 := testApp("a2", "emp-1")
	a2.CreatedAt = t0.Add(time.Minute)
	a2.Status = leave.StatusApproved
	require.NoError(t, s.CreateApplication(ctx, a2))
	require.NoError(t, s.CreateApplication(ctx, testApp("a3", "emp-2")))

	// WHEN: one is soft-deleted
	deleted := t0.Add(time.Hour)
	a2.DeletedAt = &deleted
	a2.Revision = 2
	require.NoError(t, s.UpdateApplication(ctx, a2))

	// THEN: the round trip keeps every field
	got, err := s.GetApplication(ctx, "a2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, leave.StatusApproved, got.Status)
	assert.Equal(t, 2, got.Revision)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(deleted))
	assert.True(t, got.EndTime.Equal(t0.Add(8*time.Hour)))

	missing, err := s.GetApplication(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	live, err := s.ListApplications(ctx, leave.ApplicationFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a1", live[0].ID)

	all, err := s.ListApplications(ctx, leave.ApplicationFilter{EmployeeID: "emp-1", IncludeDeleted: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	approved, err := s.ListApplications(ctx, leave.ApplicationFilter{Status: leave.StatusApproved, IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, "a2", approved[0].ID)

	ids, err := s.EmployeeIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"emp-1", "emp-2"}, ids)

	assert.ErrorIs(t, s.UpdateApplication(ctx, testApp("ghost", "emp-1")), leave.ErrApplicationNotFound)
}

func TestBalances(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := ledger.BalanceKey{EmployeeID: "emp-1", Category: "sick", Pool: ledger.PoolGeneral}

	b, err := s.GetOrCreateBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, key, b.Key)
	assert.True(t, b.UsedHours.IsZero())

	b.UsedHours = decimal.RequireFromString("7.5")
	b.UpdatedAt = t0
	require.NoError(t, s.SaveBalance(ctx, b))

	again, err := s.GetOrCreateBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, again.UsedHours.Equal(decimal.RequireFromString("7.5")))

	all, err := s.Balances(ctx, "emp-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAdjustments_AppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateApplication(ctx, testApp("a1", "emp-1")))

	latest, err := s.LatestAdjustment(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	first, err := s.AppendAdjustment(ctx, ledger.Adjustment{
		ID: "adj-1", ApplicationID: "a1", GeneralHours: decimal.NewFromInt(8), AnnualHours: decimal.Zero, CreatedAt: t0,
	})
	require.NoError(t, err)
	second, err := s.AppendAdjustment(ctx, ledger.Adjustment{
		ID: "adj-2", ApplicationID: "a1", GeneralHours: decimal.NewFromInt(-8), AnnualHours: decimal.Zero, Returning: true, CreatedAt: t0,
	})
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	latest, err = s.LatestAdjustment(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "adj-2", latest.ID)
	assert.True(t, latest.Returning)

	entries, err := s.Adjustments(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "adj-1", entries[0].ID)

	// The schema refuses edits and deletes
	_, err = s.db.ExecContext(ctx, `UPDATE adjustment_logs SET general_hours = '0' WHERE id = 'adj-1'`)
	assert.ErrorContains(t, err, "append-only")
	_, err = s.db.ExecContext(ctx, `DELETE FROM adjustment_logs WHERE id = 'adj-1'`)
	assert.ErrorContains(t, err, "append-only")

	// Entries must belong to an application
	_, err = s.AppendAdjustment(ctx, ledger.Adjustment{ID: "adj-3", ApplicationID: "ghost", CreatedAt: t0})
	assert.Error(t, err)
}

func TestSignatures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateApplication(ctx, testApp("a1", "emp-1")))

	require.NoError(t, s.AppendSignature(ctx, leave.Signature{
		ID: "sig-1", ApplicationID: "a1", ManagerID: "mgr-1", Action: leave.EventApprove, SignedAt: t0,
	}))

	sigs, err := s.Signatures(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, sigs, 1)
	assert.Equal(t, leave.EventApprove, sigs[0].Action)
	assert.True(t, sigs[0].SignedAt.Equal(t0))
}

func TestTimestampsSortChronologically(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// GIVEN: A sub-second timestamp and a whole-second one inserted out of order
	late := testApp("a-late", "emp-1")
	late.CreatedAt = t0.Add(500 * time.Millisecond)
	early := testApp("z-early", "emp-1")
	require.NoError(t, s.CreateApplication(ctx, late))
	require.NoError(t, s.CreateApplication(ctx, early))

	require.NoError(t, s.AppendSignature(ctx, leave.Signature{ID: "s-late", ApplicationID: "a-late", ManagerID: "m", Action: leave.EventApprove, SignedAt: t0.Add(500 * time.Millisecond)}))
	require.NoError(t, s.AppendSignature(ctx, leave.Signature{ID: "s-early", ApplicationID: "a-late", ManagerID: "m", Action: leave.EventReject, SignedAt: t0}))

	// WHEN: Listing
	apps, err := s.ListApplications(ctx, leave.ApplicationFilter{EmployeeID: "emp-1"})
	require.NoError(t, err)
	sigs, err := s.Signatures(ctx, "a-late")
	require.NoError(t, err)

	// THEN: Order follows time, and times survive the round trip
	require.Len(t, apps, 2)
	assert.Equal(t, "z-early", apps[0].ID)
	assert.Equal(t, "a-late", apps[1].ID)
	assert.True(t, apps[1].CreatedAt.Equal(late.CreatedAt))
	require.Len(t, sigs, 2)
	assert.Equal(t, "s-early", sigs[0].ID)
	assert.Equal(t, "s-late", sigs[1].ID)
}

func TestHolidays(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.SaveHoliday(ctx, calendar.Holiday{ID: "h1", Date: time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC), Name: "Company Day"}))
	require.NoError(t, s.SaveHoliday(ctx, calendar.Holiday{ID: "h2", Date: time.Date(2020, 12, 25, 0, 0, 0, 0, time.UTC), Name: "Christmas", Recurring: true}))

	ok, err := s.IsHoliday(ctx, time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.IsHoliday(ctx, time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.IsHoliday(ctx, time.Date(2031, 12, 25, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := s.ListHolidays(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "h2", list[0].ID)

	require.NoError(t, s.DeleteHoliday(ctx, "h1"))
	assert.ErrorIs(t, s.DeleteHoliday(ctx, "h1"), calendar.ErrHolidayNotFound)

	// The store plugs straight into the working-time calendar
	cal := calendar.Standard()
	cal.Holidays = s
	secs, err := cal.ElapsedSeconds(ctx, time.Date(2031, 12, 25, 9, 0, 0, 0, time.UTC), time.Date(2031, 12, 25, 17, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, secs)
}

func TestSaveHoliday_RejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	day := time.Date(2025, 1, 7, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveHoliday(ctx, calendar.Holiday{ID: "first", Date: day, Name: "Company Day"}))

	// Same date and name under a new ID
	err := s.SaveHoliday(ctx, calendar.Holiday{ID: "second", Date: day, Name: "Company Day", Recurring: true})
	assert.ErrorIs(t, err, calendar.ErrHolidayExists)

	// Same ID on another date
	err = s.SaveHoliday(ctx, calendar.Holiday{ID: "first", Date: day.AddDate(0, 0, 1), Name: "Other"})
	assert.ErrorIs(t, err, calendar.ErrHolidayExists)

	list, err := s.ListHolidays(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "first", list[0].ID)
	assert.False(t, list[0].Recurring)

	assert.ErrorIs(t, s.DeleteHoliday(ctx, "second"), calendar.ErrHolidayNotFound)
	require.NoError(t, s.DeleteHoliday(ctx, "first"))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(st leave.Store) error {
		require.NoError(t, st.CreateApplication(ctx, testApp("a1", "emp-1")))
		got, err := st.GetApplication(ctx, "a1")
		require.NoError(t, err)
		require.NotNil(t, got, "reads inside the transaction see its writes")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.WithTx(ctx, func(st leave.Store) error {
		return st.CreateApplication(ctx, testApp("a2", "emp-1"))
	}))
	got, err = s.GetApplication(ctx, "a2")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestWithTx_Sqlmock(t *testing.T) {
	t.Run("rollback when fn fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewFromDB(db)

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO signatures").WillReturnError(errors.New("disk I/O error"))
		mock.ExpectRollback()

		err = s.WithTx(context.Background(), func(st leave.Store) error {
			return st.AppendSignature(context.Background(), leave.Signature{ID: "s1", ApplicationID: "a1", SignedAt: t0})
		})
		assert.ErrorContains(t, err, "failed to append signature")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewFromDB(db)

		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

		called := false
		err = s.WithTx(context.Background(), func(leave.Store) error { called = true; return nil })
		assert.ErrorContains(t, err, "failed to begin transaction")
		assert.False(t, called)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("commit fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		s := NewFromDB(db)

		mock.ExpectBegin()
		mock.ExpectCommit().WillReturnError(errors.New("disk full"))

		err = s.WithTx(context.Background(), func(leave.Store) error { return nil })
		assert.ErrorContains(t, err, "failed to commit transaction")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
