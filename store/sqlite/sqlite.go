/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists applications, pooled balances, the adjustment log, signatures
  and holidays. The same schema ports to PostgreSQL with minor dialect
  changes.

INTERFACES IMPLEMENTED:
  leave.TxStore:         applications, signatures, ledger.Store, WithTx
  calendar.HolidayStore: holiday CRUD and lookup

APPEND-ONLY ENFORCEMENT:
  adjustment_logs has no UPDATE or DELETE path in this package, and the
  schema backs that up with triggers that abort any attempt.

KEY TABLES:
  leave_applications: one row per application, soft-deleted via deleted_at
  leave_balances:     used hours per (employee, category, pool)
  adjustment_logs:    immutable entries, seq gives creation order
  signatures:         approve/reject provenance
  holidays:           non-working days

CONCURRENCY:
  One connection. The DSN sets _txlock=immediate so a transaction takes the
  write lock at BEGIN; a second process sharing the file waits on
  busy_timeout instead of failing mid-transaction. Inside WithTx every read
  and write goes through the sql.Tx.

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := leave.NewService(store, resolver, cal, nil)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - leave/store.go: interface definitions
  - store/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements leave.TxStore and calendar.HolidayStore.
type Store struct {
	*queries
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates it.
// Use ":memory:" for a throwaway database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// ":memory:" gives every connection its own database.
	db.SetMaxOpenConns(1)

	store := NewFromDB(db)
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// NewFromDB wraps an open database without migrating it.
func NewFromDB(db *sql.DB) *Store {
	return &Store{queries: &queries{db: db}, db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const schema = `
	CREATE TABLE IF NOT EXISTS leave_applications (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		manager_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		hours INTEGER NOT NULL,
		status TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_applications_employee
		ON leave_applications(employee_id, status);

	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		category TEXT NOT NULL,
		pool TEXT NOT NULL,
		used_hours TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, category, pool)
	);

	-- Adjustment log (append-only)
	CREATE TABLE IF NOT EXISTS adjustment_logs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		application_id TEXT NOT NULL REFERENCES leave_applications(id),
		general_hours TEXT NOT NULL,
		annual_hours TEXT NOT NULL,
		is_returning BOOLEAN NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_adjustment_logs_application
		ON adjustment_logs(application_id, seq);

	CREATE TRIGGER IF NOT EXISTS adjustment_logs_no_update
		BEFORE UPDATE ON adjustment_logs
		BEGIN SELECT RAISE(ABORT, 'adjustment_logs is append-only'); END;

	CREATE TRIGGER IF NOT EXISTS adjustment_logs_no_delete
		BEFORE DELETE ON adjustment_logs
		BEGIN SELECT RAISE(ABORT, 'adjustment_logs is append-only'); END;

	CREATE TABLE IF NOT EXISTS signatures (
		id TEXT PRIMARY KEY,
		application_id TEXT NOT NULL REFERENCES leave_applications(id),
		manager_id TEXT NOT NULL,
		action TEXT NOT NULL,
		signed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signatures_application
		ON signatures(application_id);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
`

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn inside one database transaction. Any error rolls back.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{queries: &queries{db: sqlTx}}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txStore is the leave.Store handed to WithTx callbacks.
type txStore struct {
	*queries
}

// queries holds every statement, run against either the database or a tx.
type queries struct {
	db querier
}

// =============================================================================
// APPLICATIONS
// =============================================================================

const applicationColumns = `id, employee_id, manager_id, category, description, start_time, end_time,
	hours, status, revision, created_at, updated_at, deleted_at`

func (q *queries) CreateApplication(ctx context.Context, app leave.Application) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO leave_applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.EmployeeID, app.ManagerID, string(app.Category), app.Description,
		formatTime(app.StartTime), formatTime(app.EndTime), app.Hours, string(app.Status),
		app.Revision, formatTime(app.CreatedAt), formatTime(app.UpdatedAt), nullTime(app.DeletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (q *queries) UpdateApplication(ctx context.Context, app leave.Application) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE leave_applications SET
			manager_id = ?, description = ?, start_time = ?, end_time = ?, hours = ?,
			status = ?, revision = ?, updated_at = ?, deleted_at = ?
		WHERE id = ?`,
		app.ManagerID, app.Description, formatTime(app.StartTime), formatTime(app.EndTime), app.Hours,
		string(app.Status), app.Revision, formatTime(app.UpdatedAt), nullTime(app.DeletedAt),
		app.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return leave.ErrApplicationNotFound
	}
	return nil
}

func (q *queries) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+applicationColumns+` FROM leave_applications WHERE id = ?`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get application: %w", err)
	}
	return &app, nil
}

func (q *queries) ListApplications(ctx context.Context, filter leave.ApplicationFilter) ([]leave.Application, error) {
	var (
		where []string
		args  []any
	)
	if filter.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, filter.EmployeeID)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	query := `SELECT ` + applicationColumns + ` FROM leave_applications`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

func (q *queries) EmployeeIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT DISTINCT employee_id FROM leave_applications ORDER BY employee_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// =============================================================================
// BALANCES (ledger.Store)
// =============================================================================

func (q *queries) GetOrCreateBalance(ctx context.Context, key ledger.BalanceKey) (ledger.Balance, error) {
	_, err := q.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO leave_balances (employee_id, category, pool, used_hours, updated_at)
		VALUES (?, ?, ?, '0', ?)`,
		key.EmployeeID, key.Category, string(key.Pool), formatTime(time.Now().UTC()),
	)
	if err != nil {
		return ledger.Balance{}, fmt.Errorf("failed to create balance: %w", err)
	}

	row := q.db.QueryRowContext(ctx, `
		SELECT employee_id, category, pool, used_hours, updated_at
		FROM leave_balances WHERE employee_id = ? AND category = ? AND pool = ?`,
		key.EmployeeID, key.Category, string(key.Pool),
	)
	return scanBalance(row)
}

func (q *queries) SaveBalance(ctx context.Context, b ledger.Balance) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO leave_balances (employee_id, category, pool, used_hours, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, category, pool) DO UPDATE SET
			used_hours = excluded.used_hours,
			updated_at = excluded.updated_at`,
		b.Key.EmployeeID, b.Key.Category, string(b.Key.Pool), b.UsedHours.String(), formatTime(b.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

func (q *queries) Balances(ctx context.Context, employeeID string) ([]ledger.Balance, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT employee_id, category, pool, used_hours, updated_at
		FROM leave_balances WHERE employee_id = ?
		ORDER BY category, pool`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}
	defer rows.Close()

	var out []ledger.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// =============================================================================
// ADJUSTMENT LOG (ledger.Store)
// =============================================================================

func (q *queries) AppendAdjustment(ctx context.Context, a ledger.Adjustment) (ledger.Adjustment, error) {
	res, err := q.db.ExecContext(ctx, `
		INSERT INTO adjustment_logs (id, application_id, general_hours, annual_hours, is_returning, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.ApplicationID, a.GeneralHours.String(), a.AnnualHours.String(), a.Returning, formatTime(a.CreatedAt),
	)
	if err != nil {
		return ledger.Adjustment{}, fmt.Errorf("failed to append adjustment: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return ledger.Adjustment{}, fmt.Errorf("failed to read adjustment seq: %w", err)
	}
	a.Seq = seq
	return a, nil
}

const adjustmentColumns = `seq, id, application_id, general_hours, annual_hours, is_returning, created_at`

func (q *queries) Adjustments(ctx context.Context, applicationID string) ([]ledger.Adjustment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+adjustmentColumns+` FROM adjustment_logs
		WHERE application_id = ? ORDER BY seq ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load adjustments: %w", err)
	}
	defer rows.Close()

	var out []ledger.Adjustment
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *queries) LatestAdjustment(ctx context.Context, applicationID string) (*ledger.Adjustment, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+adjustmentColumns+` FROM adjustment_logs
		WHERE application_id = ? ORDER BY seq DESC LIMIT 1`, applicationID)
	a, err := scanAdjustment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest adjustment: %w", err)
	}
	return &a, nil
}

// =============================================================================
// SIGNATURES
// =============================================================================

func (q *queries) AppendSignature(ctx context.Context, sig leave.Signature) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO signatures (id, application_id, manager_id, action, signed_at)
		VALUES (?, ?, ?, ?, ?)`,
		sig.ID, sig.ApplicationID, sig.ManagerID, string(sig.Action), formatTime(sig.SignedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append signature: %w", err)
	}
	return nil
}

func (q *queries) Signatures(ctx context.Context, applicationID string) ([]leave.Signature, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, application_id, manager_id, action, signed_at
		FROM signatures WHERE application_id = ? ORDER BY signed_at ASC, rowid ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load signatures: %w", err)
	}
	defer rows.Close()

	var out []leave.Signature
	for rows.Next() {
		var (
			sig      leave.Signature
			action   string
			signedAt string
		)
		if err := rows.Scan(&sig.ID, &sig.ApplicationID, &sig.ManagerID, &action, &signedAt); err != nil {
			return nil, err
		}
		sig.Action = leave.Event(action)
		if sig.SignedAt, err = parseTime(signedAt); err != nil {
			return nil, err
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// =============================================================================
// HOLIDAYS (calendar.HolidayStore)
// =============================================================================

func (q *queries) SaveHoliday(ctx context.Context, h calendar.Holiday) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		h.ID, h.Date.Format(time.DateOnly), h.Name, h.Recurring, formatTime(time.Now().UTC()),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s on %s", calendar.ErrHolidayExists, h.Name, h.Date.Format(time.DateOnly))
	}
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (q *queries) DeleteHoliday(ctx context.Context, id string) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete holiday: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return calendar.ErrHolidayNotFound
	}
	return nil
}

func (q *queries) ListHolidays(ctx context.Context) ([]calendar.Holiday, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, date, name, recurring FROM holidays ORDER BY date ASC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var out []calendar.Holiday
	for rows.Next() {
		var (
			h    calendar.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		if h.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (q *queries) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	var count int
	err := q.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM holidays
		WHERE (recurring = FALSE AND date = ?)
		   OR (recurring = TRUE AND strftime('%m-%d', date) = ?)`,
		date.Format(time.DateOnly), date.Format("01-02"),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check holiday: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// SCANNING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (leave.Application, error) {
	var (
		app                  leave.Application
		category, status     string
		start, end           string
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := row.Scan(&app.ID, &app.EmployeeID, &app.ManagerID, &category, &app.Description,
		&start, &end, &app.Hours, &status, &app.Revision, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return leave.Application{}, err
	}
	app.Category = leave.Category(category)
	app.Status = leave.Status(status)

	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&app.StartTime, start}, {&app.EndTime, end}, {&app.CreatedAt, createdAt}, {&app.UpdatedAt, updatedAt}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return leave.Application{}, err
		}
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return leave.Application{}, err
		}
		app.DeletedAt = &t
	}
	return app, nil
}

func scanBalance(row scanner) (ledger.Balance, error) {
	var (
		b               ledger.Balance
		pool, used, upd string
	)
	if err := row.Scan(&b.Key.EmployeeID, &b.Key.Category, &pool, &used, &upd); err != nil {
		return ledger.Balance{}, err
	}
	b.Key.Pool = ledger.Pool(pool)
	var err error
	if b.UsedHours, err = decimal.NewFromString(used); err != nil {
		return ledger.Balance{}, fmt.Errorf("bad used_hours %q: %w", used, err)
	}
	if b.UpdatedAt, err = parseTime(upd); err != nil {
		return ledger.Balance{}, err
	}
	return b, nil
}

func scanAdjustment(row scanner) (ledger.Adjustment, error) {
	var (
		a               ledger.Adjustment
		general, annual string
		createdAt       string
	)
	if err := row.Scan(&a.Seq, &a.ID, &a.ApplicationID, &general, &annual, &a.Returning, &createdAt); err != nil {
		return ledger.Adjustment{}, err
	}
	var err error
	if a.GeneralHours, err = decimal.NewFromString(general); err != nil {
		return ledger.Adjustment{}, fmt.Errorf("bad general_hours %q: %w", general, err)
	}
	if a.AnnualHours, err = decimal.NewFromString(annual); err != nil {
		return ledger.Adjustment{}, fmt.Errorf("bad annual_hours %q: %w", annual, err)
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return ledger.Adjustment{}, err
	}
	return a, nil
}

// Helper functions

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// timeLayout is fixed width so text order matches time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

var (
	_ leave.TxStore         = (*Store)(nil)
	_ leave.Store           = (*txStore)(nil)
	_ calendar.HolidayStore = (*Store)(nil)
)
