/*
service.go - Leave application lifecycle with transactional ledger effects

PURPOSE:
  Runs every lifecycle event as one short synchronous unit of work:

    1. validate input (no writes yet)
    2. lock the employee+category balance pair
    3. reload the application and compute hours from the merged input
    4. inside one store transaction: check nothing changed since step 3,
       guard the transition, run its effects in order, save the application

  If ANY step inside the transaction fails, every balance, adjustment,
  signature and application write is rolled back.

LEDGER EFFECTS:
  charge:  deduct hours from the pair, record a forward adjustment
  refund:  add back the most recent forward adjustment, record a
           returning adjustment (no-op when the most recent entry is
           already a reversal)

  Deltas are always read as post-mutation minus pre-mutation balance
  inside the transaction, so a concurrent writer can never leak into
  another application's log entry.

SEE ALSO:
  - machine.go: transition table
  - ledger/balance.go: Deduct / AddBack
*/
package leave

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/ledger"
	"github.com/warp/leave-ledger/lock"
)

type Service struct {
	store    TxStore
	resolver ledger.PoolResolver
	calendar WorkingTimeCalendar
	signer   Signer
	locker   lock.Locker
	logger   *zap.Logger
	now      func() time.Time
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option { return func(s *Service) { s.locker = l } }

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.Named("leave.service")
		}
	}
}

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store TxStore, resolver ledger.PoolResolver, calendar WorkingTimeCalendar, signer Signer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		resolver: resolver,
		calendar: calendar,
		signer:   signer,
		locker:   lock.NewLocal(),
		logger:   zap.L().Named("leave.service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.signer == nil {
		s.signer = DefaultSigner{Now: s.now}
	}
	return s
}

// =============================================================================
// CREATE
// =============================================================================

// Create validates the application, computes its hours and, in one
// transaction, persists it with its hours deducted and a forward adjustment.
func (s *Service) Create(ctx context.Context, in CreateInput) (_ *Application, err error) {
	defer func() { s.observe(EventCreate, err) }()

	if err := validateCreate(in); err != nil {
		s.logger.Warn("create leave validation failed", zap.Error(err))
		return nil, err
	}
	hours, err := s.computeHours(ctx, in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}

	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := s.now()
	app := Application{
		ID:          id,
		EmployeeID:  in.EmployeeID,
		ManagerID:   in.ManagerID,
		Category:    in.Category,
		Description: in.Description,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
		Hours:       hours,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	release, err := s.locker.Lock(ctx, app.lockKey())
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	defer release()

	var written []ledger.Adjustment
	err = s.store.WithTx(ctx, func(st Store) error {
		existing, err := st.GetApplication(ctx, app.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ValidationError{Field: "id", Reason: "already exists"}
		}
		if err := st.CreateApplication(ctx, app); err != nil {
			return err
		}
		entry, err := s.charge(ctx, st, app)
		if err != nil {
			return err
		}
		written = append(written, entry)
		return nil
	})
	if err != nil {
		s.logFailure("create leave failed", app.ID, err)
		return nil, err
	}

	s.recordWritten(written)
	getMetrics().hours.WithLabelValues(string(app.Category)).Observe(float64(app.Hours))
	s.logger.Info("create leave success",
		zap.String("application_id", app.ID),
		zap.String("employee_id", app.EmployeeID),
		zap.String("category", string(app.Category)),
		zap.Int64("hours", app.Hours),
	)
	return &app, nil
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Approve moves a pending application to approved and records the manager's
// signature. The ledger is not touched.
func (s *Service) Approve(ctx context.Context, id, managerID string) (*Application, error) {
	return s.transition(ctx, id, EventApprove, managerID, nil)
}

// Reject signs for the manager, then returns the application's hours.
func (s *Service) Reject(ctx context.Context, id, managerID string) (*Application, error) {
	return s.transition(ctx, id, EventReject, managerID, nil)
}

// Revise returns the current hours (if still held), recomputes hours from the
// revised interval and deducts them again. The application goes back to pending.
func (s *Service) Revise(ctx context.Context, id string, in ReviseInput) (*Application, error) {
	return s.transition(ctx, id, EventRevise, "", &in)
}

// Cancel returns the application's hours and marks it canceled.
func (s *Service) Cancel(ctx context.Context, id string) (*Application, error) {
	return s.transition(ctx, id, EventCancel, "", nil)
}

type revision struct {
	start, end  time.Time
	description string
	hours       int64
}

func (s *Service) transition(ctx context.Context, id string, event Event, managerID string, in *ReviseInput) (_ *Application, err error) {
	defer func() { s.observe(event, err) }()

	current, err := s.load(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if _, err := Next(current.Status, event); err != nil {
		s.logger.Warn("leave transition rejected",
			zap.String("application_id", id),
			zap.String("event", string(event)),
			zap.String("status", string(current.Status)),
		)
		return nil, err
	}

	release, err := s.locker.Lock(ctx, current.lockKey())
	if err != nil {
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	defer release()

	// Reload under the lock so a revision merges onto the latest committed
	// interval. Employee and category are immutable, so the lock key holds.
	if current, err = s.load(ctx, s.store, id); err != nil {
		return nil, err
	}
	var rev *revision
	if in != nil {
		if rev, err = s.prepareRevision(ctx, *current, *in); err != nil {
			return nil, err
		}
	}

	var (
		app     *Application
		written []ledger.Adjustment
	)
	err = s.store.WithTx(ctx, func(st Store) error {
		a, err := s.load(ctx, st, id)
		if err != nil {
			return err
		}
		if changedSince(*a, *current) {
			return ErrConcurrentUpdate
		}
		t, err := Next(a.Status, event)
		if err != nil {
			return err
		}

		for _, effect := range t.Effects {
			switch effect {
			case EffectSign:
				sig, err := s.signer.Sign(ctx, *a, managerID, event)
				if err != nil {
					return err
				}
				if err := st.AppendSignature(ctx, sig); err != nil {
					return err
				}
			case EffectReverse:
				entry, err := s.refund(ctx, st, *a, event)
				if err != nil {
					return err
				}
				if entry != nil {
					written = append(written, *entry)
				}
			case EffectReapply:
				entries, err := s.reapply(ctx, st, a, *rev)
				if err != nil {
					return err
				}
				written = append(written, entries...)
			}
		}

		a.Status = t.To
		a.UpdatedAt = s.now()
		if err := st.UpdateApplication(ctx, *a); err != nil {
			return err
		}
		app = a
		return nil
	})
	if err != nil {
		s.logFailure("leave "+string(event)+" failed", id, err)
		return nil, err
	}

	s.recordWritten(written)
	if event == EventRevise {
		getMetrics().hours.WithLabelValues(string(app.Category)).Observe(float64(app.Hours))
	}
	s.logger.Info("leave "+string(event)+" success",
		zap.String("application_id", app.ID),
		zap.String("status", string(app.Status)),
		zap.Int("adjustments", len(written)),
	)
	return app, nil
}

func (s *Service) prepareRevision(ctx context.Context, current Application, in ReviseInput) (*revision, error) {
	rev := &revision{start: current.StartTime, end: current.EndTime, description: current.Description}
	if !in.StartTime.IsZero() {
		rev.start = in.StartTime
	}
	if !in.EndTime.IsZero() {
		rev.end = in.EndTime
	}
	if strings.TrimSpace(in.Description) != "" {
		rev.description = in.Description
	}
	if err := validateInterval(rev.start, rev.end); err != nil {
		return nil, err
	}
	hours, err := s.computeHours(ctx, rev.start, rev.end)
	if err != nil {
		return nil, err
	}
	rev.hours = hours
	return rev, nil
}

// =============================================================================
// LEDGER EFFECTS
// =============================================================================

func (s *Service) ledgerFor(st Store) *ledger.Ledger {
	return ledger.New(st, s.resolver).WithClock(s.now)
}

// charge deducts app.Hours and records the forward adjustment.
func (s *Service) charge(ctx context.Context, st Store, app Application) (ledger.Adjustment, error) {
	l := s.ledgerFor(st)
	pair, err := l.LookupPair(ctx, app.EmployeeID, string(app.Category))
	if err != nil {
		return ledger.Adjustment{}, err
	}
	before := pair
	if err := l.Deduct(ctx, &pair, ledger.Hours(app.Hours)); err != nil {
		return ledger.Adjustment{}, err
	}
	general, annual := ledger.Delta(before, pair)
	return l.Record(ctx, app.ID, general, annual, false)
}

// refund adds back the most recent forward adjustment. It returns nil when
// the most recent entry is already a reversal.
func (s *Service) refund(ctx context.Context, st Store, app Application, event Event) (*ledger.Adjustment, error) {
	l := s.ledgerFor(st)
	latest, err := l.MostRecent(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, &LedgerInconsistencyError{ApplicationID: app.ID, Event: event}
	}
	if !ledger.Outstanding(latest) {
		return nil, nil
	}

	pair, err := l.LookupPair(ctx, app.EmployeeID, string(app.Category))
	if err != nil {
		return nil, err
	}
	before := pair
	if err := l.AddBack(ctx, &pair, latest.GeneralHours, latest.AnnualHours); err != nil {
		return nil, err
	}
	general, annual := ledger.Delta(before, pair)
	entry, err := l.Record(ctx, app.ID, general, annual, true)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *Service) reapply(ctx context.Context, st Store, app *Application, rev revision) ([]ledger.Adjustment, error) {
	var written []ledger.Adjustment
	returned, err := s.refund(ctx, st, *app, EventRevise)
	if err != nil {
		return nil, err
	}
	if returned != nil {
		written = append(written, *returned)
	}

	app.StartTime = rev.start
	app.EndTime = rev.end
	app.Description = rev.description
	app.Hours = rev.hours
	app.Revision++

	entry, err := s.charge(ctx, st, *app)
	if err != nil {
		return nil, err
	}
	return append(written, entry), nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Get returns a live (not soft-deleted) application.
func (s *Service) Get(ctx context.Context, id string) (*Application, error) {
	return s.load(ctx, s.store, id)
}

func (s *Service) List(ctx context.Context, filter ApplicationFilter) ([]Application, error) {
	return s.store.ListApplications(ctx, filter)
}

// History returns the adjustment log of an application, deleted or not.
func (s *Service) History(ctx context.Context, id string) ([]ledger.Adjustment, error) {
	if _, err := s.loadAny(ctx, s.store, id); err != nil {
		return nil, err
	}
	return s.store.Adjustments(ctx, id)
}

func (s *Service) Signatures(ctx context.Context, id string) ([]Signature, error) {
	if _, err := s.loadAny(ctx, s.store, id); err != nil {
		return nil, err
	}
	return s.store.Signatures(ctx, id)
}

func (s *Service) Balances(ctx context.Context, employeeID string) ([]ledger.Balance, error) {
	return s.store.Balances(ctx, employeeID)
}

// =============================================================================
// SOFT DELETE
// =============================================================================

// Delete hides an application. Its adjustments and balance effect remain.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(st Store) error {
		app, err := s.load(ctx, st, id)
		if err != nil {
			return err
		}
		now := s.now()
		app.DeletedAt = &now
		app.UpdatedAt = now
		return st.UpdateApplication(ctx, *app)
	})
}

// Restore undoes Delete.
func (s *Service) Restore(ctx context.Context, id string) (*Application, error) {
	var app *Application
	err := s.store.WithTx(ctx, func(st Store) error {
		a, err := s.loadAny(ctx, st, id)
		if err != nil {
			return err
		}
		if a.Deleted() {
			a.DeletedAt = nil
			a.UpdatedAt = s.now()
			if err := st.UpdateApplication(ctx, *a); err != nil {
				return err
			}
		}
		app = a
		return nil
	})
	return app, err
}

// =============================================================================
// AUDIT - replay adjustments against stored balances
// =============================================================================

// Drift is a balance whose stored used hours differ from the replayed log.
type Drift struct {
	Key      ledger.BalanceKey
	Stored   decimal.Decimal
	Replayed decimal.Decimal
}

type AuditReport struct {
	EmployeeID string
	Balances   int
	Drifts     []Drift
}

func (r AuditReport) Clean() bool { return len(r.Drifts) == 0 }

// Audit rebuilds every balance of an employee from the adjustment log of all
// their applications, deleted ones included, and reports differences.
func (s *Service) Audit(ctx context.Context, employeeID string) (AuditReport, error) {
	report := AuditReport{EmployeeID: employeeID}
	err := s.store.WithTx(ctx, func(st Store) error {
		apps, err := st.ListApplications(ctx, ApplicationFilter{EmployeeID: employeeID, IncludeDeleted: true})
		if err != nil {
			return err
		}
		expected := make(map[ledger.BalanceKey]decimal.Decimal)
		for _, app := range apps {
			entries, err := st.Adjustments(ctx, app.ID)
			if err != nil {
				return err
			}
			general, annual := ledger.Replay(entries)
			gk, ak := s.resolver.Keys(app.EmployeeID, string(app.Category))
			expected[gk] = expected[gk].Add(general)
			expected[ak] = expected[ak].Add(annual)
		}

		balances, err := st.Balances(ctx, employeeID)
		if err != nil {
			return err
		}
		report.Balances = len(balances)
		for _, b := range balances {
			want := expected[b.Key]
			delete(expected, b.Key)
			if !b.UsedHours.Equal(want) {
				report.Drifts = append(report.Drifts, Drift{Key: b.Key, Stored: b.UsedHours, Replayed: want})
			}
		}
		for key, want := range expected {
			if !want.IsZero() {
				report.Drifts = append(report.Drifts, Drift{Key: key, Stored: decimal.Zero, Replayed: want})
			}
		}
		return nil
	})
	if err != nil {
		return AuditReport{}, err
	}

	sort.Slice(report.Drifts, func(i, j int) bool {
		return report.Drifts[i].Key.String() < report.Drifts[j].Key.String()
	})
	getMetrics().auditDrift.WithLabelValues(employeeID).Set(float64(len(report.Drifts)))
	if !report.Clean() {
		s.logger.Error("leave audit drift detected",
			zap.String("employee_id", employeeID),
			zap.Int("drifts", len(report.Drifts)),
		)
	}
	return report, nil
}

// AuditAll audits every employee with at least one application.
func (s *Service) AuditAll(ctx context.Context) ([]AuditReport, error) {
	ids, err := s.store.EmployeeIDs(ctx)
	if err != nil {
		return nil, err
	}
	reports := make([]AuditReport, 0, len(ids))
	for _, id := range ids {
		r, err := s.Audit(ctx, id)
		if err != nil {
			return reports, fmt.Errorf("audit %s: %w", id, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) load(ctx context.Context, st Store, id string) (*Application, error) {
	app, err := s.loadAny(ctx, st, id)
	if err != nil {
		return nil, err
	}
	if app.Deleted() {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

func (s *Service) loadAny(ctx context.Context, st Store, id string) (*Application, error) {
	app, err := st.GetApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, ErrApplicationNotFound
	}
	return app, nil
}

// changedSince reports whether a was written after snapshot was read.
func changedSince(a, snapshot Application) bool {
	return a.Status != snapshot.Status ||
		a.Revision != snapshot.Revision ||
		!a.UpdatedAt.Equal(snapshot.UpdatedAt) ||
		!a.StartTime.Equal(snapshot.StartTime) ||
		!a.EndTime.Equal(snapshot.EndTime) ||
		a.Description != snapshot.Description
}

func (s *Service) computeHours(ctx context.Context, start, end time.Time) (int64, error) {
	secs, err := s.calendar.ElapsedSeconds(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("working time: %w", err)
	}
	if secs < 0 {
		return 0, &ValidationError{Field: "end_time", Reason: "billable time is negative"}
	}
	if secs%3600 != 0 {
		return 0, &ValidationError{Field: "end_time", Reason: "billable time is not a whole number of hours"}
	}
	return secs / 3600, nil
}

func (s *Service) recordWritten(entries []ledger.Adjustment) {
	m := getMetrics()
	for _, e := range entries {
		m.adjustments.WithLabelValues(adjustmentKind(e.Returning)).Inc()
	}
}

func (s *Service) observe(event Event, err error) {
	getMetrics().transitions.WithLabelValues(string(event), resultLabel(err)).Inc()
}

func (s *Service) logFailure(msg, id string, err error) {
	if IsClientError(err) || IsNotFound(err) {
		s.logger.Warn(msg, zap.String("application_id", id), zap.Error(err))
		return
	}
	s.logger.Error(msg, zap.String("application_id", id), zap.Error(err))
}

func validateCreate(in CreateInput) error {
	if in.ID != "" {
		if _, err := uuid.Parse(in.ID); err != nil {
			return &ValidationError{Field: "id", Reason: "must be a uuid"}
		}
	}
	if strings.TrimSpace(in.EmployeeID) == "" {
		return &ValidationError{Field: "employee_id", Reason: "required"}
	}
	if in.Category == "" {
		return &ValidationError{Field: "category", Reason: "required"}
	}
	if !in.Category.Valid() {
		names := make([]string, len(Categories))
		for i, c := range Categories {
			names[i] = string(c)
		}
		return &ValidationError{Field: "category", Reason: "must be one of " + strings.Join(names, ", ")}
	}
	if strings.TrimSpace(in.Description) == "" {
		return &ValidationError{Field: "description", Reason: "required"}
	}
	return validateInterval(in.StartTime, in.EndTime)
}

func validateInterval(start, end time.Time) error {
	if start.IsZero() {
		return &ValidationError{Field: "start_time", Reason: "required"}
	}
	if end.IsZero() {
		return &ValidationError{Field: "end_time", Reason: "required"}
	}
	if !end.After(start) {
		return &ValidationError{Field: "end_time", Reason: "must be after start_time"}
	}
	if end.Sub(start)%time.Hour != 0 {
		return &ValidationError{Field: "end_time", Reason: "elapsed time must be a whole number of hours"}
	}
	return nil
}
