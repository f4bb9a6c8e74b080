// Package memory provides an in-memory leave.TxStore for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	s  *state
}

func New() *Memory {
	return &Memory{s: newState()}
}

// state holds the data. Its methods assume the caller holds Memory.mu.
type state struct {
	apps        map[string]leave.Application
	balances    map[ledger.BalanceKey]ledger.Balance
	adjustments map[string][]ledger.Adjustment
	signatures  map[string][]leave.Signature
	holidays    map[string]calendar.Holiday
	seq         int64
}

func newState() *state {
	return &state{
		apps:        make(map[string]leave.Application),
		balances:    make(map[ledger.BalanceKey]ledger.Balance),
		adjustments: make(map[string][]ledger.Adjustment),
		signatures:  make(map[string][]leave.Signature),
		holidays:    make(map[string]calendar.Holiday),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.apps {
		c.apps[k] = copyApp(v)
	}
	for k, v := range s.balances {
		c.balances[k] = v
	}
	for k, v := range s.adjustments {
		c.adjustments[k] = append([]ledger.Adjustment(nil), v...)
	}
	for k, v := range s.signatures {
		c.signatures[k] = append([]leave.Signature(nil), v...)
	}
	for k, v := range s.holidays {
		c.holidays[k] = v
	}
	c.seq = s.seq
	return c
}

func copyApp(a leave.Application) leave.Application {
	if a.DeletedAt != nil {
		t := *a.DeletedAt
		a.DeletedAt = &t
	}
	return a
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a private copy and swaps it in on success.
func (m *Memory) WithTx(_ context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.s.clone()
	if err := fn(work); err != nil {
		return err
	}
	m.s = work
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) read(fn func(s *state)) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fn(m.s)
}

func (m *Memory) write(fn func(s *state)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.s)
}

func (m *Memory) CreateApplication(ctx context.Context, app leave.Application) (err error) {
	m.write(func(s *state) { err = s.CreateApplication(ctx, app) })
	return err
}

func (m *Memory) UpdateApplication(ctx context.Context, app leave.Application) (err error) {
	m.write(func(s *state) { err = s.UpdateApplication(ctx, app) })
	return err
}

func (m *Memory) GetApplication(ctx context.Context, id string) (app *leave.Application, err error) {
	m.read(func(s *state) { app, err = s.GetApplication(ctx, id) })
	return app, err
}

func (m *Memory) ListApplications(ctx context.Context, f leave.ApplicationFilter) (apps []leave.Application, err error) {
	m.read(func(s *state) { apps, err = s.ListApplications(ctx, f) })
	return apps, err
}

func (m *Memory) EmployeeIDs(ctx context.Context) (ids []string, err error) {
	m.read(func(s *state) { ids, err = s.EmployeeIDs(ctx) })
	return ids, err
}

func (m *Memory) AppendSignature(ctx context.Context, sig leave.Signature) (err error) {
	m.write(func(s *state) { err = s.AppendSignature(ctx, sig) })
	return err
}

func (m *Memory) Signatures(ctx context.Context, id string) (sigs []leave.Signature, err error) {
	m.read(func(s *state) { sigs, err = s.Signatures(ctx, id) })
	return sigs, err
}

func (m *Memory) GetOrCreateBalance(ctx context.Context, key ledger.BalanceKey) (b ledger.Balance, err error) {
	m.write(func(s *state) { b, err = s.GetOrCreateBalance(ctx, key) })
	return b, err
}

func (m *Memory) SaveBalance(ctx context.Context, b ledger.Balance) (err error) {
	m.write(func(s *state) { err = s.SaveBalance(ctx, b) })
	return err
}

func (m *Memory) Balances(ctx context.Context, employeeID string) (out []ledger.Balance, err error) {
	m.read(func(s *state) { out, err = s.Balances(ctx, employeeID) })
	return out, err
}

func (m *Memory) AppendAdjustment(ctx context.Context, a ledger.Adjustment) (out ledger.Adjustment, err error) {
	m.write(func(s *state) { out, err = s.AppendAdjustment(ctx, a) })
	return out, err
}

func (m *Memory) Adjustments(ctx context.Context, id string) (out []ledger.Adjustment, err error) {
	m.read(func(s *state) { out, err = s.Adjustments(ctx, id) })
	return out, err
}

func (m *Memory) LatestAdjustment(ctx context.Context, id string) (out *ledger.Adjustment, err error) {
	m.read(func(s *state) { out, err = s.LatestAdjustment(ctx, id) })
	return out, err
}

func (m *Memory) SaveHoliday(ctx context.Context, h calendar.Holiday) (err error) {
	m.write(func(s *state) { err = s.SaveHoliday(ctx, h) })
	return err
}

func (m *Memory) DeleteHoliday(ctx context.Context, id string) (err error) {
	m.write(func(s *state) { err = s.DeleteHoliday(ctx, id) })
	return err
}

func (m *Memory) ListHolidays(ctx context.Context) (out []calendar.Holiday, err error) {
	m.read(func(s *state) { out, err = s.ListHolidays(ctx) })
	return out, err
}

func (m *Memory) IsHoliday(ctx context.Context, date time.Time) (ok bool, err error) {
	m.read(func(s *state) { ok, err = s.IsHoliday(ctx, date) })
	return ok, err
}

// =============================================================================
// STATE (leave.Store)
// =============================================================================

func (s *state) CreateApplication(_ context.Context, app leave.Application) error {
	s.apps[app.ID] = copyApp(app)
	return nil
}

func (s *state) UpdateApplication(_ context.Context, app leave.Application) error {
	if _, ok := s.apps[app.ID]; !ok {
		return leave.ErrApplicationNotFound
	}
	s.apps[app.ID] = copyApp(app)
	return nil
}

func (s *state) GetApplication(_ context.Context, id string) (*leave.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, nil
	}
	app = copyApp(app)
	return &app, nil
}

func (s *state) ListApplications(_ context.Context, f leave.ApplicationFilter) ([]leave.Application, error) {
	var out []leave.Application
	for _, app := range s.apps {
		if f.EmployeeID != "" && app.EmployeeID != f.EmployeeID {
			continue
		}
		if f.Status != "" && app.Status != f.Status {
			continue
		}
		if !f.IncludeDeleted && app.Deleted() {
			continue
		}
		out = append(out, copyApp(app))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) EmployeeIDs(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, app := range s.apps {
		if !seen[app.EmployeeID] {
			seen[app.EmployeeID] = true
			ids = append(ids, app.EmployeeID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *state) AppendSignature(_ context.Context, sig leave.Signature) error {
	s.signatures[sig.ApplicationID] = append(s.signatures[sig.ApplicationID], sig)
	return nil
}

func (s *state) Signatures(_ context.Context, id string) ([]leave.Signature, error) {
	return append([]leave.Signature(nil), s.signatures[id]...), nil
}

func (s *state) GetOrCreateBalance(_ context.Context, key ledger.BalanceKey) (ledger.Balance, error) {
	b, ok := s.balances[key]
	if !ok {
		b = ledger.Balance{Key: key, UpdatedAt: time.Now().UTC()}
		s.balances[key] = b
	}
	return b, nil
}

func (s *state) SaveBalance(_ context.Context, b ledger.Balance) error {
	s.balances[b.Key] = b
	return nil
}

func (s *state) Balances(_ context.Context, employeeID string) ([]ledger.Balance, error) {
	var out []ledger.Balance
	for k, b := range s.balances {
		if k.EmployeeID == employeeID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out, nil
}

// AppendAdjustment is append-only; entries are never replaced.
func (s *state) AppendAdjustment(_ context.Context, a ledger.Adjustment) (ledger.Adjustment, error) {
	s.seq++
	a.Seq = s.seq
	s.adjustments[a.ApplicationID] = append(s.adjustments[a.ApplicationID], a)
	return a, nil
}

func (s *state) Adjustments(_ context.Context, id string) ([]ledger.Adjustment, error) {
	return append([]ledger.Adjustment(nil), s.adjustments[id]...), nil
}

func (s *state) LatestAdjustment(_ context.Context, id string) (*ledger.Adjustment, error) {
	entries := s.adjustments[id]
	if len(entries) == 0 {
		return nil, nil
	}
	last := entries[len(entries)-1]
	return &last, nil
}

// =============================================================================
// HOLIDAYS (calendar.HolidayStore)
// =============================================================================

func (s *state) SaveHoliday(_ context.Context, h calendar.Holiday) error {
	for id, existing := range s.holidays {
		if id == h.ID || (existing.Name == h.Name && sameDay(existing.Date, h.Date)) {
			return calendar.ErrHolidayExists
		}
	}
	s.holidays[h.ID] = h
	return nil
}

func sameDay(a, b time.Time) bool {
	return a.Format(time.DateOnly) == b.Format(time.DateOnly)
}

func (s *state) DeleteHoliday(_ context.Context, id string) error {
	if _, ok := s.holidays[id]; !ok {
		return calendar.ErrHolidayNotFound
	}
	delete(s.holidays, id)
	return nil
}

func (s *state) ListHolidays(_ context.Context) ([]calendar.Holiday, error) {
	out := make([]calendar.Holiday, 0, len(s.holidays))
	for _, h := range s.holidays {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *state) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	hs, _ := s.ListHolidays(ctx)
	return calendar.StaticHolidays(hs).IsHoliday(ctx, date)
}

var (
	_ leave.TxStore         = (*Memory)(nil)
	_ leave.Store           = (*state)(nil)
	_ calendar.HolidayStore = (*Memory)(nil)
)
