/*
scheduler.go - Scheduled ledger audit

PURPOSE:
  Periodically replays every employee's adjustment log and compares the
  result with the stored balances. Drift is logged and exported through
  the leave_audit_drift gauge; nothing is repaired automatically.

DESIGN:
  - Driven by a robfig/cron schedule (default: daily at 02:00)
  - Overlapping runs are skipped, not queued
  - Each run has its own timeout so a slow store cannot pile up runs

CONFIGURATION:
  - Schedule: cron spec or descriptor ("@hourly", "0 2 * * *")
  - Enabled:  Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewAuditScheduler(service, logger)
  if err := scheduler.Start(); err != nil { ... }
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: AuditAll endpoint (manual audit)
  - leave/service.go: Service.Audit
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/leave"
)

// DefaultAuditSchedule runs the audit once a day outside business hours.
const DefaultAuditSchedule = "0 2 * * *"

// AuditScheduler runs leave.Service.AuditAll on a cron schedule.
type AuditScheduler struct {
	Service  *leave.Service
	Schedule string
	Enabled  bool
	Timeout  time.Duration

	cron   *cron.Cron
	entry  cron.EntryID
	logger *zap.Logger
	mu     sync.Mutex
}

func NewAuditScheduler(svc *leave.Service, logger *zap.Logger) *AuditScheduler {
	if logger == nil {
		logger = zap.L()
	}
	return &AuditScheduler{
		Service:  svc,
		Schedule: DefaultAuditSchedule,
		Enabled:  true,
		Timeout:  5 * time.Minute,
		logger:   logger.Named("audit.scheduler"),
	}
}

// Start registers the audit job and starts the cron runner. It is a no-op
// when the scheduler is disabled or already running.
func (as *AuditScheduler) Start() error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.logger.Info("audit scheduler disabled")
		return nil
	}
	if as.cron != nil {
		return nil
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	id, err := c.AddFunc(as.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), as.Timeout)
		defer cancel()
		_, _ = as.RunNow(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid audit schedule %q: %w", as.Schedule, err)
	}
	c.Start()

	as.cron = c
	as.entry = id
	as.logger.Info("audit scheduler started", zap.String("schedule", as.Schedule))
	return nil
}

// Stop stops the cron runner and waits for a running audit to finish.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cron == nil {
		return
	}
	<-as.cron.Stop().Done()
	as.cron = nil
	as.logger.Info("audit scheduler stopped")
}

// RunNow audits every employee immediately.
func (as *AuditScheduler) RunNow(ctx context.Context) ([]leave.AuditReport, error) {
	start := time.Now()
	reports, err := as.Service.AuditAll(ctx)
	if err != nil {
		as.logger.Error("audit run failed", zap.Error(err))
		return nil, err
	}

	drifted := 0
	for _, r := range reports {
		if !r.Clean() {
			drifted++
		}
	}
	as.logger.Info("audit run completed",
		zap.Int("employees", len(reports)),
		zap.Int("drifted", drifted),
		zap.Duration("duration", time.Since(start)),
	)
	return reports, nil
}

// NextRun returns when the next scheduled audit will occur, or the zero
// time when the scheduler is not running.
func (as *AuditScheduler) NextRun() time.Time {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cron == nil {
		return time.Time{}
	}
	return as.cron.Entry(as.entry).Next
}
