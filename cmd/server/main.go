/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger. Handles configuration,
  dependency injection, and graceful shutdown.

COMMANDS:
  serve   Run the HTTP API and the scheduled ledger audit (default)
  audit   Replay every employee's adjustment log once and exit non-zero
          on drift

FLAGS (override environment, see config/config.go):
  --port  HTTP server port
  --db    SQLite database path, ":memory:" for in-memory

STARTUP SEQUENCE:
  1. Load config (.env, .env.local, environment)
  2. Build the zap logger and install it globally
  3. Open the SQLite store
  4. Build calendar, pool resolver and balance locker
  5. Create the leave service and run the command

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the audit scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  ./server serve --db="./data/leave.db"
  ./server serve --db=":memory:" --port=3000
  REDIS_ADDR=localhost:6379 ./server serve
  ./server audit

SEE ALSO:
  - api/server.go: Router configuration
  - leave/service.go: Leave lifecycle
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/leave-ledger/calendar"
	"github.com/warp/leave-ledger/config"
	"github.com/warp/leave-ledger/factory"
	"github.com/warp/leave-ledger/leave"
	"github.com/warp/leave-ledger/lock"
	"github.com/warp/leave-ledger/store/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type flags struct {
	port   int
	dbPath string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Leave balance ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().IntVar(&f.port, "port", 0, "HTTP server port (overrides PORT)")
	cmd.PersistentFlags().StringVar(&f.dbPath, "db", "", "SQLite database path (overrides LEAVE_DB_PATH)")

	serve := newServeCmd(&f)
	cmd.AddCommand(serve)
	cmd.AddCommand(newAuditCmd(&f))
	cmd.RunE = serve.RunE
	return cmd
}

// app is the wired dependency graph shared by every command.
type app struct {
	cfg     *config.Config
	logger  *zap.Logger
	store   *sqlite.Store
	service *leave.Service
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(f *flags) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if f.port != 0 {
		cfg.Port = f.port
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}

	logger, err := cfg.Logger()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	zap.ReplaceGlobals(logger)
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a.store = store
	a.closers = append(a.closers, func() { store.Close() })

	loc, err := cfg.Location()
	if err != nil {
		a.Close()
		return nil, err
	}
	cal := &calendar.WorkingHours{
		DayStart: cfg.Workday.Start,
		DayEnd:   cfg.Workday.End,
		Location: loc,
		Holidays: store,
	}

	resolver, err := factory.LoadPools(cfg.PoolFile)
	if err != nil {
		a.Close()
		return nil, err
	}

	var locker lock.Locker = lock.NewLocal()
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		locker = lock.NewRedis(client, cfg.Redis.LockTTL)
		a.closers = append(a.closers, func() { client.Close() })
		logger.Info("using redis balance lock", zap.String("addr", cfg.Redis.Addr))
	}

	a.service = leave.NewService(store, resolver, cal, nil,
		leave.WithLocker(locker),
		leave.WithLogger(logger),
	)
	return a, nil
}
