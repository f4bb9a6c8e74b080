/*
config.go - Process configuration

PURPOSE:
  Loads server settings from the environment, optionally seeded from
  .env and .env.local files in the working directory. Command-line flags
  in cmd/server override the port and database path.

VARIABLES:
  PORT                  HTTP port (default 8080)
  LEAVE_DB_PATH         SQLite file, ":memory:" for throwaway runs
  LOG_LEVEL             debug | info | warn | error
  LOG_DEVELOPMENT       console encoder and stack traces on warn
  WORKDAY_START/END     working window as durations from midnight
  WORKDAY_TZ            IANA zone the window is evaluated in
  POOL_SPLIT_FILE       JSON annual-share config; empty uses the default
  REDIS_ADDR            enables the Redis balance lock when set
  LOCK_TTL              Redis lock expiry
  AUDIT_SCHEDULE        cron spec for the ledger audit
  AUDIT_ENABLED
  METRICS_PATH          empty disables the endpoint
  CORS_ALLOWED_ORIGINS  comma separated

SEE ALSO:
  - cmd/server/main.go: wiring
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DefaultEnvFiles are loaded in order when present. Variables already set
// in the environment win.
var DefaultEnvFiles = []string{".env", ".env.local"}

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"LEAVE_DB_PATH" envDefault:"leave.db"`

	Log      LogOptions
	Workday  WorkdayOptions
	Redis    RedisOptions
	Audit    AuditOptions
	HTTP     HTTPOptions
	PoolFile string `env:"POOL_SPLIT_FILE"`
}

type LogOptions struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Development bool   `env:"LOG_DEVELOPMENT" envDefault:"false"`
}

type WorkdayOptions struct {
	Start    time.Duration `env:"WORKDAY_START" envDefault:"9h"`
	End      time.Duration `env:"WORKDAY_END" envDefault:"17h"`
	Timezone string        `env:"WORKDAY_TZ" envDefault:"UTC"`
}

type RedisOptions struct {
	Addr    string        `env:"REDIS_ADDR"`
	LockTTL time.Duration `env:"LOCK_TTL" envDefault:"10s"`
}

type AuditOptions struct {
	Schedule string `env:"AUDIT_SCHEDULE" envDefault:"0 2 * * *"`
	Enabled  bool   `env:"AUDIT_ENABLED" envDefault:"true"`
}

type HTTPOptions struct {
	MetricsPath    string   `env:"METRICS_PATH" envDefault:"/metrics"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

// Load reads env files that exist and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = DefaultEnvFiles
	}
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	c := &Config{}
	if err := env.Parse(c); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func loadEnvFiles(files []string) error {
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// Validate checks values env.Parse cannot.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if c.DBPath == "" {
		return fmt.Errorf("LEAVE_DB_PATH is required")
	}
	if c.Workday.Start < 0 || c.Workday.End > 24*time.Hour || c.Workday.End <= c.Workday.Start {
		return fmt.Errorf("working window %s-%s is invalid", c.Workday.Start, c.Workday.End)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.Redis.Addr != "" && c.Redis.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive when REDIS_ADDR is set")
	}
	return nil
}

// Location resolves WORKDAY_TZ.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Workday.Timezone)
	if err != nil {
		return nil, fmt.Errorf("WORKDAY_TZ %q: %w", c.Workday.Timezone, err)
	}
	return loc, nil
}

// Logger builds the process logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
