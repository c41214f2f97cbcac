// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, Queue) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the daemon is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/taibuivan/rensai/internal/platform/constants"
)

// # Configuration Schema

// Config holds all runtime configuration for the Rensai sync daemon.
type Config struct {

	// Server settings (operational/health surface)
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Queue transport and lease state (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Scheduler settings
	SchedulerInterval time.Duration `env:"SCHEDULER_INTERVAL" envDefault:"1m"`
	SchedulerBatchCap int           `env:"SCHEDULER_BATCH_CAP" envDefault:"500"`

	// SchedulerFailureCeiling halts a scheduler run early once this many
	// per-row selection failures have accumulated. Zero means never halt.
	SchedulerFailureCeiling int `env:"SCHEDULER_FAILURE_CEILING" envDefault:"0"`

	// Worker pool caps. Each cap is enforced independently.
	WorkerCount    int `env:"WORKER_COUNT" envDefault:"8"`
	MaxPerQueue    int `env:"MAX_PER_QUEUE" envDefault:"8"`
	MaxPerSource   int `env:"MAX_PER_SOURCE" envDefault:"2"`
	MaxJobAttempts int `env:"MAX_JOB_ATTEMPTS" envDefault:"5"`

	// SourceRatePerSecond throttles upstream fetches per source.
	SourceRatePerSecond float64 `env:"SOURCE_RATE_PER_SECOND" envDefault:"2"`
	SourceRateBurst     int     `env:"SOURCE_RATE_BURST" envDefault:"4"`

	// SourceEndpoints maps source names to connector base URLs,
	// e.g. "mangazone:http://connector-mz:9000,comicvault:http://connector-cv:9000".
	SourceEndpoints map[string]string `env:"SOURCE_ENDPOINTS"`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	// An explicit zero or negative cap would wedge the scheduler or retry
	// every job forever; fall back to the platform defaults instead.
	if cfg.SchedulerBatchCap <= 0 {
		cfg.SchedulerBatchCap = constants.DefaultBatchCap
	}
	if cfg.MaxJobAttempts <= 0 {
		cfg.MaxJobAttempts = constants.DefaultMaxAttempts
	}

	return cfg, nil
}

// IsDevelopment reports whether the daemon is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the daemon is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
