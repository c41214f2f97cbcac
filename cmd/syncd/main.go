// Copyright (c) 2026 Rensai. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command syncd is the entry point for the Rensai chapter sync daemon.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire stores, the canonicalization engine, the ingestion processor,
//     the queue, the worker pool, and the scheduler.
//  7. Start the scheduler, the workers, and the operational HTTP server,
//     then block until a termination signal.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/rensai/internal/api"
	"github.com/taibuivan/rensai/internal/core/canonical"
	"github.com/taibuivan/rensai/internal/core/chapter"
	"github.com/taibuivan/rensai/internal/core/ingest"
	"github.com/taibuivan/rensai/internal/core/series"
	"github.com/taibuivan/rensai/internal/core/source"
	"github.com/taibuivan/rensai/internal/platform/config"
	"github.com/taibuivan/rensai/internal/platform/constants"
	"github.com/taibuivan/rensai/internal/platform/migration"
	pgstore "github.com/taibuivan/rensai/internal/platform/postgres"
	redisstore "github.com/taibuivan/rensai/internal/platform/redis"
	"github.com/taibuivan/rensai/internal/queue"
	"github.com/taibuivan/rensai/internal/scheduler"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", constants.AppName))
	slog.SetDefault(log)

	log.Info("[Rensai] service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", constants.AppName))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Int("workers", cfg.WorkerCount),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Domain Wiring ──────────────────────────────────────────────────
	seriesRepo := series.NewRepository(pool)
	sourceRepo := series.NewSourceRepository(pool)
	chapterStore := chapter.NewStore(pool)
	reviewStore := canonical.NewReviewStore(pool)
	mergeStore := canonical.NewMergeStore(pool)

	engine := canonical.NewEngine()
	locks := pgstore.NewSessionLocker(pool)
	canonicalService := canonical.NewService(engine, seriesRepo, sourceRepo, reviewStore, mergeStore, locks, log)

	sourceClient := source.NewHTTPClient(cfg.SourceEndpoints)
	processor := ingest.NewProcessor(sourceClient, chapterStore, sourceRepo, log)

	letters := queue.NewDeadLetterStore(pool)
	jobQueue := queue.NewRedisQueue(rdb, letters, log)
	breakers := queue.NewBreakerSet()

	handlers := map[queue.SyncType]queue.HandlerFunc{
		queue.TypeFull: func(ctx context.Context, link *series.SeriesSource, commitCheck chapter.CommitCheck) error {
			_, err := processor.Sync(ctx, link, commitCheck)
			return err
		},
		queue.TypeIncremental: func(ctx context.Context, link *series.SeriesSource, commitCheck chapter.CommitCheck) error {
			_, err := processor.SyncIncremental(ctx, link, commitCheck)
			return err
		},
	}
	workers := queue.NewWorkerPool(cfg, jobQueue, sourceRepo, breakers, handlers, log)
	sched := scheduler.New(cfg, sourceRepo, jobQueue, log)

	// ── 7. Operational HTTP Surface ───────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckQueue: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	server := api.NewServer(cfg, log, api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Stats: api.NewStatsHandler(api.StatsDependencies{
			Queue:    jobQueue,
			Letters:  letters,
			Breakers: breakers,
			Sources:  sourceRepo,
		}),
		Review: api.NewReviewHandler(canonicalService, reviewStore),
		Source: api.NewSourceHandler(canonicalService),
	})

	// ── 8. Run Until Signalled ────────────────────────────────────────────
	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		_ = sched.Run(runCtx)
	}()

	workersDone := make(chan struct{})
	go func() {
		defer close(workersDone)
		if err := workers.Run(runCtx); err != nil {
			log.Error("worker pool stopped with error", slog.Any("error", err))
		}
	}()

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped with error", slog.Any("error", err))
			stop()
		}
	}()

	<-runCtx.Done()
	log.Info("shutdown_signal_received")

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	// Workers finish their in-flight jobs; the deadline keeps a wedged job
	// from holding the process hostage.
	shutdownTimer := time.NewTimer(constants.ShutdownTimeout)
	defer shutdownTimer.Stop()

	for _, done := range []chan struct{}{schedulerDone, workersDone} {
		select {
		case <-done:
		case <-shutdownTimer.C:
			log.Warn("shutdown_deadline_exceeded")
		}
	}

	if err := server.Shutdown(constants.ShutdownTimeout); err != nil {
		log.Error("http server shutdown error", slog.Any("error", err))
	}

	log.Info("service_stopped")
}

// must aborts startup with a structured log entry when err is non-nil.
func must(log *slog.Logger, err error, action string) {
	if err != nil {
		log.Error("startup_failed",
			slog.String("action", action),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
