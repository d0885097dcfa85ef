// Package app wires the database, engine, job dispatcher and handlers from a
// workspace's wellcheck.yml.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wellcheck/internal/config"
	"wellcheck/internal/db"
	"wellcheck/internal/engine"
	"wellcheck/internal/jobs"
	"wellcheck/internal/metrics"
	"wellcheck/internal/migrate"
	"wellcheck/internal/notify"
	"wellcheck/internal/report"
)

var logger = slog.Default().With("service", "app")

// App is a running wellcheck workspace.
type App struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Jobs      *jobs.Dispatcher
	Metrics   *metrics.Collector
	Reports   *report.Reporter
	Notifier  *notify.Notifier
}

// Open migrates the workspace database, seeds or loads the active thresholds
// and registers the job handlers. Workers are not started.
func Open(ctx context.Context, workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, workspace, cfg)
}

func OpenWithConfig(ctx context.Context, workspace string, cfg *config.Config) (*App, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a, err := build(ctx, workspace, cfg, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, workspace string, cfg *config.Config, conn *sql.DB) (*App, error) {
	if err := migrate.Migrate(ctx, conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	collector := metrics.NewCollector(nil)
	dispatcher := jobs.NewDispatcher(cfg.JobPolicy(), collector, cfg.Jobs.Concurrency)

	eng := engine.New(conn, cfg.Timezone)
	eng.Jobs = dispatcher
	eng.Metrics = collector
	active, err := eng.LoadThresholds(ctx, cfg.ThresholdConfig())
	if err != nil {
		return nil, fmt.Errorf("load thresholds: %w", err)
	}

	reports := report.New(eng.Repo, cfg.Timezone, cfg.Reports.CacheTTL)
	notifier := notify.NewNotifier(eng.Repo, cfg.Notifications.Webhooks)
	analyzer := &notify.Analyzer{DB: conn, Repo: eng.Repo, Events: eng.Events}
	if err := notify.Register(dispatcher, notifier, analyzer, &notify.CacheFlusher{Cache: reports}); err != nil {
		return nil, fmt.Errorf("register job handlers: %w", err)
	}
	logger.Info("workspace opened",
		"workspace", workspace,
		"timezone", cfg.Timezone,
		"threshold_version", active.Version)
	return &App{
		Workspace: workspace,
		Config:    cfg,
		DB:        conn,
		Engine:    eng,
		Jobs:      dispatcher,
		Metrics:   collector,
		Reports:   reports,
		Notifier:  notifier,
	}, nil
}

// Start launches the queue workers.
func (a *App) Start(ctx context.Context) {
	a.Jobs.Start(ctx)
}

// Drain waits up to timeout for queued jobs, then stops the workers and
// closes the database. Jobs still pending when the timeout hits are lost.
func (a *App) Drain(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	var errs []error
	if err := a.Jobs.WaitIdle(ctx); err != nil {
		for _, s := range a.Jobs.Stats() {
			if s.Pending > 0 {
				logger.Warn("jobs abandoned on shutdown", "queue", s.Queue, "pending", s.Pending)
			}
		}
		errs = append(errs, fmt.Errorf("wait for jobs: %w", err))
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), timeout)
	defer stopCancel()
	if err := a.Jobs.Stop(stopCtx); err != nil {
		errs = append(errs, err)
	}
	if err := a.DB.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RunSweeper expires due watchlist entries every interval until ctx ends.
func (a *App) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = a.Config.Watchlist.SweepInterval
	}
	if interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := a.Engine.SweepWatchlist(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("watchlist sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("watchlist entries expired", "count", n)
			}
		}
	}
}
