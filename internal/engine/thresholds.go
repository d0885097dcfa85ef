package engine

import (
	"context"
	"errors"
	"fmt"

	"wellcheck/internal/domain"
	"wellcheck/internal/events"
	"wellcheck/internal/jobs"
	"wellcheck/internal/repo"
	"wellcheck/internal/thresholds"
)

const thresholdsLockKey = "thresholds"

// LoadThresholds makes the newest stored config active. An empty store is
// seeded with seed as version 1.
func (e Engine) LoadThresholds(ctx context.Context, seed domain.ThresholdConfig) (domain.ThresholdConfig, error) {
	unlock := e.Locks.Lock(thresholdsLockKey)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ThresholdConfig{}, err
	}
	defer tx.Rollback()
	cfg, err := e.Repo.ActiveThresholds(ctx, tx)
	if err == nil {
		e.Thresholds.Store(cfg)
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return cfg, err
	}
	if err := thresholds.Validate(seed); err != nil {
		return domain.ThresholdConfig{}, err
	}
	seed.Version = 1
	seed.UpdatedAt = e.now()
	if seed.UpdatedBy == "" {
		seed.UpdatedBy = "bootstrap"
	}
	if err := e.Repo.InsertThresholds(ctx, tx, seed); err != nil {
		return domain.ThresholdConfig{}, fmt.Errorf("seed thresholds: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: events.ThresholdsUpdated, EntityKind: "threshold_config", EntityID: "1", ActorID: seed.UpdatedBy,
		Payload: events.EventPayload{"version": 1},
	}); err != nil {
		return domain.ThresholdConfig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ThresholdConfig{}, err
	}
	e.Thresholds.Store(seed)
	return seed, nil
}

func (e Engine) ActiveThresholds() domain.ThresholdConfig {
	return e.Thresholds.Load()
}

type ThresholdUpdate struct {
	Config domain.ThresholdConfig
	// ExpectedVersion, when non-zero, must match the active version.
	ExpectedVersion int
	ActorID         string
}

// UpdateThresholds validates and stores a whole new config as the next
// version. Existing check-ins keep the tier they were given.
func (e Engine) UpdateThresholds(ctx context.Context, u ThresholdUpdate) (domain.ThresholdConfig, error) {
	next := u.Config
	if err := thresholds.Validate(next); err != nil {
		return domain.ThresholdConfig{}, err
	}
	if u.ActorID == "" {
		u.ActorID = "system"
	}
	unlock := e.Locks.Lock(thresholdsLockKey)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ThresholdConfig{}, err
	}
	defer tx.Rollback()

	current, err := e.Repo.ActiveThresholds(ctx, tx)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return domain.ThresholdConfig{}, err
	}
	if u.ExpectedVersion != 0 && u.ExpectedVersion != current.Version {
		return domain.ThresholdConfig{}, domain.ConflictError{
			Reason: fmt.Sprintf("thresholds are at version %d, not %d", current.Version, u.ExpectedVersion),
		}
	}
	next.Version = current.Version + 1
	next.UpdatedAt = e.now()
	next.UpdatedBy = u.ActorID
	if err := e.Repo.InsertThresholds(ctx, tx, next); err != nil {
		return domain.ThresholdConfig{}, fmt.Errorf("insert thresholds: %w", err)
	}
	if err := e.appendEvent(ctx, tx, events.Entry{
		Type: events.ThresholdsUpdated, EntityKind: "threshold_config", EntityID: fmt.Sprint(next.Version), ActorID: u.ActorID,
		Payload: events.EventPayload{"version": next.Version, "previous_version": current.Version},
	}); err != nil {
		return domain.ThresholdConfig{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ThresholdConfig{}, err
	}
	e.Thresholds.Store(next)
	logger.InfoContext(ctx, "thresholds updated", "version", next.Version, "actor", u.ActorID)

	e.enqueue(ctx, jobs.Spec{
		Queue:          jobs.QueueReportCache,
		Type:           jobs.TypeReportCacheFlush,
		Payload:        jobs.ReportCacheFlush{ThresholdVersion: next.Version},
		IdempotencyKey: jobs.ReportCacheFlushKey(next.Version),
	})
	return next, nil
}

func (e Engine) ThresholdHistory(ctx context.Context, limit int) ([]domain.ThresholdConfig, error) {
	return e.Repo.ListThresholdVersions(ctx, limit)
}
