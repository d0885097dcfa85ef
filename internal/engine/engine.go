package engine

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"wellcheck/internal/events"
	"wellcheck/internal/jobs"
	"wellcheck/internal/keylock"
	"wellcheck/internal/repo"
	"wellcheck/internal/thresholds"
)

var logger = slog.Default().With("service", "engine")

// Enqueuer accepts jobs once the state they report has committed.
type Enqueuer interface {
	Enqueue(ctx context.Context, s jobs.Spec) (jobs.Job, error)
}

// Observer receives lifecycle metrics.
type Observer interface {
	CheckIn(tier string)
	Transition(kind string)
}

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Thresholds *thresholds.Active
	Locks      *keylock.Map
	Jobs       Enqueuer
	Metrics    Observer
	// Timezone is used when a check-in carries none.
	Timezone string
	Now      func() time.Time
}

func New(db *sql.DB, timezone string) Engine {
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{},
		Thresholds: thresholds.NewActive(thresholds.Default()),
		Locks:      keylock.New(),
		Timezone:   timezone,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) appendEvent(ctx context.Context, tx *sql.Tx, entry events.Entry) error {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w.Append(ctx, tx, entry)
}

func (e Engine) lockEmployee(employeeID string) func() {
	return e.Locks.Lock("employee:" + employeeID)
}

// enqueue hands a job to the dispatcher. Failures are logged and dropped:
// the state change behind the job has already committed.
func (e Engine) enqueue(ctx context.Context, s jobs.Spec) {
	if e.Jobs == nil {
		return
	}
	_, err := e.Jobs.Enqueue(context.WithoutCancel(ctx), s)
	switch {
	case err == nil:
	case errors.Is(err, jobs.ErrDuplicate):
		logger.DebugContext(ctx, "duplicate job skipped", "job_type", s.Type, "idempotency_key", s.IdempotencyKey)
	default:
		logger.ErrorContext(ctx, "enqueue failed", "queue", s.Queue, "job_type", s.Type, "error", err)
	}
}

func (e Engine) observeCheckIn(tier string) {
	if e.Metrics != nil {
		e.Metrics.CheckIn(tier)
	}
}

func (e Engine) observeTransition(t Transition) {
	if e.Metrics != nil && t != TransitionNone {
		e.Metrics.Transition(string(t))
	}
}
