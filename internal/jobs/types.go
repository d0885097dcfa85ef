// Package jobs runs named in-process queues with retry, backoff, per-key
// ordering and idempotency-key deduplication.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue names.
const (
	QueueNotifications = "notifications"
	QueueAnalysis      = "analysis"
	QueueReportCache   = "report-cache"
)

// Job types.
const (
	TypeCriticalAlert    = "critical-alert"
	TypePlanDecided      = "plan-decided"
	TypeCheckInAnalysis  = "checkin-analysis"
	TypeReportCacheFlush = "report-cache-flush"
)

var (
	ErrQueueStopped = errors.New("job queue has been stopped")
	ErrDuplicate    = errors.New("job with this idempotency key already enqueued")
	ErrUnknownQueue = errors.New("unknown queue")
	ErrNoHandler    = errors.New("no handler registered for job type")
)

// Policy controls retries and retention for a queue.
type Policy struct {
	MaxAttempts      int
	BaseDelay        time.Duration
	RemoveOnComplete bool
	KeepFailed       int
	// DedupTTL is how long a completed job's idempotency key keeps
	// rejecting new enqueues.
	DedupTTL time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:      3,
		BaseDelay:        time.Second,
		RemoveOnComplete: true,
		KeepFailed:       1000,
		DedupTTL:         24 * time.Hour,
	}
}

// Backoff is the wait after the n-th failed attempt: BaseDelay * 2^(n-1).
// With MaxAttempts 3 only Backoff(1) and Backoff(2) are ever waited; the third
// failure moves the job to the failed set.
func (p Policy) Backoff(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return p.BaseDelay << (n - 1)
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.KeepFailed < 0 {
		p.KeepFailed = 0
	}
	if p.DedupTTL <= 0 {
		p.DedupTTL = d.DedupTTL
	}
	return p
}

// Spec describes a job to enqueue. Payload must be JSON-serializable.
type Spec struct {
	Queue          string
	Type           string
	Payload        any
	OrderingKey    string
	IdempotencyKey string
}

type Job struct {
	ID             string          `json:"id"`
	Queue          string          `json:"queue"`
	Type           string          `json:"type"`
	Payload        json.RawMessage `json:"payload"`
	OrderingKey    string          `json:"ordering_key,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
	Attempts       int             `json:"attempts"`
	EnqueuedAt     time.Time       `json:"enqueued_at" format:"date-time"`
	NextRunAt      time.Time       `json:"next_run_at" format:"date-time"`
	LastError      string          `json:"last_error,omitempty"`
}

// Decode unmarshals the payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Type, err)
	}
	return nil
}

// FailedJob is a job that used up its attempts.
type FailedJob struct {
	Job      Job                  `json:"job"`
	FailedAt time.Time            `json:"failed_at" format:"date-time"`
	Err      *ExhaustedRetryError `json:"-"`
}

// ExhaustedRetryError is recorded on a job that failed MaxAttempts times.
type ExhaustedRetryError struct {
	JobID    string
	Queue    string
	Attempts int
	Err      error
}

func (e *ExhaustedRetryError) Error() string {
	return fmt.Sprintf("job %s on queue %s failed after %d attempts: %v", e.JobID, e.Queue, e.Attempts, e.Err)
}

func (e *ExhaustedRetryError) Unwrap() error {
	return e.Err
}

// Handler processes one job. Returning an error schedules a retry until
// the policy's attempts run out.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Observer receives queue metrics.
type Observer interface {
	JobEnqueued(queue string)
	JobDuplicate(queue string)
	JobCompleted(queue string, latency time.Duration)
	JobRetried(queue string)
	JobFailed(queue string)
	SetPending(queue string, n int)
}

type nopObserver struct{}

func (nopObserver) JobEnqueued(string)                 {}
func (nopObserver) JobDuplicate(string)                {}
func (nopObserver) JobCompleted(string, time.Duration) {}
func (nopObserver) JobRetried(string)                  {}
func (nopObserver) JobFailed(string)                   {}
func (nopObserver) SetPending(string, int)             {}

// Stats is a point-in-time view of a queue.
type Stats struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
	Running int    `json:"running"`
	Failed  int    `json:"failed"`
}
