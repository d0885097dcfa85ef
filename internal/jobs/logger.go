package jobs

import (
	"context"
	"log/slog"
	"time"
)

const serviceName = "jobs"

var logger = slog.Default().With("service", serviceName)

func logJobEnqueued(ctx context.Context, j Job) {
	logger.DebugContext(ctx, "Job enqueued",
		"job_id", j.ID,
		"queue", j.Queue,
		"job_type", j.Type,
		"ordering_key", j.OrderingKey)
}

func logJobCompleted(ctx context.Context, j Job, duration time.Duration) {
	logger.InfoContext(ctx, "Job completed",
		"job_id", j.ID,
		"queue", j.Queue,
		"job_type", j.Type,
		"attempt", j.Attempts,
		"duration_ms", duration.Milliseconds())
}

// logJobFailed logs at Warn while retries remain and at Error once exhausted.
func logJobFailed(ctx context.Context, j Job, maxAttempts int, retryIn time.Duration, err error) {
	args := []any{
		"job_id", j.ID,
		"queue", j.Queue,
		"job_type", j.Type,
		"attempt", j.Attempts,
		"max_attempts", maxAttempts,
		"error", err,
		"will_retry", j.Attempts < maxAttempts,
	}
	if j.Attempts >= maxAttempts {
		logger.ErrorContext(ctx, "Job failed permanently", args...)
		return
	}
	args = append(args, "retry_in_ms", retryIn.Milliseconds())
	logger.WarnContext(ctx, "Job failed", args...)
}
