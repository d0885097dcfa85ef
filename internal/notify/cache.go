package notify

import (
	"context"

	"wellcheck/internal/jobs"
)

// Invalidator drops cached derived data.
type Invalidator interface {
	Invalidate()
}

// CacheFlusher empties the report cache after a threshold change.
type CacheFlusher struct {
	Cache Invalidator
}

func (f *CacheFlusher) Handle(ctx context.Context, job jobs.Job) error {
	var p jobs.ReportCacheFlush
	if err := job.Decode(&p); err != nil {
		return err
	}
	f.Cache.Invalidate()
	logger.InfoContext(ctx, "report cache flushed", "threshold_version", p.ThresholdVersion)
	return nil
}

// Register binds the handlers to their queues.
func Register(d *jobs.Dispatcher, n *Notifier, a *Analyzer, f *CacheFlusher) error {
	bindings := []struct {
		queue, jobType string
		h              jobs.Handler
	}{
		{jobs.QueueNotifications, jobs.TypeCriticalAlert, n},
		{jobs.QueueNotifications, jobs.TypePlanDecided, n},
		{jobs.QueueAnalysis, jobs.TypeCheckInAnalysis, a},
		{jobs.QueueReportCache, jobs.TypeReportCacheFlush, f},
	}
	for _, b := range bindings {
		if err := d.Handle(b.queue, b.jobType, b.h); err != nil {
			return err
		}
	}
	return nil
}
