package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
)

// stream is the FIFO of jobs sharing an ordering key. Only its head may run,
// and a head waiting for its retry blocks the jobs behind it.
type stream struct {
	key     string
	jobs    []*Job
	running bool
}

// Queue is one named queue with its own workers, policy and failed set.
type Queue struct {
	name        string
	policy      Policy
	concurrency int
	obs         Observer

	mu        sync.Mutex
	handlers  map[string]Handler
	streams   map[string]*stream
	order     []string
	pending   int
	running   int
	failed    []FailedJob
	completed []Job
	seen      *cache.Cache
	signal    chan struct{}
	started   bool
	stopped   bool
	group     *errgroup.Group
}

type QueueOption func(*Queue)

// WithConcurrency sets how many jobs with different ordering keys may run at once.
func WithConcurrency(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.concurrency = n
		}
	}
}

func WithObserver(o Observer) QueueOption {
	return func(q *Queue) {
		if o != nil {
			q.obs = o
		}
	}
}

func NewQueue(name string, policy Policy, opts ...QueueOption) *Queue {
	p := policy.normalized()
	q := &Queue{
		name:        name,
		policy:      p,
		concurrency: 1,
		obs:         nopObserver{},
		handlers:    make(map[string]Handler),
		streams:     make(map[string]*stream),
		seen:        cache.New(p.DedupTTL, p.DedupTTL),
		signal:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Name() string { return q.name }

func (q *Queue) Policy() Policy { return q.policy }

// Handle registers h for jobType, replacing any earlier handler.
func (q *Queue) Handle(jobType string, h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[jobType] = h
}

// Enqueue adds a job. A key that is pending, running or recently completed
// returns ErrDuplicate, which callers should treat as success.
func (q *Queue) Enqueue(ctx context.Context, s Spec) (Job, error) {
	payload, err := json.Marshal(s.Payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", s.Type, err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return Job{}, ErrQueueStopped
	}
	now := time.Now()
	j := &Job{
		ID:             uuid.NewString(),
		Queue:          q.name,
		Type:           s.Type,
		Payload:        payload,
		OrderingKey:    s.OrderingKey,
		IdempotencyKey: s.IdempotencyKey,
		EnqueuedAt:     now,
		NextRunAt:      now,
	}
	if s.IdempotencyKey != "" {
		if err := q.seen.Add(s.IdempotencyKey, j.ID, cache.NoExpiration); err != nil {
			q.obs.JobDuplicate(q.name)
			return Job{}, ErrDuplicate
		}
	}
	key := s.OrderingKey
	if key == "" {
		key = "\x00" + j.ID
	}
	st, ok := q.streams[key]
	if !ok {
		st = &stream{key: key}
		q.streams[key] = st
		q.order = append(q.order, key)
	}
	st.jobs = append(st.jobs, j)
	q.pending++
	q.obs.JobEnqueued(q.name)
	q.obs.SetPending(q.name, q.pending)
	q.broadcast()
	logJobEnqueued(ctx, *j)
	return *j, nil
}

// Start launches the workers. Cancelling ctx stops them picking new jobs;
// handlers never see that cancellation.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started || q.stopped {
		return
	}
	q.started = true
	g := &errgroup.Group{}
	for i := 0; i < q.concurrency; i++ {
		g.Go(func() error { return q.work(ctx) })
	}
	q.group = g
}

// Stop rejects new jobs and waits for running ones to finish or ctx to end.
// Jobs still waiting are dropped.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	g := q.group
	q.broadcast()
	q.mu.Unlock()
	if g == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("stop queue %s: %w", q.name, ctx.Err())
	}
}

// WaitIdle blocks until no job is waiting or running.
func (q *Queue) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		q.mu.Lock()
		idle := q.pending == 0
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Failed returns the retained failed jobs, oldest first.
func (q *Queue) Failed() []FailedJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]FailedJob, len(q.failed))
	copy(out, q.failed)
	return out
}

// Completed returns retained completed jobs; empty when RemoveOnComplete is set.
func (q *Queue) Completed() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, len(q.completed))
	copy(out, q.completed)
	return out
}

func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queue:   q.name,
		Pending: q.pending - q.running,
		Running: q.running,
		Failed:  len(q.failed),
	}
}

// broadcast wakes every idle worker. Callers hold q.mu.
func (q *Queue) broadcast() {
	close(q.signal)
	q.signal = make(chan struct{})
}

func (q *Queue) work(ctx context.Context) error {
	for {
		q.mu.Lock()
		if q.stopped || ctx.Err() != nil {
			q.mu.Unlock()
			return nil
		}
		st, j, wait := q.next(time.Now())
		if j == nil {
			signal := q.signal
			q.mu.Unlock()
			q.sleep(ctx, signal, wait)
			continue
		}
		st.running = true
		q.running++
		j.Attempts++
		job := *j
		h := q.handlers[job.Type]
		q.mu.Unlock()

		start := time.Now()
		err := run(context.WithoutCancel(ctx), h, job)
		q.finish(ctx, st, j, start, err)
	}
}

func (q *Queue) sleep(ctx context.Context, signal <-chan struct{}, wait time.Duration) {
	if wait < 0 {
		select {
		case <-signal:
		case <-ctx.Done():
		}
		return
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-signal:
	case <-t.C:
	case <-ctx.Done():
	}
}

// next picks the first due stream head, dropping drained streams on the way.
// When nothing is due, wait is the time until the earliest retry, or -1.
func (q *Queue) next(now time.Time) (*stream, *Job, time.Duration) {
	wait := time.Duration(-1)
	var pickSt *stream
	var pick *Job
	kept := q.order[:0]
	for _, key := range q.order {
		st := q.streams[key]
		if len(st.jobs) == 0 && !st.running {
			delete(q.streams, key)
			continue
		}
		kept = append(kept, key)
		if pick != nil || st.running {
			continue
		}
		head := st.jobs[0]
		if !head.NextRunAt.After(now) {
			pickSt, pick = st, head
			continue
		}
		if d := head.NextRunAt.Sub(now); wait < 0 || d < wait {
			wait = d
		}
	}
	q.order = kept
	return pickSt, pick, wait
}

func run(ctx context.Context, h Handler, j Job) (err error) {
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, j.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return h.Handle(ctx, j)
}

func (q *Queue) finish(ctx context.Context, st *stream, j *Job, start time.Time, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	st.running = false
	q.running--

	if err == nil {
		q.popHead(st)
		if j.IdempotencyKey != "" {
			q.seen.Set(j.IdempotencyKey, j.ID, q.policy.DedupTTL)
		}
		if !q.policy.RemoveOnComplete {
			q.completed = appendBounded(q.completed, *j, q.policy.KeepFailed)
		}
		q.obs.JobCompleted(q.name, time.Since(j.EnqueuedAt))
		logJobCompleted(ctx, *j, time.Since(start))
	} else {
		j.LastError = err.Error()
		if errors.Is(err, ErrNoHandler) || j.Attempts >= q.policy.MaxAttempts {
			q.popHead(st)
			if j.IdempotencyKey != "" {
				q.seen.Delete(j.IdempotencyKey)
			}
			q.failed = appendBounded(q.failed, FailedJob{
				Job:      *j,
				FailedAt: time.Now(),
				Err:      &ExhaustedRetryError{JobID: j.ID, Queue: q.name, Attempts: j.Attempts, Err: err},
			}, q.policy.KeepFailed)
			q.obs.JobFailed(q.name)
			logJobFailed(ctx, *j, j.Attempts, 0, err)
		} else {
			delay := q.policy.Backoff(j.Attempts)
			j.NextRunAt = time.Now().Add(delay)
			q.obs.JobRetried(q.name)
			logJobFailed(ctx, *j, q.policy.MaxAttempts, delay, err)
		}
	}
	q.rotate(st.key)
	q.obs.SetPending(q.name, q.pending)
	q.broadcast()
}

func (q *Queue) popHead(st *stream) {
	st.jobs[0] = nil
	st.jobs = st.jobs[1:]
	q.pending--
}

// rotate moves key to the back so one busy stream cannot starve the others.
func (q *Queue) rotate(key string) {
	for i, k := range q.order {
		if k == key {
			q.order = append(append(q.order[:i:i], q.order[i+1:]...), key)
			return
		}
	}
}

func appendBounded[T any](s []T, v T, limit int) []T {
	if limit <= 0 {
		return s[:0]
	}
	s = append(s, v)
	if excess := len(s) - limit; excess > 0 {
		s = append(s[:0:0], s[excess:]...)
	}
	return s
}
