package jobs

import (
	"context"
	"errors"
	"fmt"
)

// QueueNames lists the queues every Dispatcher owns.
func QueueNames() []string {
	return []string{QueueNotifications, QueueAnalysis, QueueReportCache}
}

// Dispatcher routes jobs to the named queues.
type Dispatcher struct {
	queues map[string]*Queue
	names  []string
}

// NewDispatcher builds the standard queues sharing policy. concurrency maps
// queue name to worker count; missing names get one worker.
func NewDispatcher(policy Policy, obs Observer, concurrency map[string]int) *Dispatcher {
	d := &Dispatcher{queues: make(map[string]*Queue)}
	for _, name := range QueueNames() {
		d.queues[name] = NewQueue(name, policy, WithConcurrency(concurrency[name]), WithObserver(obs))
		d.names = append(d.names, name)
	}
	return d
}

func (d *Dispatcher) Queue(name string) (*Queue, bool) {
	q, ok := d.queues[name]
	return q, ok
}

func (d *Dispatcher) Handle(queue, jobType string, h Handler) error {
	q, ok := d.queues[queue]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	q.Handle(jobType, h)
	return nil
}

func (d *Dispatcher) Enqueue(ctx context.Context, s Spec) (Job, error) {
	q, ok := d.queues[s.Queue]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownQueue, s.Queue)
	}
	return q.Enqueue(ctx, s)
}

func (d *Dispatcher) Start(ctx context.Context) {
	for _, name := range d.names {
		d.queues[name].Start(ctx)
	}
}

func (d *Dispatcher) Stop(ctx context.Context) error {
	var errs []error
	for _, name := range d.names {
		if err := d.queues[name].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) WaitIdle(ctx context.Context) error {
	for _, name := range d.names {
		if err := d.queues[name].WaitIdle(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) Failed(queue string) ([]FailedJob, error) {
	q, ok := d.queues[queue]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownQueue, queue)
	}
	return q.Failed(), nil
}

func (d *Dispatcher) Stats() []Stats {
	out := make([]Stats, 0, len(d.names))
	for _, name := range d.names {
		out = append(out, d.queues[name].Stats())
	}
	return out
}
