// Package metrics exposes job-queue and lifecycle counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns every wellcheck metric. Queue metrics carry a "queue" label.
type Collector struct {
	registry *prometheus.Registry

	jobsEnqueued   *prometheus.CounterVec
	jobsCompleted  *prometheus.CounterVec
	jobsRetried    *prometheus.CounterVec
	jobsFailed     *prometheus.CounterVec
	jobsDuplicates *prometheus.CounterVec
	jobLatency     *prometheus.HistogramVec
	jobsPending    *prometheus.GaugeVec

	checkIns    *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewCollector registers all metrics on reg. A nil reg gets a fresh registry,
// which keeps parallel tests from colliding on the global one.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		registry: reg,
		jobsEnqueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		}, []string{"queue"}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		}, []string{"queue"}),
		jobsRetried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_jobs_retried_total",
			Help: "Total number of failed attempts scheduled for retry",
		}, []string{"queue"}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_jobs_failed_total",
			Help: "Total number of jobs that exhausted their attempts",
		}, []string{"queue"}),
		jobsDuplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_jobs_duplicate_total",
			Help: "Total number of enqueues rejected by idempotency key",
		}, []string{"queue"}),
		jobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wellcheck_job_latency_seconds",
			Help:    "Time from enqueue to successful completion",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		jobsPending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wellcheck_jobs_pending",
			Help: "Jobs waiting or running per queue",
		}, []string{"queue"}),
		checkIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_checkins_total",
			Help: "Recorded check-ins by classified tier",
		}, []string{"tier"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wellcheck_lifecycle_transitions_total",
			Help: "Lifecycle transitions by kind",
		}, []string{"transition"}),
	}
	reg.MustRegister(
		c.jobsEnqueued,
		c.jobsCompleted,
		c.jobsRetried,
		c.jobsFailed,
		c.jobsDuplicates,
		c.jobLatency,
		c.jobsPending,
		c.checkIns,
		c.transitions,
	)
	return c
}

func (c *Collector) JobEnqueued(queue string) {
	c.jobsEnqueued.WithLabelValues(queue).Inc()
}

func (c *Collector) JobDuplicate(queue string) {
	c.jobsDuplicates.WithLabelValues(queue).Inc()
}

func (c *Collector) JobCompleted(queue string, latency time.Duration) {
	c.jobsCompleted.WithLabelValues(queue).Inc()
	c.jobLatency.WithLabelValues(queue).Observe(latency.Seconds())
}

func (c *Collector) JobRetried(queue string) {
	c.jobsRetried.WithLabelValues(queue).Inc()
}

func (c *Collector) JobFailed(queue string) {
	c.jobsFailed.WithLabelValues(queue).Inc()
}

func (c *Collector) SetPending(queue string, n int) {
	c.jobsPending.WithLabelValues(queue).Set(float64(n))
}

// CheckIn counts a classified check-in. Check-ins without a score are
// counted under "none".
func (c *Collector) CheckIn(tier string) {
	if tier == "" {
		tier = "none"
	}
	c.checkIns.WithLabelValues(tier).Inc()
}

func (c *Collector) Transition(kind string) {
	c.transitions.WithLabelValues(kind).Inc()
}

// Registry exposes the underlying registry for tests and extra collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
