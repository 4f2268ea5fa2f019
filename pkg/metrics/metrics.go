// Package metrics holds the Prometheus collectors exported by the server.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tableorders"

// Metrics groups the pool, store and request collectors.
type Metrics struct {
	jobsSubmitted prometheus.Counter
	jobsCompleted prometheus.Counter
	jobsPanicked  prometheus.Counter
	queueDepth    prometheus.Gauge
	orderOps      *prometheus.CounterVec
	requests      *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "jobs_submitted_total",
			Help: "Jobs handed to the worker pool.",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "jobs_completed_total",
			Help: "Jobs that ran to completion, including failed ones.",
		}),
		jobsPanicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool", Name: "jobs_panicked_total",
			Help: "Jobs that panicked and were recovered.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool", Name: "queue_depth",
			Help: "Jobs waiting for a worker.",
		}),
		orderOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "store", Name: "operations_total",
			Help: "Order store operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "server", Name: "request_duration_seconds",
			Help:    "Time to handle one connection, by result kind.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"kind", "status"}),
	}
	reg.MustRegister(m.jobsSubmitted, m.jobsCompleted, m.jobsPanicked, m.queueDepth, m.orderOps, m.requests)
	return m
}

// JobSubmitted counts a queued job and records the queue depth after it.
func (m *Metrics) JobSubmitted(depth int) {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
	m.queueDepth.Set(float64(depth))
}

// JobStarted records the queue depth after a worker took a job.
func (m *Metrics) JobStarted(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// JobCompleted counts a finished job, and a panic when it had one.
func (m *Metrics) JobCompleted(panicked bool) {
	if m == nil {
		return
	}
	m.jobsCompleted.Inc()
	if panicked {
		m.jobsPanicked.Inc()
	}
}

// StoreOp counts one order store call. outcome is "ok" or an error class.
func (m *Metrics) StoreOp(op, outcome string) {
	if m == nil {
		return
	}
	m.orderOps.WithLabelValues(op, outcome).Inc()
}

// Request observes how long one connection took, by result kind and status class.
func (m *Metrics) Request(kind string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(kind, statusLabel(status)).Observe(d.Seconds())
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}
