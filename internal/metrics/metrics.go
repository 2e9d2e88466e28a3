// Package metrics exposes write-pipeline observability as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for JobsTotal.
const (
	OutcomeDelivered = "delivered"
	OutcomeDropped   = "dropped"
)

// Metrics holds the collectors of one process. Each instance owns its
// registry, so tests can create as many as they like.
type Metrics struct {
	registry   *prometheus.Registry
	queueDepth prometheus.Gauge
	jobsTotal  *prometheus.CounterVec
	jobSeconds prometheus.Histogram
	warnings   prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mnemo_queue_depth",
			Help: "Write jobs queued or in flight.",
		}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mnemo_write_jobs_total",
			Help: "Write jobs finished, by outcome.",
		}, []string{"outcome"}),
		jobSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mnemo_write_job_seconds",
			Help:    "Time spent executing a write job.",
			Buckets: prometheus.DefBuckets,
		}),
		warnings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mnemo_queue_backpressure_warnings_total",
			Help: "Times the queue depth crossed the soft threshold.",
		}),
	}
	m.registry.MustRegister(m.queueDepth, m.jobsTotal, m.jobSeconds, m.warnings)
	return m
}

// SetDepth records the current queue depth.
func (m *Metrics) SetDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}

// ObserveJob records a finished job.
func (m *Metrics) ObserveJob(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobSeconds.Observe(elapsed.Seconds())
}

// BackpressureWarning counts a soft-threshold crossing.
func (m *Metrics) BackpressureWarning() {
	if m == nil {
		return
	}
	m.warnings.Inc()
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
