// Package metrics exposes per-run counters for the node_exporter textfile
// collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/BadgerOps/ptarchive/internal/download"
)

// Metrics holds the collectors for one process. They live in a private
// registry so tests and repeated runs never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	jobs        *prometheus.CounterVec
	bytes       prometheus.Counter
	records     prometheus.Counter
	duration    prometheus.Histogram
	lastSuccess prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ptarchive_jobs_total",
			Help: "Archive jobs by outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ptarchive_bytes_downloaded_total",
			Help: "Response body bytes read from the archive service.",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ptarchive_records_transcoded_total",
			Help: "Event records written to CSV.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ptarchive_job_duration_seconds",
			Help:    "Time from dispatch to outcome per archive.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ptarchive_last_success_timestamp_seconds",
			Help: "Unix time of the most recent successful archive job.",
		}),
	}
	m.registry.MustRegister(m.jobs, m.bytes, m.records, m.duration, m.lastSuccess)

	// Pre-create both series so a run with no failures still exports a zero.
	m.jobs.WithLabelValues("success")
	m.jobs.WithLabelValues("failure")
	return m
}

// Observe records one job outcome.
func (m *Metrics) Observe(o download.Outcome) {
	m.bytes.Add(float64(o.Bytes))
	m.duration.Observe(o.Duration().Seconds())
	if o.Err != nil {
		m.jobs.WithLabelValues("failure").Inc()
		return
	}
	m.jobs.WithLabelValues("success").Inc()
	m.records.Add(float64(o.Records))
	m.lastSuccess.Set(float64(o.Finish.Unix()))
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile atomically writes all metrics to path in the text
// exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
