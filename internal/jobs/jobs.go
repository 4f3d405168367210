// Package jobs runs the server's periodic maintenance sweeps and exposes
// Prometheus metrics for them.
package jobs

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Job names used as metric labels.
const (
	JobIdempotencyCleanup = "idempotency_cleanup"
	JobAuditAnonymize     = "audit_anonymize"
)

// Status constants for job completion.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics contains Prometheus metrics for background job runs.
type Metrics struct {
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	itemsTotal  *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance. The collectors are not
// registered; call Register with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "background_job_runs_total",
				Help: "Total background job runs by job and status",
			},
			[]string{"job", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "background_job_duration_seconds",
				Help:    "Background job run duration in seconds by job",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"job"},
		),
		itemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "background_job_items_total",
				Help: "Total items processed by background jobs",
			},
			[]string{"job"},
		),
	}
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.runsTotal, m.runDuration, m.itemsTotal} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// observe records one run. Nil-receiver safe so jobs can run unmetered.
func (m *Metrics) observe(job string, duration time.Duration, items int64, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.runsTotal.WithLabelValues(job, status).Inc()
	m.runDuration.WithLabelValues(job).Observe(duration.Seconds())
	if items > 0 {
		m.itemsTotal.WithLabelValues(job).Add(float64(items))
	}
}

// Func is one sweep execution. It returns the number of items it touched.
type Func func() (int64, error)

// RunPeriodic executes fn every period until stop closes. Each run is
// timed, counted, and logged; a failing run does not stop the loop.
func RunPeriodic(name string, period time.Duration, metrics *Metrics, logger *slog.Logger, stop <-chan struct{}, fn Func) {
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			start := time.Now()
			items, err := fn()
			metrics.observe(name, time.Since(start), items, err)
			if err != nil {
				logger.Error("background job failed", "job", name, "error", err)
			} else if items > 0 {
				logger.Info("background job completed", "job", name, "items", items)
			}
		case <-stop:
			return
		}
	}
}
