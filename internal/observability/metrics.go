// Package observability provides Prometheus metrics for the collector.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lunarcollector"

// Metrics holds all Prometheus metrics for the collector.
type Metrics struct {
	gatherer prometheus.Gatherer

	// Pipeline metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Fetch metrics
	TokensFetched  prometheus.Counter
	TokensDropped  prometheus.Counter
	FetchDuration  prometheus.Histogram
	UpstreamErrors *prometheus.CounterVec

	// Credential metrics
	Acquisitions        *prometheus.CounterVec
	AcquisitionDuration prometheus.Histogram

	// Store metrics
	RecordsUpserted prometheus.Counter
	RecordsModified prometheus.Counter

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics registers every metric with reg. A nil reg uses a fresh registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		gatherer: reg,

		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of collection runs by status",
		}, []string{"status"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Collection run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),

		TokensFetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "tokens_total",
			Help:      "Total number of raw tokens received from upstream",
		}),
		TokensDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "tokens_dropped_total",
			Help:      "Total number of raw tokens dropped for a missing symbol",
		}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Upstream fetch latency in seconds, token included",
			Buckets:   prometheus.DefBuckets,
		}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "errors_total",
			Help:      "Total number of failed fetches by kind",
		}, []string{"kind"}),

		Acquisitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "acquisitions_total",
			Help:      "Total number of credential acquisitions by result",
		}, []string{"result"}),
		AcquisitionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "credential",
			Name:      "acquisition_duration_seconds",
			Help:      "Credential acquisition latency in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90},
		}),

		RecordsUpserted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records_upserted_total",
			Help:      "Total number of records inserted by upsert",
		}),
		RecordsModified: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "records_modified_total",
			Help:      "Total number of existing records modified by upsert",
		}),

		LastSuccessfulRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of last successful collection run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveAcquisition records one credential acquisition attempt.
// Its signature matches credential.WithObserver.
func (m *Metrics) ObserveAcquisition(took time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Acquisitions.WithLabelValues(result).Inc()
	m.AcquisitionDuration.Observe(took.Seconds())
}

// RecordRun records a finished run.
func (m *Metrics) RecordRun(status string, took time.Duration, finished time.Time) {
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.WithLabelValues(status).Observe(took.Seconds())
	if status == StatusOK {
		m.LastSuccessfulRun.Set(float64(finished.Unix()))
	}
}

// Run statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)
