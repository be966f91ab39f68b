// Package metrics exposes Prometheus instrumentation for the API server and
// the collection jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Construct once per process.
type Metrics struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	collectorRuns       *prometheus.CounterVec
	collectorDuration   *prometheus.HistogramVec
	observationsStored  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		collectorRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_runs_total",
				Help: "Collection runs by job and outcome",
			},
			[]string{"job", "outcome"},
		),
		collectorDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_run_duration_seconds",
				Help:    "Collection run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"job"},
		),
		observationsStored: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "observations_stored_total",
				Help: "Funding-rate observations persisted",
			},
			[]string{"exchange"},
		),
	}

	prometheus.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.collectorRuns,
		m.collectorDuration,
		m.observationsStored,
	)

	return m
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRun records a finished collection run. Outcome is completed, failed
// or skipped.
func (m *Metrics) RecordRun(job, outcome string, duration time.Duration) {
	m.collectorRuns.WithLabelValues(job, outcome).Inc()
	m.collectorDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordObservations counts persisted observations per venue.
func (m *Metrics) RecordObservations(exchange string, count int) {
	if count > 0 {
		m.observationsStored.WithLabelValues(exchange).Add(float64(count))
	}
}

// Handler serves the scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
