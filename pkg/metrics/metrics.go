// Package metrics defines the Prometheus metric collectors used across the
// volatility service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ComputationsTotal    *prometheus.CounterVec
	ComputationDuration  *prometheus.HistogramVec
	SnapshotsLoaded      prometheus.Histogram
	KeywordsScored       prometheus.Histogram
	AlertsEmittedTotal   *prometheus.CounterVec
	ParseWarningsTotal   prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ComputationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volatility_computations_total",
				Help: "Total volatility computations by surface (summary, keywords, profile, pairs, alerts).",
			},
			[]string{"surface"},
		),
		ComputationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "volatility_computation_duration_seconds",
				Help:    "In-memory computation latency per surface, excluding store loads.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"surface"},
		),
		SnapshotsLoaded: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "volatility_snapshots_loaded",
				Help:    "Snapshot rows loaded per request.",
				Buckets: []float64{0, 10, 50, 100, 500, 1000, 5000, 10000},
			},
		),
		KeywordsScored: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "volatility_keywords_scored",
				Help:    "Keyword targets scored per request.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		AlertsEmittedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "volatility_alerts_emitted_total",
				Help: "Alerts emitted by trigger type.",
			},
			[]string{"trigger_type"},
		),
		ParseWarningsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "volatility_parse_warnings_total",
				Help: "Snapshot payloads that failed to parse cleanly.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of summary cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of summary cache misses.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ComputationsTotal,
		m.ComputationDuration,
		m.SnapshotsLoaded,
		m.KeywordsScored,
		m.AlertsEmittedTotal,
		m.ParseWarningsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
