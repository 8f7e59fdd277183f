// Package metrics defines the Prometheus metric collectors used by the
// matcher and the server that exposes them for scraping.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds all Prometheus collectors for the matcher.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	MatchQueriesTotal    *prometheus.CounterVec
	MatchLatency         prometheus.Histogram
	MatchResultsCount    prometheus.Histogram
	BatchRunsTotal       *prometheus.CounterVec
	BatchDuration        prometheus.Histogram
	BatchChunksTotal     prometheus.Counter
	BatchQueryFailures   prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CatalogLoadsTotal    *prometheus.CounterVec
	CatalogEntries       prometheus.Gauge
	VocabularySize       prometheus.Gauge
	CatalogVersion       prometheus.Gauge
	ExportPagesTotal     *prometheus.CounterVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
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
		MatchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "match_queries_total",
				Help: "Total match requests by result type (match, no_match, error).",
			},
			[]string{"result_type"},
		),
		MatchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "match_latency_seconds",
				Help:    "Single request scoring latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
			},
		),
		MatchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "match_results_count",
				Help:    "Number of catalog entries returned per request.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		BatchRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_runs_total",
				Help: "Total batch runs by status (ok, partial, cancelled).",
			},
			[]string{"status"},
		),
		BatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "batch_duration_seconds",
				Help:    "Wall time of a batch run in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		BatchChunksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "batch_chunks_total",
				Help: "Total request chunks dispatched to workers.",
			},
		),
		BatchQueryFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "batch_query_failures_total",
				Help: "Total requests dropped from a batch because scoring failed.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		CatalogLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loads_total",
				Help: "Total catalog index builds by status.",
			},
			[]string{"status"},
		),
		CatalogEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_entries",
				Help: "Number of entries in the active catalog snapshot.",
			},
		),
		VocabularySize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_vocabulary_size",
				Help: "Number of terms in the active catalog vocabulary.",
			},
		),
		CatalogVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_snapshot_version",
				Help: "Version of the active catalog snapshot.",
			},
		),
		ExportPagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "export_pages_total",
				Help: "Total result pages written by sink and status.",
			},
			[]string{"sink", "status"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.MatchQueriesTotal,
		m.MatchLatency,
		m.MatchResultsCount,
		m.BatchRunsTotal,
		m.BatchDuration,
		m.BatchChunksTotal,
		m.BatchQueryFailures,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CatalogLoadsTotal,
		m.CatalogEntries,
		m.VocabularySize,
		m.CatalogVersion,
		m.ExportPagesTotal,
	)

	return m
}
