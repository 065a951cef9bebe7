// Package metrics defines the Prometheus collectors used by the import
// pipeline and the HTTP service, and serves them for scraping.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ImportsTotal         *prometheus.CounterVec
	ImportDuration       prometheus.Histogram
	ResourceReadsTotal   *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	CachedImporters      prometheus.Gauge
	RefResolutionsTotal  *prometheus.CounterVec
	EventsPublishedTotal *prometheus.CounterVec
	BreakerState         *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates the collectors and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
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
		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_imports_total",
				Help: "Total schema imports by terminal status (success, failed).",
			},
			[]string{"status"},
		),
		ImportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "schema_import_duration_seconds",
				Help:    "Time from load to completion of a schema import.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
		ResourceReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_resource_reads_total",
				Help: "Resource reads issued by the import manager, by result.",
			},
			[]string{"result"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "schema_cache_hits_total",
				Help: "FetchSchema calls served by an existing cache entry.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "schema_cache_misses_total",
				Help: "FetchSchema calls that had to read the resource.",
			},
		),
		CachedImporters: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "schema_cached_importers",
				Help: "Number of importers held by the schema cache.",
			},
		),
		RefResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_ref_resolutions_total",
				Help: "$ref resolutions by result (resolved, unresolved).",
			},
			[]string{"result"},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "schema_events_published_total",
				Help: "Import completion events published, by status.",
			},
			[]string{"status"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "schema_source_breaker_state",
				Help: "Circuit breaker state per resource reader (0 closed, 1 open, 2 half-open).",
			},
			[]string{"breaker"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ImportsTotal,
		m.ImportDuration,
		m.ResourceReadsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CachedImporters,
		m.RefResolutionsTotal,
		m.EventsPublishedTotal,
		m.BreakerState,
	)

	return m
}
