// Package metrics defines the Prometheus metric collectors used by the
// indexer, search engine, page cache and memory coordinator, and exposes an
// HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	IndexBuildsTotal   *prometheus.CounterVec
	IndexBuildDuration prometheus.Histogram
	PagesIndexedTotal  *prometheus.CounterVec
	IndexTerms         *prometheus.GaugeVec
	IndexSavesTotal    *prometheus.CounterVec

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      *prometheus.HistogramVec
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	ResidentPages      prometheus.Gauge
	PageLoadsTotal     prometheus.Counter
	PageEvictionsTotal *prometheus.CounterVec

	MemoryResidentBytes prometheus.Gauge
	MemoryPressureLevel prometheus.Gauge
	PressureEventsTotal *prometheus.CounterVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg. Tests
// pass a fresh prometheus.NewRegistry() so instances never collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_builds_total",
				Help: "Index requests by outcome (built, memory, loaded, cancelled).",
			},
			[]string{"outcome"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Wall time of a full index build.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
		PagesIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pages_indexed_total",
				Help: "Pages processed by the indexer, by whether they yielded text.",
			},
			[]string{"result"},
		),
		IndexTerms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct normalized terms per resident index.",
			},
			[]string{"doc_key"},
		),
		IndexSavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_saves_total",
				Help: "Index persistence attempts by status.",
			},
			[]string{"status"},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by mode and result type (hit, zero_result, not_indexed).",
			},
			[]string{"mode", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 50, 100, 500, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total number of search result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total number of search result cache misses.",
			},
		),
		ResidentPages: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "page_cache_resident_pages",
				Help: "Rendered pages currently held by the page cache.",
			},
		),
		PageLoadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "page_cache_loads_total",
				Help: "Pages requested from the renderer.",
			},
		),
		PageEvictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "page_cache_evictions_total",
				Help: "Pages released, by reason (window, pressure, clear).",
			},
			[]string{"reason"},
		),
		MemoryResidentBytes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_resident_bytes",
				Help: "Last sampled process resident memory.",
			},
		),
		MemoryPressureLevel: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_pressure_level",
				Help: "Memory pressure level (0=normal, 1=warning, 2=critical).",
			},
		),
		PressureEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_pressure_transitions_total",
				Help: "Pressure level transitions by target level.",
			},
			[]string{"level"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.IndexBuildsTotal,
		m.IndexBuildDuration,
		m.PagesIndexedTotal,
		m.IndexTerms,
		m.IndexSavesTotal,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ResidentPages,
		m.PageLoadsTotal,
		m.PageEvictionsTotal,
		m.MemoryResidentBytes,
		m.MemoryPressureLevel,
		m.PressureEventsTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
