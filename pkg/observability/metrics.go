package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Search metrics
	SearchTotal          *prometheus.CounterVec
	SearchDuration       *prometheus.HistogramVec
	SearchResults        prometheus.Histogram
	SearchSkippedRecords *prometheus.CounterVec

	// Taxonomy cache metrics
	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Import metrics
	ImportsTotal         *prometheus.CounterVec
	ImportedEntriesTotal prometheus.Counter

	// Database metrics
	DBConnectionsOpen      *prometheus.GaugeVec
	DBConnectionsInUse     *prometheus.GaugeVec
	DBConnectionsWaitCount *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		SearchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_search_total",
				Help: "Total number of searches by join strategy",
			},
			[]string{"strategy"},
		),
		SearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_search_duration_seconds",
				Help:    "Search duration in seconds by join strategy",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"strategy"},
		),
		SearchResults: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_search_results",
				Help:    "Number of results per search before pagination",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		SearchSkippedRecords: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_search_skipped_records_total",
				Help: "Records dropped from search results because a referenced record is missing",
			},
			[]string{"stage"},
		),

		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_taxonomy_cache_hits_total",
				Help: "Total number of taxonomy cache hits",
			},
			[]string{"layer"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_taxonomy_cache_misses_total",
				Help: "Total number of taxonomy cache misses",
			},
			[]string{"layer"},
		),

		ImportsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_taxonomy_imports_total",
				Help: "Total number of taxonomy file imports",
			},
			[]string{"status"},
		),
		ImportedEntriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "catalog_taxonomy_imported_entries_total",
				Help: "Total number of taxonomy entries written by imports",
			},
		),

		DBConnectionsOpen: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_db_connections_open",
				Help: "Number of open database connections",
			},
			[]string{"pool"},
		),
		DBConnectionsInUse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_db_connections_in_use",
				Help: "Number of database connections in use",
			},
			[]string{"pool"},
		),
		DBConnectionsWaitCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "catalog_db_connections_wait_count",
				Help: "Total number of connections waited for",
			},
			[]string{"pool"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.SearchTotal,
		m.SearchDuration,
		m.SearchResults,
		m.SearchSkippedRecords,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ImportsTotal,
		m.ImportedEntriesTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsWaitCount,
	)

	return m
}

// RecordSearch counts one search and observes its duration and result count
func (m *Metrics) RecordSearch(strategy string, d time.Duration, results int) {
	m.SearchTotal.WithLabelValues(strategy).Inc()
	m.SearchDuration.WithLabelValues(strategy).Observe(d.Seconds())
	m.SearchResults.Observe(float64(results))
}

// RecordSkip counts a record dropped at a search stage
func (m *Metrics) RecordSkip(stage string) {
	m.SearchSkippedRecords.WithLabelValues(stage).Inc()
}

// RecordCacheHit counts a taxonomy cache hit
func (m *Metrics) RecordCacheHit(layer string) {
	m.CacheHitsTotal.WithLabelValues(layer).Inc()
}

// RecordCacheMiss counts a taxonomy cache miss
func (m *Metrics) RecordCacheMiss(layer string) {
	m.CacheMissesTotal.WithLabelValues(layer).Inc()
}

// RecordImport counts a taxonomy import and the entries it wrote
func (m *Metrics) RecordImport(status string, entries int) {
	m.ImportsTotal.WithLabelValues(status).Inc()
	m.ImportedEntriesTotal.Add(float64(entries))
}

// RecordDBStats publishes connection pool statistics for one pool
func (m *Metrics) RecordDBStats(pool string, stats sql.DBStats) {
	m.DBConnectionsOpen.WithLabelValues(pool).Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.WithLabelValues(pool).Set(float64(stats.InUse))
	m.DBConnectionsWaitCount.WithLabelValues(pool).Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel returns the matched mux route template so that path
// parameters do not explode label cardinality.
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// Install it with Router.Use so the matched route is known.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, registry *prometheus.Registry) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
