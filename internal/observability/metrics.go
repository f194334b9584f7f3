package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the console.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Record save metrics
	SavesTotal         *prometheus.CounterVec
	SaveDuration       *prometheus.HistogramVec
	ValidationFailures *prometheus.CounterVec

	// Listing metrics
	ListLoadsTotal      *prometheus.CounterVec
	ListLoadDuration    *prometheus.HistogramVec
	ListSupersedesTotal *prometheus.CounterVec

	// Import metrics
	ImportsTotal     *prometheus.CounterVec
	ImportFilesTotal *prometheus.CounterVec

	// Backend request metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
	BackendRetriesTotal        *prometheus.CounterVec

	// Lookup cache metrics
	LookupCacheHitsTotal   *prometheus.CounterVec
	LookupCacheMissesTotal *prometheus.CounterVec

	// System metrics
	DefinitionsLoaded    prometheus.Gauge
	ContractIssuesFound  prometheus.Gauge
	TrackingLookupsTotal *prometheus.CounterVec
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Saves
		SavesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_record_saves_total",
			Help: "Total number of record save attempts.",
		}, []string{"entity", "mode", "status"}),
		SaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_record_save_duration_seconds",
			Help:    "Record save duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"entity", "mode"}),
		ValidationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_record_validation_failures_total",
			Help: "Total number of record validation failures.",
		}, []string{"entity"}),

		// Listings
		ListLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_list_loads_total",
			Help: "Total number of list loads.",
		}, []string{"entity", "status"}),
		ListLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_list_load_duration_seconds",
			Help:    "List load duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"entity"}),
		ListSupersedesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_list_supersedes_total",
			Help: "Total number of list responses discarded by a newer request.",
		}, []string{"entity"}),

		// Imports
		ImportsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_imports_total",
			Help: "Total number of bulk import submissions.",
		}, []string{"entity", "status"}),
		ImportFilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_import_files_total",
			Help: "Total number of files submitted across bulk imports.",
		}, []string{"entity"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_backend_requests_total",
			Help: "Total number of backend requests.",
		}, []string{"method", "route", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"method"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		BackendRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_backend_retries_total",
			Help: "Total number of backend request retries.",
		}, []string{"route"}),

		// Lookup cache
		LookupCacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_lookup_cache_hits_total",
			Help: "Total lookup cache hits.",
		}, []string{"entity"}),
		LookupCacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_lookup_cache_misses_total",
			Help: "Total lookup cache misses.",
		}, []string{"entity"}),

		// System
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_definitions_loaded",
			Help: "Number of loaded entity definitions.",
		}),
		ContractIssuesFound: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_contract_issues_found",
			Help: "Number of backend contract issues found at startup.",
		}),
		TrackingLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_tracking_lookups_total",
			Help: "Total number of tracking lookups.",
		}, []string{"status"}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Saves
		m.SavesTotal,
		m.SaveDuration,
		m.ValidationFailures,
		// Listings
		m.ListLoadsTotal,
		m.ListLoadDuration,
		m.ListSupersedesTotal,
		// Imports
		m.ImportsTotal,
		m.ImportFilesTotal,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
		m.BackendRetriesTotal,
		// Lookup cache
		m.LookupCacheHitsTotal,
		m.LookupCacheMissesTotal,
		// System
		m.DefinitionsLoaded,
		m.ContractIssuesFound,
		m.TrackingLookupsTotal,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordSave records a record save attempt.
func (m *Metrics) RecordSave(entity, mode, status string, duration time.Duration) {
	m.SavesTotal.WithLabelValues(entity, mode, status).Inc()
	m.SaveDuration.WithLabelValues(entity, mode).Observe(duration.Seconds())
}

// RecordValidationFailure records a record validation failure.
func (m *Metrics) RecordValidationFailure(entity string) {
	m.ValidationFailures.WithLabelValues(entity).Inc()
}

// RecordListLoad records a list load.
func (m *Metrics) RecordListLoad(entity, status string, duration time.Duration) {
	m.ListLoadsTotal.WithLabelValues(entity, status).Inc()
	m.ListLoadDuration.WithLabelValues(entity).Observe(duration.Seconds())
}

// RecordListSupersede records a list response discarded by a newer request.
func (m *Metrics) RecordListSupersede(entity string) {
	m.ListSupersedesTotal.WithLabelValues(entity).Inc()
}

// RecordImport records a bulk import submission.
func (m *Metrics) RecordImport(entity, status string, files int) {
	m.ImportsTotal.WithLabelValues(entity, status).Inc()
	m.ImportFilesTotal.WithLabelValues(entity).Add(float64(files))
}

// RecordBackendRequest records a backend request.
func (m *Metrics) RecordBackendRequest(method, route string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// SetBackendCircuitBreakerState sets the circuit breaker state gauge.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetBackendCircuitBreakerState(state float64) {
	m.BackendCircuitBreakerState.Set(state)
}

// RecordBackendRetry records a backend request retry.
func (m *Metrics) RecordBackendRetry(route string) {
	m.BackendRetriesTotal.WithLabelValues(route).Inc()
}

// RecordLookupCacheHit records a lookup cache hit.
func (m *Metrics) RecordLookupCacheHit(entity string) {
	m.LookupCacheHitsTotal.WithLabelValues(entity).Inc()
}

// RecordLookupCacheMiss records a lookup cache miss.
func (m *Metrics) RecordLookupCacheMiss(entity string) {
	m.LookupCacheMissesTotal.WithLabelValues(entity).Inc()
}

// SetDefinitionsLoaded sets the number of loaded entity definitions.
func (m *Metrics) SetDefinitionsLoaded(count float64) {
	m.DefinitionsLoaded.Set(count)
}

// SetContractIssuesFound sets the number of contract issues found at startup.
func (m *Metrics) SetContractIssuesFound(count float64) {
	m.ContractIssuesFound.Set(count)
}

// RecordTrackingLookup records a tracking lookup with its outcome.
func (m *Metrics) RecordTrackingLookup(status string) {
	m.TrackingLookupsTotal.WithLabelValues(status).Inc()
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
