// Package metrics provides Prometheus metrics for the file hive server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mynx_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mynx_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Content transfer metrics
	contentBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mynx_content_bytes_downloaded_total",
			Help: "Total bytes served by the download endpoint",
		},
	)

	contentBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mynx_content_bytes_uploaded_total",
			Help: "Total bytes accepted by the upload endpoint",
		},
	)

	// Virtual hierarchy operations
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mynx_operations_total",
			Help: "File and folder operations by outcome",
		},
		[]string{"operation", "status"},
	)

	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mynx_operation_duration_seconds",
			Help:    "File and folder operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	folderOperationObjects = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mynx_folder_operation_objects",
			Help:    "Objects touched by a single folder operation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"operation"},
	)

	hierarchyNodes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mynx_hierarchy_nodes",
			Help:    "Nodes in a built folder hierarchy",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		},
	)

	// Audit pipeline
	auditRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mynx_audit_records_total",
			Help: "Audit records by pipeline outcome (enqueued, dropped, written, failed)",
		},
		[]string{"outcome"},
	)

	auditQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mynx_audit_queue_depth",
			Help: "Audit records waiting for the sink",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mynx_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	rateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mynx_rate_limit_hits_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mynx_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mynx_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Object store metrics
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mynx_store_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "operation"},
	)

	storeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mynx_store_operations_total",
			Help: "Total object store operations",
		},
		[]string{"backend", "operation", "status"},
	)
)

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordContentDownload records bytes sent to a client.
func RecordContentDownload(bytes int64) {
	contentBytesDownloaded.Add(float64(bytes))
}

// RecordContentUpload records bytes received from a client.
func RecordContentUpload(bytes int64) {
	contentBytesUploaded.Add(float64(bytes))
}

// RecordOperation records one orchestrator call.
func RecordOperation(operation string, duration time.Duration, success bool) {
	operationsTotal.WithLabelValues(operation, statusLabel(success)).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFolderObjects records how many objects a folder operation listed.
func RecordFolderObjects(operation string, count int) {
	folderOperationObjects.WithLabelValues(operation).Observe(float64(count))
}

// RecordHierarchySize records the node count of a built hierarchy.
func RecordHierarchySize(nodes int) {
	hierarchyNodes.Observe(float64(nodes))
}

// RecordAudit counts an audit pipeline outcome.
func RecordAudit(outcome string) {
	auditRecordsTotal.WithLabelValues(outcome).Inc()
}

// SetAuditQueueDepth sets the number of queued audit records.
func SetAuditQueueDepth(n int) {
	auditQueueDepth.Set(float64(n))
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRateLimitHit counts a rejected request.
func RecordRateLimitHit() {
	rateLimitHits.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordStoreOperation records an object store call.
func RecordStoreOperation(backend, operation string, duration time.Duration, success bool) {
	storeOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	storeOperationsTotal.WithLabelValues(backend, operation, statusLabel(success)).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics.
// Routes are labelled by the matched ServeMux pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(r.Method, route, rw.statusCode, time.Since(start))
	})
}
