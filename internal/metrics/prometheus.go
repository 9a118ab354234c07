// Package metrics provides Prometheus metrics for the medadmin API.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
	responseSize     *prometheus.HistogramVec
	kvOpsTotal       *prometheus.CounterVec
	kvOpDuration     *prometheus.HistogramVec
	kvErrors         *prometheus.CounterVec
	healthStatus     prometheus.Gauge
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
)

// NewMetrics creates and registers Prometheus metrics.
// Metrics are registered once per process; later calls return the same instance.
func NewMetrics() *Metrics {
	initOnce.Do(func() {
		globalMetrics = &Metrics{
			requestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "medadmin_http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "route", "status"},
			),
			requestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "medadmin_http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
				},
				[]string{"method", "route", "status"},
			),
			requestsInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "medadmin_http_requests_in_flight",
					Help: "Number of HTTP requests currently being processed",
				},
			),
			responseSize: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "medadmin_http_response_size_bytes",
					Help:    "HTTP response size in bytes",
					Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
				},
				[]string{"method", "route"},
			),
			kvOpsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "medadmin_kv_operations_total",
					Help: "Total number of tenant key-value operations",
				},
				[]string{"operation", "result"},
			),
			kvOpDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "medadmin_kv_operation_duration_seconds",
					Help:    "Tenant key-value operation duration in seconds",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"operation"},
			),
			kvErrors: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "medadmin_kv_errors_total",
					Help: "Total number of failed tenant key-value operations",
				},
				[]string{"operation", "kind"},
			),
			healthStatus: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "medadmin_health_status",
					Help: "Readiness of the service (1 = ready, 0 = not ready)",
				},
			),
		}
	})

	return globalMetrics
}

// RecordHTTPRequest records metrics for an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	m.requestsTotal.WithLabelValues(method, route, status).Inc()
	m.requestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// RecordResponseSize records the response size.
func (m *Metrics) RecordResponseSize(method, route string, size int) {
	m.responseSize.WithLabelValues(method, route).Observe(float64(size))
}

// IncRequestsInFlight increments the in-flight requests counter.
func (m *Metrics) IncRequestsInFlight() {
	m.requestsInFlight.Inc()
}

// DecRequestsInFlight decrements the in-flight requests counter.
func (m *Metrics) DecRequestsInFlight() {
	m.requestsInFlight.Dec()
}

// RecordKVOperation records a tenant key-value operation. result is one of
// "ok", "miss" or "error".
func (m *Metrics) RecordKVOperation(operation, result string, duration time.Duration) {
	m.kvOpsTotal.WithLabelValues(operation, result).Inc()
	m.kvOpDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordKVError records a failed operation by error kind.
func (m *Metrics) RecordKVError(operation, kind string) {
	m.kvErrors.WithLabelValues(operation, kind).Inc()
}

// SetHealthStatus sets the health status.
func (m *Metrics) SetHealthStatus(healthy bool) {
	if healthy {
		m.healthStatus.Set(1)
	} else {
		m.healthStatus.Set(0)
	}
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(port int, path string, logger *zap.Logger) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// RouteFunc names the route a request matched; it keeps label cardinality
// bounded when paths carry tenant IDs and keys.
type RouteFunc func(r *http.Request) string

// MetricsMiddleware creates middleware that records HTTP metrics.
func MetricsMiddleware(m *Metrics, route RouteFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.IncRequestsInFlight()
			defer m.DecRequestsInFlight()

			start := time.Now()
			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			name := r.URL.Path
			if route != nil {
				name = route(r)
			}
			m.RecordHTTPRequest(r.Method, name, rw.statusCode, time.Since(start))
			m.RecordResponseSize(r.Method, name, rw.size)
		})
	}
}

// metricsResponseWriter wraps http.ResponseWriter to capture metrics.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
}

// WriteHeader captures the status code.
func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Write captures the response size.
func (rw *metricsResponseWriter) Write(b []byte) (int, error) {
	size, err := rw.ResponseWriter.Write(b)
	rw.size += size
	return size, err
}
