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

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec
	RoleResolutionTotal *prometheus.CounterVec

	// Batch metrics
	BatchOperationsTotal   *prometheus.CounterVec
	BatchOperationDuration *prometheus.HistogramVec
	BatchSize              *prometheus.HistogramVec

	// Session cache metrics
	SessionCacheLookups *prometheus.CounterVec

	// Lifecycle metrics (invitations, one-time tokens, sessions)
	LifecycleTransitions *prometheus.CounterVec
	SweptTotal           *prometheus.CounterVec

	// Database metrics
	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge
	DBConnectionsIdle  prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowguard_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_authz_decisions_total",
				Help: "Table permission decisions by outcome",
			},
			[]string{"table", "operation", "outcome"},
		),
		RoleResolutionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_role_resolutions_total",
				Help: "Effective role resolutions by scope",
			},
			[]string{"scope"},
		),

		BatchOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_batch_operations_total",
				Help: "Batch operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		BatchOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowguard_batch_operation_duration_seconds",
				Help:    "Batch operation duration in seconds, transaction included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		BatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rowguard_batch_size_records",
				Help:    "Number of records per batch request",
				Buckets: prometheus.ExponentialBuckets(1, 4, 7),
			},
			[]string{"operation"},
		),

		SessionCacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_session_cache_lookups_total",
				Help: "Session cache lookups by tier and result",
			},
			[]string{"tier", "result"},
		),

		LifecycleTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_lifecycle_transitions_total",
				Help: "State transitions of invitations and one-time tokens",
			},
			[]string{"entity", "state"},
		),
		SweptTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rowguard_maintenance_swept_total",
				Help: "Rows expired or removed by maintenance sweeps",
			},
			[]string{"entity"},
		),

		DBConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rowguard_db_connections_open",
				Help: "Number of open database connections",
			},
		),
		DBConnectionsInUse: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rowguard_db_connections_in_use",
				Help: "Number of database connections in use",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rowguard_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.RoleResolutionTotal,
		m.BatchOperationsTotal,
		m.BatchOperationDuration,
		m.BatchSize,
		m.SessionCacheLookups,
		m.LifecycleTransitions,
		m.SweptTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
		m.DBConnectionsIdle,
	)

	return m
}

// RecordDBStats copies pool statistics into the gauges
func (m *Metrics) RecordDBStats(stats sql.DBStats) {
	m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
	m.DBConnectionsInUse.Set(float64(stats.InUse))
	m.DBConnectionsIdle.Set(float64(stats.Idle))
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// routeLabel keeps label cardinality bounded by using the mux template
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
