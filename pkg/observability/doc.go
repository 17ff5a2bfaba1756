// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing and health probes for rowguard.
//
// # Structured Logging
//
// Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("table", "employees").Info("batch committed")
//
// Request handlers should use FromContext, which carries request_id and
// user_id when the middleware chain has set them.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// Authorization decisions, role resolutions and batch outcomes each have a
// counter so that denial rates can be alerted on per table.
//
// # Tracing
//
// InitOTel installs an OTLP/gRPC tracer provider. Tracer returns a no-op
// tracer until then, so instrumented code does not need to check.
package observability
