// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry spans and health checks for the dependency registry.
//
// # Structured Logging
//
//	logger := observability.NewLogger("info", os.Stderr)
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).WithField("key", key).Info("registered")
//
// # Store Instrumentation
//
// Any storage.ProviderStore can be decorated so that each operation is
// counted, timed, traced and logged at debug level:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	store = observability.NewInstrumentedStore(store, metrics, logger)
//
// A missing row is reported with status "not_found" and does not count as an
// error.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(store, store.Name(), version)
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
// InitOTel installs OTLP/gRPC trace and metric providers as the global
// providers. Spans from InstrumentedStore and the HTTP handler then reach the
// collector, and FromContext adds trace_id and span_id to log entries:
//
//	providers, err := observability.InitOTel(ctx, cfg, version, logger)
//	defer providers.Shutdown(ctx)
//
// OTelMetrics records registry check outcomes on the same meter provider.
//
// # Related Packages
//
//   - pkg/storage/factory: Builds instrumented stores from configuration
//   - pkg/httputil: Request ID and logging middleware
package observability
