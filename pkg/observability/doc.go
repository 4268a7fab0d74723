// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry setup, health endpoints and graceful shutdown for the
// catalog server.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, nil)
//	logger.WithField("strategy", "mixed").Info("search complete")
//
// Request scoped loggers carry the request ID and, inside a recording span,
// the trace and span IDs:
//
//	observability.FromContext(ctx).Debug("skipping record")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// Metrics implements the search and cache recorders, so the same value is
// handed to search.Service.SetRecorder and cache.Storage.SetRecorder.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("storage", true, store.HealthCheck)
//	checker.AddCheck("redis", false, redisClient.Ping)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "catalog",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
