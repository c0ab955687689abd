// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing and health checks.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("tenant_id", tenantID).Info("wallet created")
//
// FromContext enriches the logger attached to a request with the request id and, once
// the tenant middleware has validated the membership, the user, tenant and role.
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("permission", observability.OutcomeDeny)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// All Record methods are no-ops on a nil *Metrics so libraries can run without metrics.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "crmcore",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Packages start spans with observability.Tracer().
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
package observability
