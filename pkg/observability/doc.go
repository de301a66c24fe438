// Package observability provides structured logging, Prometheus metrics, health checks,
// and OpenTelemetry tracing.
//
// # Structured Logging
//
// Create logger:
//
//	logger := observability.NewLogger("info", "text", os.Stdout)
//	logger.WithField("shop", shop).Info("usage incremented")
//
// Request-scoped logging:
//
//	observability.FromContext(ctx).WithError(err).Error("failed to reserve usage")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.RecordLimitDecision("Starter", "price")
//	metrics.SetShopsByPlan(map[string]int{"Free": 12, "Growth": 3})
//
// All Record* methods are safe to call on a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(store, redisClient, version)
//	status := checker.Check(ctx)
//
// # Scheduled Refresh
//
// The shops-by-plan gauge is refreshed on a cron schedule:
//
//	c, err := observability.StartPlanGaugeRefresher("@every 5m", ledger, metrics, logger)
//	defer c.Stop()
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, cfg, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// # Related Packages
//
//   - pkg/config: Observability configuration
//   - pkg/api: Request logging and metrics middleware
package observability
