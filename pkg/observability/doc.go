// Package observability provides structured logging, Prometheus metrics, health
// probes and graceful shutdown for accessd.
//
// # Structured Logging
//
// The Logger wraps logrus with a JSON formatter:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("profile", "ADMIN").Info("profile created")
//
// Request handlers use the request-scoped logger which already carries
// request_id and user_id:
//
//	observability.FromContext(r.Context()).WithError(err).Error("lookup failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObservePermissionCheck("resource", "allow", elapsed)
//
// All recording helpers accept a nil *Metrics.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, revocationEnabled, version)
//	observability.RegisterHealthRoutes(router, checker)
package observability
