// Package postgres opens the PostgreSQL pool and the Redis client used by
// accessd.
//
// Open applies pool limits and pings the database before returning, so a
// misconfigured DSN fails at start-up instead of on the first request:
//
//	db, err := postgres.Open(ctx, postgres.ConnectionConfig{URL: cfg.Database.URL})
//
// StartStatsRoutine feeds sql.DBStats into the Prometheus gauges.
// NewRedisClient backs the permission version store.
package postgres
