// Package config provides application configuration management from environment variables.
//
// # Overview
//
// Settings are read from ACCESSD_* environment variables with defaults for
// everything except the database URL and the JWT secret. A .env file is loaded
// first when present (see ACCESSD_ENV_FILE); real environment variables always win.
//
// # Configuration Structure
//
// Server settings:
//
//	ACCESSD_HOST="0.0.0.0"
//	ACCESSD_PORT="8080"
//	ACCESSD_METRICS_PORT="9090"
//	ACCESSD_READ_TIMEOUT="15s"
//
// Storage settings:
//
//	ACCESSD_DATABASE_URL="postgres://accessd:secret@db/accessd?sslmode=disable"
//	ACCESSD_DB_MAX_OPEN_CONNS="20"
//	ACCESSD_REDIS_URL="redis://redis:6379/0"
//
// Token settings:
//
//	ACCESSD_JWT_SECRET="<at least 32 bytes>"
//	ACCESSD_TOKEN_TTL="8h"
//	ACCESSD_REVOCATION_ENABLED="false"
//
// Resolution settings:
//
//	ACCESSD_FIELD_DEFAULT="EDIT"              # access when no field row exists
//	ACCESSD_SNAPSHOT_FIELD_MERGE="overwrite"  # or "restrictive"
//	ACCESSD_ASSIGNMENT_DELETION="physical"    # or "tombstone"
//	ACCESSD_SCREEN_OPERATION="READ"
//	ACCESSD_SEED_FILE="/etc/accessd/catalog.yaml"
//
// # Usage
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
package config
