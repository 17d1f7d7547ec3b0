package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/workdesk/accessd/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all permission engine migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create profiles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS profiles (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(64) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT '',
					level INT NOT NULL DEFAULT 100,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_profiles_level ON profiles(level, id);
			`,
		},
		{
			Version:     2,
			Description: "Create profile_assignments table",
			SQL: `
				CREATE TABLE IF NOT EXISTS profile_assignments (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL,
					profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE RESTRICT,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(user_id, profile_id)
				);

				CREATE INDEX IF NOT EXISTS idx_profile_assignments_profile_id ON profile_assignments(profile_id);
				CREATE INDEX IF NOT EXISTS idx_profile_assignments_active ON profile_assignments(user_id) WHERE active;
			`,
		},
		{
			Version:     3,
			Description: "Create resource and operation catalog",
			SQL: `
				CREATE TABLE IF NOT EXISTS resources (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(64) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT ''
				);

				CREATE TABLE IF NOT EXISTS operations (
					id BIGSERIAL PRIMARY KEY,
					code VARCHAR(64) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					description TEXT NOT NULL DEFAULT ''
				);
			`,
		},
		{
			Version:     4,
			Description: "Create resource_permissions and field_permissions tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS resource_permissions (
					id BIGSERIAL PRIMARY KEY,
					profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
					resource_id BIGINT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
					operation_id BIGINT NOT NULL REFERENCES operations(id) ON DELETE CASCADE,
					granted BOOLEAN NOT NULL DEFAULT TRUE,
					UNIQUE(profile_id, resource_id, operation_id)
				);

				CREATE TABLE IF NOT EXISTS field_permissions (
					id BIGSERIAL PRIMARY KEY,
					profile_id BIGINT NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
					resource_id BIGINT NOT NULL REFERENCES resources(id) ON DELETE CASCADE,
					field_name VARCHAR(128) NOT NULL,
					permission_type VARCHAR(16) NOT NULL CHECK (permission_type IN ('EDIT', 'READ', 'HIDDEN')),
					UNIQUE(profile_id, resource_id, field_name)
				);
			`,
		},
		{
			Version:     5,
			Description: "Create users table for credential verification",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					password_hash VARCHAR(255) NOT NULL,
					display_name VARCHAR(255) NOT NULL DEFAULT '',
					email VARCHAR(255) NOT NULL DEFAULT '',
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
			`,
		},
	}
}

// RunMigrations applies pending migrations, each in its own transaction
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS authz_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM authz_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		log := logger.WithField("version", migration.Version)
		log.Infof("Running migration: %s", migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO authz_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		log.Info("Migration completed")
	}

	return nil
}
