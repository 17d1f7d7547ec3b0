package authz

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/workdesk/accessd/pkg/observability"
)

// Config holds permission engine configuration
type Config struct {
	Resolver           ResolverOptions
	AssignmentDeletion DeletionPolicy
	RunMigrations      bool
}

// DefaultConfig returns the default permission engine configuration
func DefaultConfig() Config {
	return Config{
		Resolver:           DefaultResolverOptions(),
		AssignmentDeletion: DeletePhysical,
		RunMigrations:      true,
	}
}

// Manager wires the store, resolver, ledger and catalog together
type Manager struct {
	db       *sql.DB
	store    *Store
	resolver *Resolver
	ledger   *Ledger
	catalog  *Catalog
	config   Config
	logger   *observability.Logger
}

// NewManager creates a new permission engine manager. versions and metrics may be nil.
func NewManager(db *sql.DB, config Config, versions VersionBumper, metrics *observability.Metrics, logger *observability.Logger) *Manager {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	store := NewStore(db)

	return &Manager{
		db:       db,
		store:    store,
		resolver: NewResolver(store, config.Resolver, metrics),
		ledger: NewLedger(store, LedgerOptions{
			AssignmentDeletion: config.AssignmentDeletion,
			Versions:           versions,
			Metrics:            metrics,
			Logger:             logger,
		}),
		catalog: NewCatalog(store, versions, metrics, logger),
		config:  config,
		logger:  logger,
	}
}

// Initialize runs migrations (when enabled) and applies the seed catalog, if any
func (m *Manager) Initialize(ctx context.Context, seed *Seed) error {
	if m.config.RunMigrations {
		if err := RunMigrations(ctx, m.db, m.logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if seed != nil {
		if _, err := m.catalog.ApplySeed(ctx, seed); err != nil {
			return fmt.Errorf("failed to apply seed: %w", err)
		}
	}

	return nil
}

// Store returns the permission store
func (m *Manager) Store() *Store {
	return m.store
}

// Resolver returns the permission resolver
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Ledger returns the assignment ledger
func (m *Manager) Ledger() *Ledger {
	return m.ledger
}

// Catalog returns the catalog service
func (m *Manager) Catalog() *Catalog {
	return m.catalog
}
