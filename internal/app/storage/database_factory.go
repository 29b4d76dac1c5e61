package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proxtrace/exposure-sync/database"
	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/storage"
	"github.com/proxtrace/exposure-sync/internal/storage/postgres"
)

// DatabaseFactory creates PostgreSQL-backed storage
type DatabaseFactory struct {
	config     *config.DatabaseConfig
	migrate    bool
	connString string
}

var _ Factory = (*DatabaseFactory)(nil)

// DatabaseFactoryOption is a functional option for configuring the DatabaseFactory
type DatabaseFactoryOption func(*DatabaseFactory)

// WithMigrations applies pending schema migrations before the backend is created
func WithMigrations(enabled bool) DatabaseFactoryOption {
	return func(f *DatabaseFactory) {
		f.migrate = enabled
	}
}

// NewDatabaseFactory creates a new database-backed storage factory
func NewDatabaseFactory(_ context.Context, cfg *config.Config, opts ...DatabaseFactoryOption) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Storage.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	connString, err := cfg.Storage.Database.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	slog.Info("Creating database-backed storage factory",
		"host", cfg.Storage.Database.Host, "database", cfg.Storage.Database.Database)

	factory := &DatabaseFactory{
		config:     cfg.Storage.Database,
		migrate:    true,
		connString: connString,
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory, nil
}

// CreateBackend migrates the schema when enabled and connects the backend
func (d *DatabaseFactory) CreateBackend(ctx context.Context) (storage.Backend, error) {
	if d.migrate {
		slog.Info("Applying database migrations")
		if err := database.MigrateUp(d.connString); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}
	slog.Debug("Creating database-backed storage backend")
	return postgres.New(ctx, d.config)
}

// Cleanup is a no-op; the backend owns its connection pool
func (*DatabaseFactory) Cleanup() {}
