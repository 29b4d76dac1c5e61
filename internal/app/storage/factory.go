// Package storage selects and builds the storage.Backend for the configured storage type.
package storage

import (
	"context"
	"fmt"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates the storage backend and owns the resources behind it
// (data directories, database connections).
type Factory interface {
	// CreateBackend creates the backend shared by all sync components.
	// Callers close the backend; Cleanup releases what the factory itself holds.
	CreateBackend(ctx context.Context) (storage.Backend, error)

	// Cleanup releases any resources held by this factory.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
// Returns a DatabaseFactory for PostgreSQL and a LocalFactory for everything else.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Storage.Type {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeMemory, config.StorageTypeFile, config.StorageTypeSQLite, config.StorageTypeBadger:
		return NewLocalFactory(cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
	}
}
