package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/storage"
	badgerstore "github.com/proxtrace/exposure-sync/internal/storage/badger"
	"github.com/proxtrace/exposure-sync/internal/storage/file"
	"github.com/proxtrace/exposure-sync/internal/storage/memory"
	"github.com/proxtrace/exposure-sync/internal/storage/sqlite"
)

// LocalFactory creates backends that live in process memory or on the local filesystem
type LocalFactory struct {
	storageType string
	dataDir     string
}

var _ Factory = (*LocalFactory)(nil)

// NewLocalFactory creates a factory for memory, file, sqlite and badger storage.
// The data directory is created for the on-disk types.
func NewLocalFactory(cfg *config.Config) (*LocalFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	f := &LocalFactory{
		storageType: cfg.Storage.Type,
		dataDir:     cfg.Storage.Path,
	}
	if f.dataDir == "" {
		f.dataDir = config.DefaultStoragePath
	}

	if f.storageType != config.StorageTypeMemory {
		if err := os.MkdirAll(f.dataDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create data directory %s: %w", f.dataDir, err)
		}
	}

	slog.Info("Creating local storage factory", "type", f.storageType, "data_dir", f.dataDir)
	return f, nil
}

// CreateBackend opens the backend for the configured storage type
func (f *LocalFactory) CreateBackend(_ context.Context) (storage.Backend, error) {
	slog.Debug("Creating storage backend", "type", f.storageType)

	switch f.storageType {
	case config.StorageTypeMemory:
		return memory.New(), nil
	case config.StorageTypeFile:
		return file.New(f.dataDir)
	case config.StorageTypeSQLite:
		return sqlite.OpenDir(f.dataDir)
	case config.StorageTypeBadger:
		return badgerstore.OpenPath(f.dataDir)
	default:
		return nil, fmt.Errorf("storage type %s is not a local storage type", f.storageType)
	}
}

// Cleanup is a no-op; backends own their files and are closed by the caller
func (*LocalFactory) Cleanup() {}
