package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/status"
)

func TestNewStorageFactory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      func(dir string) *config.Config
		wantErr  string
		wantType any
	}{
		{
			name:    "nil config",
			cfg:     func(string) *config.Config { return nil },
			wantErr: "config cannot be nil",
		},
		{
			name: "unknown type",
			cfg: func(dir string) *config.Config {
				return &config.Config{Storage: config.StorageConfig{Type: "s3", Path: dir}}
			},
			wantErr: "unknown storage type: s3",
		},
		{
			name: "database without settings",
			cfg: func(string) *config.Config {
				return &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeDatabase}}
			},
			wantErr: "database configuration is required",
		},
		{
			name: "file storage",
			cfg: func(dir string) *config.Config {
				return &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeFile, Path: dir}}
			},
			wantType: &LocalFactory{},
		},
		{
			name: "memory storage",
			cfg: func(string) *config.Config {
				return &config.Config{Storage: config.StorageConfig{Type: config.StorageTypeMemory}}
			},
			wantType: &LocalFactory{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			factory, err := NewStorageFactory(context.Background(), tt.cfg(t.TempDir()))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.wantType, factory)
			factory.Cleanup()
		})
	}
}

func TestLocalFactoryCreateBackend(t *testing.T) {
	t.Parallel()

	for _, storageType := range []string{
		config.StorageTypeMemory,
		config.StorageTypeFile,
		config.StorageTypeSQLite,
		config.StorageTypeBadger,
	} {
		t.Run(storageType, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			dir := filepath.Join(t.TempDir(), "nested", "data")

			factory, err := NewLocalFactory(&config.Config{
				Storage: config.StorageConfig{Type: storageType, Path: dir},
			})
			require.NoError(t, err)
			defer factory.Cleanup()

			backend, err := factory.CreateBackend(ctx)
			require.NoError(t, err)
			defer func() { require.NoError(t, backend.Close()) }()

			changed, err := backend.UpdateState(ctx, func(s *status.SyncState) bool {
				s.TracingEnabled = true
				return true
			})
			require.NoError(t, err)
			assert.True(t, changed)

			state, err := backend.LoadState(ctx)
			require.NoError(t, err)
			assert.True(t, state.TracingEnabled)
		})
	}
}

func TestDatabaseFactoryRequiresPassword(t *testing.T) {
	// not parallel: mutates the environment
	t.Setenv(config.DatabasePasswordEnv, "")

	_, err := NewDatabaseFactory(context.Background(), &config.Config{
		Storage: config.StorageConfig{
			Type:     config.StorageTypeDatabase,
			Database: &config.DatabaseConfig{Host: "localhost", Port: 5432, User: "u", Database: "d"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database password configured")
}
