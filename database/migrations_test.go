package database

import (
	"context"
	"io/fs"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMigrateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@host:5432/db?sslmode=disable", "pgx5://u:p@host:5432/db?sslmode=disable"},
		{"postgresql://u@host/db", "pgx5://u@host/db"},
		{"pgx5://u@host/db", "pgx5://u@host/db"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toMigrateURL(tt.in))
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	t.Parallel()

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationsFS, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestMigrations(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, connStr := SetupTestDBContainer(t, ctx)

	var rows int
	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM sync_state").Scan(&rows))
	assert.Equal(t, 1, rows)

	m, err := NewMigrator(connStr)
	require.NoError(t, err)
	defer func() { _, _ = m.Close() }()

	fnames, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)

	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(len(fnames)), version)

	require.NoError(t, m.Steps(-len(fnames)))
	require.NoError(t, m.Steps(len(fnames)))
}

func TestMigrationErrorHelpers(t *testing.T) {
	t.Parallel()

	assert.NoError(t, IgnoreNoChange(nil))
	assert.NoError(t, IgnoreNoChange(migrate.ErrNoChange))
	assert.ErrorIs(t, IgnoreNoChange(migrate.ErrNilVersion), migrate.ErrNilVersion)

	assert.True(t, IsNilVersion(migrate.ErrNilVersion))
	assert.False(t, IsNilVersion(nil))
}
