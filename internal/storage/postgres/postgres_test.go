package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/proxtrace/exposure-sync/database"
	"github.com/proxtrace/exposure-sync/internal/storage"
	"github.com/proxtrace/exposure-sync/internal/storage/storagetest"
)

func TestBackendConformance(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool, _ := database.SetupTestDBContainer(t, ctx)

	storagetest.Run(t, func(t *testing.T) storage.Backend {
		b := &backend{pool: pool}
		require.NoError(t, b.Clear(ctx))
		return noClose{b}
	})
}

// noClose keeps the shared pool open across subtests
type noClose struct {
	storage.Backend
}

func (noClose) Close() error { return nil }
