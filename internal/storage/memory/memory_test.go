package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/proxtrace/exposure-sync/internal/storage"
	"github.com/proxtrace/exposure-sync/internal/storage/storagetest"
)

func TestBackendConformance(t *testing.T) {
	t.Parallel()
	storagetest.Run(t, func(*testing.T) storage.Backend { return New() })
}

func TestClosedBackend(t *testing.T) {
	t.Parallel()

	b := New()
	assert.NoError(t, b.Close())

	_, err := b.LoadState(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = b.ListHistory(context.Background())
	assert.ErrorIs(t, err, storage.ErrClosed)
}
