// Package memory provides an in-process storage.Backend
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

// backend keeps everything in memory; all data is lost on exit
type backend struct {
	mu      sync.RWMutex // Protects all fields below
	state   *status.SyncState
	days    []status.ExposureDay
	history []status.HistoryEntry
	closed  bool
}

var _ storage.Backend = (*backend)(nil)

// New returns an empty in-memory backend
func New() storage.Backend {
	return &backend{state: &status.SyncState{}}
}

func (b *backend) LoadState(_ context.Context) (*status.SyncState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, storage.ErrClosed
	}
	return b.state.Clone(), nil
}

func (b *backend) UpdateState(_ context.Context, fn storage.StateUpdateFunc) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, storage.ErrClosed
	}

	next := b.state.Clone()
	if !fn(next) {
		return false, nil
	}
	b.state = next
	return true, nil
}

func (b *backend) ListExposureDays(_ context.Context) ([]status.ExposureDay, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, storage.ErrClosed
	}
	return slices.Clone(b.days), nil
}

func (b *backend) UpdateExposureDays(_ context.Context, fn storage.ExposureDaysUpdateFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}

	next, changed := fn(slices.Clone(b.days))
	if changed {
		b.days = slices.Clone(next)
	}
	return nil
}

func (b *backend) AppendHistory(_ context.Context, entry status.HistoryEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}
	b.history = append(b.history, entry)
	storage.SortHistory(b.history)
	return nil
}

func (b *backend) ListHistory(_ context.Context) ([]status.HistoryEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, storage.ErrClosed
	}
	return slices.Clone(b.history), nil
}

func (b *backend) DeleteHistoryBefore(_ context.Context, cutoff time.Time) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, storage.ErrClosed
	}
	older, kept := storage.HistoryBefore(b.history, cutoff)
	b.history = kept
	return len(older), nil
}

func (b *backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}
	b.state = &status.SyncState{}
	b.days = nil
	b.history = nil
	return nil
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
