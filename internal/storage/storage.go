// Package storage defines the persistence contract shared by the sync components.
//
// Backends only provide atomic read-modify-write primitives. The invariants
// (monotonic watermark, one exposure record per day, retention) are enforced by
// the stores built on top: watermark, exposure and history.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/proxtrace/exposure-sync/internal/status"
)

// ErrClosed is returned by backends used after Close
var ErrClosed = errors.New("storage is closed")

// StateUpdateFunc mutates state in place and reports whether it changed.
// Returning false discards the mutation.
type StateUpdateFunc func(state *status.SyncState) bool

// ExposureDaysUpdateFunc receives the stored exposure days and returns the full
// replacement set and whether anything changed.
type ExposureDaysUpdateFunc func(days []status.ExposureDay) ([]status.ExposureDay, bool)

// Backend persists sync state, exposure days and history
//
//go:generate mockgen -destination=mocks/mock_backend.go -package=mocks -source=storage.go Backend
type Backend interface {
	// LoadState returns a copy of the sync state; an empty state on first use
	LoadState(ctx context.Context) (*status.SyncState, error)

	// UpdateState applies fn atomically and persists the result when fn returns true
	UpdateState(ctx context.Context, fn StateUpdateFunc) (bool, error)

	// ListExposureDays returns the stored exposure days in no particular order
	ListExposureDays(ctx context.Context) ([]status.ExposureDay, error)

	// UpdateExposureDays applies fn atomically to the stored exposure days
	UpdateExposureDays(ctx context.Context, fn ExposureDaysUpdateFunc) error

	// AppendHistory stores a history entry
	AppendHistory(ctx context.Context, entry status.HistoryEntry) error

	// ListHistory returns history entries ordered oldest first
	ListHistory(ctx context.Context) ([]status.HistoryEntry, error)

	// DeleteHistoryBefore removes entries older than cutoff and returns how many were removed
	DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int, error)

	// Clear removes all stored data
	Clear(ctx context.Context) error

	// Close releases resources held by the backend
	Close() error
}
