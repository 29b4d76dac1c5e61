// Package history records diagnostic events: app opens, scheduler starts,
// sync outcomes and infection reports.
package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

// Retention is how long entries are kept
const Retention = 14 * 24 * time.Hour

// Log appends and lists history entries
type Log struct {
	backend    storage.Backend
	devHistory bool
	now        func() time.Time
}

// Option configures a Log
type Option func(*Log)

// WithDevHistory also records scheduler starts
func WithDevHistory(enabled bool) Option {
	return func(l *Log) {
		l.devHistory = enabled
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		l.now = now
	}
}

// New creates a Log on top of backend
func New(backend storage.Backend, opts ...Option) *Log {
	l := &Log{
		backend: backend,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Add records an entry. Opening the app also drops entries past retention.
// WORKER_STARTED entries are only recorded with dev history enabled.
func (l *Log) Add(ctx context.Context, kind status.HistoryKind, detail string, success bool) error {
	if kind == status.HistoryWorkerStarted && !l.devHistory {
		return nil
	}

	now := l.now()
	if kind == status.HistoryOpenApp {
		removed, err := l.backend.DeleteHistoryBefore(ctx, now.Add(-Retention))
		if err != nil {
			return fmt.Errorf("failed to prune history: %w", err)
		}
		if removed > 0 {
			slog.Debug("Pruned history entries", "count", removed)
		}
	}

	entry := status.HistoryEntry{
		ID:      uuid.New(),
		Kind:    kind,
		Detail:  detail,
		Success: success,
		At:      now,
	}
	if err := l.backend.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("failed to append %s history entry: %w", kind, err)
	}
	return nil
}

// List returns all entries, oldest first
func (l *Log) List(ctx context.Context) ([]status.HistoryEntry, error) {
	entries, err := l.backend.ListHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return entries, nil
}
