// Package file provides a storage.Backend that keeps JSON documents in a directory.
//
// Each document is rewritten through a temporary file and an atomic rename.
// An advisory lock file serializes access between processes sharing the
// directory, e.g. a running daemon and a one-off CLI command.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

const (
	// StateFileName holds the sync state
	StateFileName = "state.json"
	// ExposureDaysFileName holds the exposure days
	ExposureDaysFileName = "exposure_days.json"
	// HistoryFileName holds the history entries
	HistoryFileName = "history.json"

	lockFileName = ".lock"
)

type backend struct {
	dir    string
	mu     sync.Mutex
	lock   *flock.Flock
	closed bool
}

var _ storage.Backend = (*backend)(nil)

// New returns a backend rooted at dir, creating it when missing
func New(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return &backend{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, lockFileName)),
	}, nil
}

// withLock runs fn holding both the process mutex and the directory lock
func (b *backend) withLock(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}

	if err := b.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock storage directory: %w", err)
	}
	defer func() { _ = b.lock.Unlock() }()

	return fn()
}

// readJSON decodes name into v; a missing file leaves v untouched
func (b *backend) readJSON(name string, v any) error {
	// #nosec G304 -- name is one of the fixed document names
	data, err := os.ReadFile(filepath.Join(b.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", name, err)
	}
	return nil
}

// writeJSON replaces name with the JSON encoding of v. The temporary file is
// synced before the rename so a crash never leaves a truncated document.
func (b *backend) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", name, err)
	}

	f, err := os.CreateTemp(b.dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", name, err)
	}
	tempPath := f.Name()
	committed := false
	defer func() {
		if !committed {
			_ = f.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write temporary file for %s: %w", name, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary file for %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file for %s: %w", name, err)
	}
	if err := os.Rename(tempPath, filepath.Join(b.dir, name)); err != nil {
		return fmt.Errorf("failed to rename %s: %w", name, err)
	}
	committed = true

	return b.syncDir()
}

// syncDir flushes the directory entry written by a rename
func (b *backend) syncDir() error {
	d, err := os.Open(b.dir)
	if err != nil {
		return fmt.Errorf("failed to open storage directory: %w", err)
	}
	defer func() { _ = d.Close() }()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("failed to sync storage directory: %w", err)
	}
	return nil
}

func (b *backend) LoadState(_ context.Context) (*status.SyncState, error) {
	state := &status.SyncState{}
	err := b.withLock(func() error {
		return b.readJSON(StateFileName, state)
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (b *backend) UpdateState(_ context.Context, fn storage.StateUpdateFunc) (bool, error) {
	var changed bool
	err := b.withLock(func() error {
		state := &status.SyncState{}
		if err := b.readJSON(StateFileName, state); err != nil {
			return err
		}
		if changed = fn(state); !changed {
			return nil
		}
		return b.writeJSON(StateFileName, state)
	})
	return changed, err
}

func (b *backend) ListExposureDays(_ context.Context) ([]status.ExposureDay, error) {
	var days []status.ExposureDay
	err := b.withLock(func() error {
		return b.readJSON(ExposureDaysFileName, &days)
	})
	return days, err
}

func (b *backend) UpdateExposureDays(_ context.Context, fn storage.ExposureDaysUpdateFunc) error {
	return b.withLock(func() error {
		var days []status.ExposureDay
		if err := b.readJSON(ExposureDaysFileName, &days); err != nil {
			return err
		}
		next, changed := fn(days)
		if !changed {
			return nil
		}
		if next == nil {
			next = []status.ExposureDay{}
		}
		return b.writeJSON(ExposureDaysFileName, next)
	})
}

func (b *backend) AppendHistory(_ context.Context, entry status.HistoryEntry) error {
	return b.withLock(func() error {
		var entries []status.HistoryEntry
		if err := b.readJSON(HistoryFileName, &entries); err != nil {
			return err
		}
		entries = append(entries, entry)
		storage.SortHistory(entries)
		return b.writeJSON(HistoryFileName, entries)
	})
}

func (b *backend) ListHistory(_ context.Context) ([]status.HistoryEntry, error) {
	var entries []status.HistoryEntry
	err := b.withLock(func() error {
		return b.readJSON(HistoryFileName, &entries)
	})
	return entries, err
}

func (b *backend) DeleteHistoryBefore(_ context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := b.withLock(func() error {
		var entries []status.HistoryEntry
		if err := b.readJSON(HistoryFileName, &entries); err != nil {
			return err
		}
		older, kept := storage.HistoryBefore(entries, cutoff)
		if removed = len(older); removed == 0 {
			return nil
		}
		if kept == nil {
			kept = []status.HistoryEntry{}
		}
		return b.writeJSON(HistoryFileName, kept)
	})
	return removed, err
}

func (b *backend) Clear(_ context.Context) error {
	return b.withLock(func() error {
		for _, name := range []string{StateFileName, ExposureDaysFileName, HistoryFileName} {
			if err := os.Remove(filepath.Join(b.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
		}
		return nil
	})
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return b.lock.Close()
}
