// Package badger provides a storage.Backend on an embedded Badger key-value store
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

var (
	stateKey        = []byte("state")
	exposurePrefix  = []byte("exposure/")
	historyPrefix   = []byte("history/")
	defaultGCRatio  = 0.5
	defaultGCPeriod = 10 * time.Minute
)

// Config configures Open
type Config struct {
	// Path is the database directory; required unless InMemory is set
	Path string

	// InMemory keeps all data in memory
	InMemory bool

	// GCInterval enables periodic value log garbage collection; zero disables it
	GCInterval time.Duration

	// Logger receives Badger's internal log output; nil silences it
	Logger *slog.Logger
}

type backend struct {
	db *badger.DB
	gc *gcRunner

	// mu serializes writers so read-modify-write transactions never conflict
	mu     sync.Mutex
	closed bool
}

var _ storage.Backend = (*backend)(nil)

// Open opens or creates a Badger backend
func Open(cfg Config) (storage.Backend, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("path is required for persistent badger storage")
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	b := &backend{db: db}
	if !cfg.InMemory && cfg.GCInterval > 0 {
		b.gc = newGCRunner(db, cfg.GCInterval, defaultGCRatio)
		b.gc.start()
	}
	return b, nil
}

// OpenPath opens a persistent backend at path with periodic garbage collection
func OpenPath(path string) (storage.Backend, error) {
	return Open(Config{Path: path, GCInterval: defaultGCPeriod, Logger: slog.Default()})
}

// OpenInMemory opens an in-memory backend
func OpenInMemory() (storage.Backend, error) {
	return Open(Config{InMemory: true})
}

func (b *backend) view(fn func(txn *badger.Txn) error) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return storage.ErrClosed
	}
	return b.db.View(fn)
}

func (b *backend) update(fn func(txn *badger.Txn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}
	return b.db.Update(fn)
}

func readState(txn *badger.Txn) (*status.SyncState, error) {
	state := &status.SyncState{}
	item, err := txn.Get(stateKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return state, nil
	}
	if err != nil {
		return nil, err
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, state)
	})
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}

func (b *backend) LoadState(_ context.Context) (*status.SyncState, error) {
	var state *status.SyncState
	err := b.view(func(txn *badger.Txn) error {
		var err error
		state, err = readState(txn)
		return err
	})
	return state, err
}

func (b *backend) UpdateState(_ context.Context, fn storage.StateUpdateFunc) (bool, error) {
	var changed bool
	err := b.update(func(txn *badger.Txn) error {
		state, err := readState(txn)
		if err != nil {
			return err
		}
		if changed = fn(state); !changed {
			return nil
		}
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("encode state: %w", err)
		}
		return txn.Set(stateKey, data)
	})
	return changed, err
}

// scan decodes every value under prefix in key order
func scan[T any](txn *badger.Txn, prefix []byte) ([]T, [][]byte, error) {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	var (
		values []T
		keys   [][]byte
	)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var v T
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &v) }); err != nil {
			return nil, nil, fmt.Errorf("decode %s: %w", item.Key(), err)
		}
		values = append(values, v)
		keys = append(keys, item.KeyCopy(nil))
	}
	return values, keys, nil
}

func exposureKey(day status.ExposureDay) []byte {
	return fmt.Appendf(append([]byte(nil), exposurePrefix...), "%020d", int64(day.Day))
}

func historyKey(entry status.HistoryEntry) []byte {
	return fmt.Appendf(append([]byte(nil), historyPrefix...), "%020d/%s", entry.At.UnixNano(), entry.ID)
}

func (b *backend) ListExposureDays(_ context.Context) ([]status.ExposureDay, error) {
	var days []status.ExposureDay
	err := b.view(func(txn *badger.Txn) error {
		var err error
		days, _, err = scan[status.ExposureDay](txn, exposurePrefix)
		return err
	})
	return days, err
}

func (b *backend) UpdateExposureDays(_ context.Context, fn storage.ExposureDaysUpdateFunc) error {
	return b.update(func(txn *badger.Txn) error {
		days, keys, err := scan[status.ExposureDay](txn, exposurePrefix)
		if err != nil {
			return err
		}
		next, changed := fn(days)
		if !changed {
			return nil
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		for _, day := range next {
			data, err := json.Marshal(day)
			if err != nil {
				return fmt.Errorf("encode exposure day: %w", err)
			}
			if err := txn.Set(exposureKey(day), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *backend) AppendHistory(_ context.Context, entry status.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}
	return b.update(func(txn *badger.Txn) error {
		return txn.Set(historyKey(entry), data)
	})
}

func (b *backend) ListHistory(_ context.Context) ([]status.HistoryEntry, error) {
	var entries []status.HistoryEntry
	err := b.view(func(txn *badger.Txn) error {
		var err error
		entries, _, err = scan[status.HistoryEntry](txn, historyPrefix)
		return err
	})
	storage.SortHistory(entries)
	return entries, err
}

func (b *backend) DeleteHistoryBefore(_ context.Context, cutoff time.Time) (int, error) {
	var removed int
	err := b.update(func(txn *badger.Txn) error {
		entries, keys, err := scan[status.HistoryEntry](txn, historyPrefix)
		if err != nil {
			return err
		}
		for i, e := range entries {
			if !e.At.Before(cutoff) {
				continue
			}
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (b *backend) Clear(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return storage.ErrClosed
	}
	return b.db.DropPrefix(stateKey, exposurePrefix, historyPrefix)
}

func (b *backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.gc != nil {
		b.gc.stop()
	}
	return b.db.Close()
}
