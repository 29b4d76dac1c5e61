// Package sqlite provides a storage.Backend on a single SQLite database file
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Schema versions:
// 1 - sync_state, exposure_days, history_entries
const currentSchemaVersion = 1

// DatabaseFileName is the file created inside the storage directory
const DatabaseFileName = "exposure-sync.db"

type backend struct {
	db *sql.DB
}

var _ storage.Backend = (*backend)(nil)

// OpenDir opens the database file inside dir, creating the directory when missing
func OpenDir(dir string) (storage.Backend, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
	}
	return Open(filepath.Join(dir, DatabaseFileName))
}

// Open opens or creates the SQLite database at path and applies the schema
func Open(path string) (storage.Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; one connection also serializes transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &backend{db: db}, nil
}

func applyPragmas(db *sql.DB) error {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version >= currentSchemaVersion {
		return nil
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing when fn succeeds
func (b *backend) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadState(ctx context.Context, q queryer) (*status.SyncState, error) {
	var raw string
	err := q.QueryRowContext(ctx, "SELECT state FROM sync_state WHERE id = 1").Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &status.SyncState{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	state := &status.SyncState{}
	if err := json.Unmarshal([]byte(raw), state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

func (b *backend) LoadState(ctx context.Context) (*status.SyncState, error) {
	return loadState(ctx, b.db)
}

func (b *backend) UpdateState(ctx context.Context, fn storage.StateUpdateFunc) (bool, error) {
	var changed bool
	err := b.withTx(ctx, func(tx *sql.Tx) error {
		state, err := loadState(ctx, tx)
		if err != nil {
			return err
		}
		if changed = fn(state); !changed {
			return nil
		}
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sync_state (id, state, updated_at) VALUES (1, ?, ?)
			ON CONFLICT (id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
			string(data), time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		return nil
	})
	return changed, err
}

type rowsQueryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listExposureDays(ctx context.Context, q rowsQueryer) ([]status.ExposureDay, error) {
	rows, err := q.QueryContext(ctx, "SELECT day, reported_at, duration_signal FROM exposure_days ORDER BY day")
	if err != nil {
		return nil, fmt.Errorf("failed to list exposure days: %w", err)
	}
	defer rows.Close()

	var days []status.ExposureDay
	for rows.Next() {
		var (
			day        status.ExposureDay
			reportedAt int64
		)
		if err := rows.Scan(&day.Day, &reportedAt, &day.DurationSignal); err != nil {
			return nil, fmt.Errorf("failed to scan exposure day: %w", err)
		}
		day.ReportedAt = time.Unix(0, reportedAt).UTC()
		days = append(days, day)
	}
	return days, rows.Err()
}

func (b *backend) ListExposureDays(ctx context.Context) ([]status.ExposureDay, error) {
	return listExposureDays(ctx, b.db)
}

func (b *backend) UpdateExposureDays(ctx context.Context, fn storage.ExposureDaysUpdateFunc) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		days, err := listExposureDays(ctx, tx)
		if err != nil {
			return err
		}
		next, changed := fn(days)
		if !changed {
			return nil
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM exposure_days"); err != nil {
			return fmt.Errorf("failed to clear exposure days: %w", err)
		}
		for _, day := range next {
			_, err := tx.ExecContext(ctx,
				"INSERT INTO exposure_days (day, reported_at, duration_signal) VALUES (?, ?, ?)",
				int64(day.Day), day.ReportedAt.UnixNano(), day.DurationSignal)
			if err != nil {
				return fmt.Errorf("failed to insert exposure day %s: %w", day.Day, err)
			}
		}
		return nil
	})
}

func (b *backend) AppendHistory(ctx context.Context, entry status.HistoryEntry) error {
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO history_entries (id, kind, detail, success, at) VALUES (?, ?, ?, ?, ?)",
		entry.ID.String(), string(entry.Kind), entry.Detail, entry.Success, entry.At.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (b *backend) ListHistory(ctx context.Context) ([]status.HistoryEntry, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT id, kind, detail, success, at FROM history_entries ORDER BY at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var entries []status.HistoryEntry
	for rows.Next() {
		var (
			entry status.HistoryEntry
			id    string
			kind  string
			at    int64
		)
		if err := rows.Scan(&id, &kind, &entry.Detail, &entry.Success, &at); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid history entry id %q: %w", id, err)
		}
		entry.Kind = status.HistoryKind(kind)
		entry.At = time.Unix(0, at).UTC()
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (b *backend) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM history_entries WHERE at < ?", cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (b *backend) Clear(ctx context.Context) error {
	return b.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"sync_state", "exposure_days", "history_entries"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (b *backend) Close() error {
	return b.db.Close()
}
