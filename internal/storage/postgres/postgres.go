// Package postgres provides a storage.Backend on PostgreSQL.
// The schema is managed by the database package migrations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

const (
	defaultMaxConns        = 10
	defaultConnMaxLifetime = 5 * time.Minute
)

type backend struct {
	pool *pgxpool.Pool
}

var _ storage.Backend = (*backend)(nil)

// New connects to the database described by cfg
func New(ctx context.Context, cfg *config.DatabaseConfig) (storage.Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration is required")
	}

	connString, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to build connection string: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolCfg.MaxConns = defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = min(cfg.MaxIdleConns, poolCfg.MaxConns)
	}
	poolCfg.MaxConnLifetime = defaultConnMaxLifetime
	if lifetime := cfg.GetConnMaxLifetime(); lifetime > 0 {
		poolCfg.MaxConnLifetime = lifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &backend{pool: pool}, nil
}

// NewWithPool wraps an existing pool; Close closes the pool
func NewWithPool(pool *pgxpool.Pool) storage.Backend {
	return &backend{pool: pool}
}

// withTx runs fn in a transaction, committing when fn succeeds
func (b *backend) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := b.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func scanState(row pgx.Row) (*status.SyncState, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sync state row is missing, run migrations: %w", err)
		}
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	state := &status.SyncState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	return state, nil
}

func (b *backend) LoadState(ctx context.Context) (*status.SyncState, error) {
	return scanState(b.pool.QueryRow(ctx, "SELECT state FROM sync_state WHERE id = 1"))
}

func (b *backend) UpdateState(ctx context.Context, fn storage.StateUpdateFunc) (bool, error) {
	var changed bool
	err := b.withTx(ctx, func(tx pgx.Tx) error {
		state, err := scanState(tx.QueryRow(ctx, "SELECT state FROM sync_state WHERE id = 1 FOR UPDATE"))
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
		if _, err := tx.Exec(ctx,
			"UPDATE sync_state SET state = $1, updated_at = now() WHERE id = 1", data); err != nil {
			return fmt.Errorf("failed to save state: %w", err)
		}
		return nil
	})
	return changed, err
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listExposureDays(ctx context.Context, q querier) ([]status.ExposureDay, error) {
	rows, err := q.Query(ctx, "SELECT day, reported_at, duration_signal FROM exposure_days ORDER BY day")
	if err != nil {
		return nil, fmt.Errorf("failed to list exposure days: %w", err)
	}
	defer rows.Close()

	var days []status.ExposureDay
	for rows.Next() {
		var (
			day    int64
			record status.ExposureDay
		)
		if err := rows.Scan(&day, &record.ReportedAt, &record.DurationSignal); err != nil {
			return nil, fmt.Errorf("failed to scan exposure day: %w", err)
		}
		record.Day = daybucket.DayID(day)
		days = append(days, record)
	}
	return days, rows.Err()
}

func (b *backend) ListExposureDays(ctx context.Context) ([]status.ExposureDay, error) {
	return listExposureDays(ctx, b.pool)
}

func (b *backend) UpdateExposureDays(ctx context.Context, fn storage.ExposureDaysUpdateFunc) error {
	return b.withTx(ctx, func(tx pgx.Tx) error {
		// Row locks cannot cover days that do not exist yet.
		if _, err := tx.Exec(ctx, "LOCK TABLE exposure_days IN SHARE ROW EXCLUSIVE MODE"); err != nil {
			return fmt.Errorf("failed to lock exposure days: %w", err)
		}
		days, err := listExposureDays(ctx, tx)
		if err != nil {
			return err
		}
		next, changed := fn(days)
		if !changed {
			return nil
		}

		batch := &pgx.Batch{}
		batch.Queue("DELETE FROM exposure_days")
		for _, day := range next {
			batch.Queue("INSERT INTO exposure_days (day, reported_at, duration_signal) VALUES ($1, $2, $3)",
				int64(day.Day), day.ReportedAt, day.DurationSignal)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to replace exposure days: %w", err)
		}
		return nil
	})
}

func (b *backend) AppendHistory(ctx context.Context, entry status.HistoryEntry) error {
	_, err := b.pool.Exec(ctx,
		"INSERT INTO history_entries (id, kind, detail, success, at) VALUES ($1, $2, $3, $4, $5)",
		entry.ID.String(), string(entry.Kind), entry.Detail, entry.Success, entry.At)
	if err != nil {
		return fmt.Errorf("failed to append history entry: %w", err)
	}
	return nil
}

func (b *backend) ListHistory(ctx context.Context) ([]status.HistoryEntry, error) {
	rows, err := b.pool.Query(ctx,
		"SELECT id::text, kind, detail, success, at FROM history_entries ORDER BY at, id")
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
		)
		if err := rows.Scan(&id, &kind, &entry.Detail, &entry.Success, &entry.At); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		if entry.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid history entry id %q: %w", id, err)
		}
		entry.Kind = status.HistoryKind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (b *backend) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := b.pool.Exec(ctx, "DELETE FROM history_entries WHERE at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (b *backend) Clear(ctx context.Context) error {
	return b.withTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range []string{
			"UPDATE sync_state SET state = '{}'::jsonb, updated_at = now() WHERE id = 1",
			"DELETE FROM exposure_days",
			"DELETE FROM history_entries",
		} {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("failed to clear storage: %w", err)
			}
		}
		return nil
	})
}

func (b *backend) Close() error {
	b.pool.Close()
	return nil
}
