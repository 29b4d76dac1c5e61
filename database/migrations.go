// Package database provides PostgreSQL schema migrations for the database storage type.
package database

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // registers the pgx5:// scheme
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator is the subset of *migrate.Migrate used by callers
type Migrator interface {
	Up() error
	Down() error
	Steps(int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

// NewMigrator returns a migrator for the given postgres:// connection string
func NewMigrator(connString string) (Migrator, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, toMigrateURL(connString))
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// MigrateUp applies all pending migrations
func MigrateUp(connString string) error {
	return run(connString, Migrator.Up)
}

// MigrateDown rolls back all migrations
func MigrateDown(connString string) error {
	return run(connString, Migrator.Down)
}

func run(connString string, step func(Migrator) error) error {
	m, err := NewMigrator(connString)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	if err := IgnoreNoChange(step(m)); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// IgnoreNoChange returns nil for the error migrate reports when nothing was applied
func IgnoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// IsNilVersion reports whether err means no migration was ever applied
func IsNilVersion(err error) bool {
	return errors.Is(err, migrate.ErrNilVersion)
}

// toMigrateURL rewrites postgres URLs to the scheme of the pgx v5 migrate driver
func toMigrateURL(connString string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if rest, ok := strings.CutPrefix(connString, prefix); ok {
			return "pgx5://" + rest
		}
	}
	return connString
}
