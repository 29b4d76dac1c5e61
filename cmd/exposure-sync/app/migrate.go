package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/proxtrace/exposure-sync/database"
	"github.com/proxtrace/exposure-sync/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Database migration tool",
	Long: `Database migration tool for the database storage type. Use with 'up' or
'down' subcommands.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Usage()
	},
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending database migrations",
	Long: `Apply pending database migrations to bring the schema up to date.
Connection parameters are read from storage.database in the config file.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(cmd, "up", func(m database.Migrator, steps int) error {
			if steps > 0 {
				return m.Steps(steps)
			}
			return m.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back database migrations",
	Long: `Roll back database migrations. Without --num-steps every migration is
rolled back and all persisted state is lost.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMigrate(cmd, "down", func(m database.Migrator, steps int) error {
			if steps > 0 {
				return m.Steps(-steps)
			}
			return m.Down()
		})
	},
}

func init() {
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	migrateCmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 = all)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

func runMigrate(cmd *cobra.Command, direction string, step func(database.Migrator, int) error) error {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	steps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return fmt.Errorf("failed to get num-steps flag: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Type != config.StorageTypeDatabase || cfg.Storage.Database == nil {
		return fmt.Errorf("migrations require storage.type %q with storage.database set", config.StorageTypeDatabase)
	}
	db := cfg.Storage.Database

	connString, err := db.GetConnectionString()
	if err != nil {
		return fmt.Errorf("failed to get connection string: %w", err)
	}

	if !yes {
		prompt := fmt.Sprintf("Migrate %s database %s@%s:%d/%s? (yes/no): ",
			direction, db.User, db.Host, db.Port, db.Database)
		ok, err := confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt)
		if err != nil {
			return err
		}
		if !ok {
			slog.Info("Migration cancelled by user")
			return nil
		}
	}

	m, err := database.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	slog.Info("Running database migrations", "direction", direction, "steps", steps)
	if err := database.IgnoreNoChange(step(m, int(steps))); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	switch {
	case database.IsNilVersion(err):
		slog.Info("Migrations complete, no schema version applied")
	case err != nil:
		slog.Warn("Unable to get migration version", "error", err)
	case dirty:
		slog.Warn("Database is in a dirty state", "version", version)
	default:
		slog.Info("Migrations complete", "version", version)
	}
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) (bool, error) {
	if _, err := fmt.Fprint(out, prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "yes" || answer == "y", nil
}
