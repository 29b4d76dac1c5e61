package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/proxtrace/exposure-sync/internal/app"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
	"github.com/proxtrace/exposure-sync/internal/tracing"
)

// clientAction runs one operation on the tracing client and returns what to print.
// An untyped nil prints nothing.
type clientAction func(ctx context.Context, client *tracing.Client) (any, error)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now and print its result",
	Long: `Run one sync cycle now, regardless of whether tracing is enabled, and
print the result as JSON. A cycle stopped by a transient failure prints the
partial result and exits non-zero.`,
	RunE: withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		result, err := client.Sync(ctx)
		var syncErr *pkgsync.Error
		if errors.As(err, &syncErr) && result != nil {
			slog.Error("Sync cycle stopped", "day", syncErr.Day.String(), "kind", string(syncErr.Kind),
				"error", syncErr.Message)
			return result, err
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the tracing status",
	RunE: withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		st, err := client.Status(ctx)
		if err != nil {
			return nil, err
		}
		return st, nil
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the diagnostic history",
	RunE: withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		entries, err := client.History(ctx)
		if err != nil {
			return nil, err
		}
		return historyTable(entries), nil
	}),
}

func init() {
	historyCmd.Flags().String("format", formatJSON, "Output format (json or table)")
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Enable tracing so the scheduler runs cycles",
	RunE: withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		return nil, client.Start(ctx)
	}),
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Disable tracing",
	RunE: withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		return nil, client.Stop(ctx)
	}),
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all local state; tracing must be stopped",
	RunE: withClient(func(ctx context.Context, client *tracing.Client) (any, error) {
		return nil, client.ClearData(ctx)
	}),
}

// withClient builds the application without serving it, runs action and
// prints its result
func withClient(action clientAction) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		exposureApp, err := app.NewExposureSyncApp(ctx, app.WithConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to build application: %w", err)
		}
		defer func() {
			if closeErr := exposureApp.Close(context.WithoutCancel(ctx)); closeErr != nil {
				slog.Warn("Failed to close application", "error", closeErr)
			}
		}()

		out, actionErr := action(ctx, exposureApp.Client())
		if out != nil {
			if err := render(cmd, out); err != nil {
				return err
			}
		}
		return actionErr
	}
}
