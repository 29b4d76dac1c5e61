package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/proxtrace/exposure-sync/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync scheduler and the status API",
	Long: `Run the background sync scheduler together with the HTTP status API.

Cycles run at the cadence configured by sync.syncsPerDay while tracing is
enabled. The API also allows requesting a cycle, starting and stopping
tracing, and reporting an infection.`,
	RunE: runServe,
}

const defaultGracefulTimeout = 30 * time.Second

func init() {
	serveCmd.Flags().String("address", "127.0.0.1:8080", "Address to listen on")

	if err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address")); err != nil {
		slog.Error("Failed to bind address flag", "error", err)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	exposureApp, err := app.NewExposureSyncApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(viper.GetString("address")),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- exposureApp.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if stopErr := exposureApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig.String())
	}

	return exposureApp.Stop(defaultGracefulTimeout)
}
