// Package app provides application lifecycle management for the exposure sync engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/proxtrace/exposure-sync/internal/app/storage"
	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/tracing"
)

// ExposureSyncApp encapsulates all components needed to run the engine and its
// status API. It provides lifecycle management and graceful shutdown capabilities.
type ExposureSyncApp struct {
	config        *config.Config
	components    *AppComponents
	httpServer    *http.Server
	storage       storage.Factory
	ownsTelemetry bool

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the background coordinator and the HTTP server.
// This method blocks until the HTTP server stops or encounters an error.
func (app *ExposureSyncApp) Start() error {
	go func() {
		if err := app.components.SyncCoordinator.Start(app.ctx); err != nil {
			slog.Error("Sync coordinator failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout.
// It stops the coordinator, shuts down the HTTP server and closes storage.
func (app *ExposureSyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	if err := app.components.SyncCoordinator.Stop(); err != nil {
		slog.Error("Failed to stop sync coordinator", "error", err)
	}

	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	slog.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// Close releases storage and flushes telemetry without touching the HTTP server.
// Commands that never call Start use it instead of Stop.
func (app *ExposureSyncApp) Close(ctx context.Context) error {
	var errs []error

	if app.components.Backend != nil {
		if err := app.components.Backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		}
	}
	if app.storage != nil {
		app.storage.Cleanup()
	}
	if app.ownsTelemetry && app.components.Telemetry != nil {
		if err := app.components.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown telemetry: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Client returns the tracing client
func (app *ExposureSyncApp) Client() *tracing.Client {
	return app.components.Client
}

// GetConfig returns the application configuration
func (app *ExposureSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *ExposureSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
