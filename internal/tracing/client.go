// Package tracing is the entry point for applications embedding the exposure
// sync engine. A Client is constructed explicitly with its collaborators and
// exposes tracing lifecycle, sync, status, infection reporting and history.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proxtrace/exposure-sync/internal/backend"
	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/errstate"
	"github.com/proxtrace/exposure-sync/internal/exposure"
	"github.com/proxtrace/exposure-sync/internal/history"
	"github.com/proxtrace/exposure-sync/internal/matching"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
	"github.com/proxtrace/exposure-sync/internal/sync/coordinator"
)

var (
	// ErrNotResettable is returned when the infection status may not be reset
	ErrNotResettable = errors.New("infection status can only be reset after a resettable report")

	// ErrTracingActive is returned when data is cleared while tracing is enabled
	ErrTracingActive = errors.New("tracing must be stopped to clear local data")
)

// Dependencies are the collaborators of a Client
type Dependencies struct {
	Backend     storage.Backend
	Coordinator coordinator.Coordinator
	Exposures   *exposure.Store
	HistoryLog  *history.Log
	Keys        matching.KeyExporter
	Reporter    backend.ExposeeReporter
	Calendar    daybucket.Calendar
}

// Client is the application facing API of the engine
type Client struct {
	Dependencies
	cfg *config.Config
	now func() time.Time
}

// Option configures a Client
type Option func(*Client)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a Client; cfg must have defaults applied
func New(deps Dependencies, cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		Dependencies: deps,
		cfg:          cfg,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start enables tracing; the scheduler picks it up on its next tick
func (c *Client) Start(ctx context.Context) error {
	return c.setTracingEnabled(ctx, true)
}

// Stop disables tracing
func (c *Client) Stop(ctx context.Context) error {
	return c.setTracingEnabled(ctx, false)
}

func (c *Client) setTracingEnabled(ctx context.Context, enabled bool) error {
	changed, err := c.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		if s.TracingEnabled == enabled {
			return false
		}
		s.TracingEnabled = enabled
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to update tracing state: %w", err)
	}
	if changed {
		slog.Info("Tracing state changed", "enabled", enabled)
	}
	return nil
}

// IsTracingEnabled reports whether tracing is enabled
func (c *Client) IsTracingEnabled(ctx context.Context) (bool, error) {
	state, err := c.Backend.LoadState(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load tracing state: %w", err)
	}
	return state.TracingEnabled, nil
}

// Sync runs a cycle now, or waits for the one already running
func (c *Client) Sync(ctx context.Context) (*pkgsync.Result, error) {
	return c.Coordinator.RequestSync(ctx).Result()
}

// Status returns the current tracing status
func (c *Client) Status(ctx context.Context) (*status.TracingStatus, error) {
	now := c.now()

	state, err := c.Backend.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tracing state: %w", err)
	}
	days, err := c.Exposures.List(ctx, now)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []status.ExposureDay{}
	}

	syncGrace := c.cfg.Errors.GetSyncGracePeriod()
	return &status.TracingStatus{
		TracingEnabled:  state.TracingEnabled,
		LastSyncAt:      state.LastSyncAt,
		Watermark:       state.Watermark,
		InfectionStatus: infectionStatus(state, days),
		ExposureDays:    days,
		Errors:          errstate.Conditions(state.Errors, now, syncGrace),
		NotifyError: errstate.ShouldNotify(state.Errors, now, syncGrace,
			c.cfg.Errors.GetNotificationGracePeriod()),
	}, nil
}

func infectionStatus(state *status.SyncState, days []status.ExposureDay) status.InfectionStatus {
	switch {
	case state.InfectedReported:
		return status.InfectionInfected
	case len(days) > 0:
		return status.InfectionExposed
	default:
		return status.InfectionHealthy
	}
}

// ResetExposureDays removes every recorded exposure day
func (c *Client) ResetExposureDays(ctx context.Context) error {
	if err := c.Exposures.Reset(ctx); err != nil {
		return err
	}
	slog.Info("Exposure days reset")
	return nil
}

// ResetInfectionStatus clears a resettable infection report
func (c *Client) ResetInfectionStatus(ctx context.Context) error {
	var resettable bool
	_, err := c.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		resettable = s.InfectedResettable
		if !resettable {
			return false
		}
		s.InfectedReported = false
		s.InfectedResettable = false
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to reset infection status: %w", err)
	}
	if !resettable {
		return ErrNotResettable
	}
	slog.Info("Infection status reset")
	return nil
}

// ClearData removes all local data. Tracing must be stopped first.
func (c *Client) ClearData(ctx context.Context) error {
	enabled, err := c.IsTracingEnabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return ErrTracingActive
	}
	if err := c.Backend.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear data: %w", err)
	}
	slog.Info("Local data cleared")
	return nil
}

// AddClientOpened records that the app was opened
func (c *Client) AddClientOpened(ctx context.Context) error {
	return c.HistoryLog.Add(ctx, status.HistoryOpenApp, "", true)
}

// History returns the diagnostic history, oldest first
func (c *Client) History(ctx context.Context) ([]status.HistoryEntry, error) {
	return c.HistoryLog.List(ctx)
}
