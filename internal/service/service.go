// Package service defines the operations the status API serves
package service

import (
	"context"
	"time"

	"github.com/proxtrace/exposure-sync/internal/status"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
	"github.com/proxtrace/exposure-sync/internal/tracing"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go TracingService

// TracingService is implemented by *tracing.Client
type TracingService interface {
	// Status returns the current tracing status
	Status(ctx context.Context) (*status.TracingStatus, error)

	// Sync runs a cycle now, or joins the running one
	Sync(ctx context.Context) (*pkgsync.Result, error)

	// Start enables tracing
	Start(ctx context.Context) error

	// Stop disables tracing
	Stop(ctx context.Context) error

	// ResetExposureDays removes every recorded exposure day
	ResetExposureDays(ctx context.Context) error

	// ResetInfectionStatus clears a resettable infection report
	ResetInfectionStatus(ctx context.Context) error

	// ReportInfected uploads the keys rolled since onset
	ReportInfected(ctx context.Context, onset time.Time, authorization string) error

	// SendFakeInfectedRequest uploads a request of fake keys only
	SendFakeInfectedRequest(ctx context.Context, authorization string) error

	// ClearData removes all local data while tracing is stopped
	ClearData(ctx context.Context) error

	// AddClientOpened records that a client opened the app
	AddClientOpened(ctx context.Context) error

	// History returns the diagnostic history
	History(ctx context.Context) ([]status.HistoryEntry, error)

	// Settings returns the effective engine parameters
	Settings() tracing.Settings
}

var _ TracingService = (*tracing.Client)(nil)
