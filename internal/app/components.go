package app

import (
	"github.com/proxtrace/exposure-sync/internal/storage"
	"github.com/proxtrace/exposure-sync/internal/sync/coordinator"
	"github.com/proxtrace/exposure-sync/internal/telemetry"
	"github.com/proxtrace/exposure-sync/internal/tracing"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// SyncCoordinator runs cycles in the background and on request
	SyncCoordinator coordinator.Coordinator

	// Client is the tracing facade served by the status API
	Client *tracing.Client

	// Backend holds all persisted state
	Backend storage.Backend

	// Telemetry owns the OpenTelemetry providers (optional)
	Telemetry *telemetry.Telemetry
}
