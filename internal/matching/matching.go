// Package matching defines the contract with the platform matching engine,
// which compares published diagnosis keys with the keys observed by this device.
package matching

import (
	"context"
	"errors"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
)

//go:generate mockgen -destination=mocks/mock_matching.go -package=mocks -source=matching.go Engine,KeyExporter

// ErrEngineUnavailable is returned when the engine cannot accept work right now.
// Callers treat it as a transient failure.
var ErrEngineUnavailable = errors.New("matching engine unavailable")

// Thresholds are the attenuation bucket boundaries in dB
type Thresholds struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
}

// Request asks the engine to match one day's batch
type Request struct {
	// Day is the calendar day the batch was published for
	Day daybucket.DayID

	// Batch is the raw batch body as served by the backend
	Batch []byte

	// Token identifies this invocation to the engine
	Token string

	// ValidFrom excludes keys whose rolling start is older
	ValidFrom daybucket.RollingInterval

	Thresholds Thresholds
}

// Evidence is the exposure summary the engine reports for a batch
type Evidence struct {
	// AttenuationDurations holds minutes spent below the low threshold,
	// between low and medium, and above medium
	AttenuationDurations [3]int `json:"attenuationDurations"`

	// DaysSinceLastExposure counts days from the exposure to today
	DaysSinceLastExposure int `json:"daysSinceLastExposure"`

	// MatchedKeyCount is the number of matched diagnosis keys
	MatchedKeyCount int `json:"matchedKeyCount"`
}

// Engine matches published batches against locally observed keys
type Engine interface {
	// ProvideDiagnosisKeys submits a batch and returns the resulting evidence.
	// An empty result means no match.
	ProvideDiagnosisKeys(ctx context.Context, req Request) ([]Evidence, error)
}

// TemporaryExposureKey is one of this device's own daily keys
type TemporaryExposureKey struct {
	// KeyData is the base64 encoded key
	KeyData string `json:"keyData"`

	RollingStartNumber    daybucket.RollingInterval `json:"rollingStartNumber"`
	RollingPeriod         int                       `json:"rollingPeriod"`
	TransmissionRiskLevel int                       `json:"transmissionRiskLevel"`

	// Fake marks padding keys that hide the real key count
	Fake int `json:"fake"`
}

// KeyExporter exposes this device's key history for report uploads
type KeyExporter interface {
	TemporaryExposureKeyHistory(ctx context.Context) ([]TemporaryExposureKey, error)
}
