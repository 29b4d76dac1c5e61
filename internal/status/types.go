// Package status defines the persisted state of the exposure sync engine and
// the status snapshot reported to callers.
package status

import (
	"time"

	"github.com/google/uuid"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
)

// ErrorKind classifies a recorded sync failure
type ErrorKind string

const (
	// ErrorKindNetwork means the backend could not be reached
	ErrorKindNetwork ErrorKind = "network"

	// ErrorKindServer means the backend answered with an unusable status code
	ErrorKindServer ErrorKind = "server"

	// ErrorKindTiming means the device clock disagrees with the backend clock
	ErrorKindTiming ErrorKind = "timing"

	// ErrorKindSignature means a batch signature did not verify
	ErrorKindSignature ErrorKind = "signature"

	// ErrorKindMalformed means a response was missing required fields
	ErrorKindMalformed ErrorKind = "malformed"

	// ErrorKindEngine means the matching engine refused or failed a request
	ErrorKindEngine ErrorKind = "engine"

	// ErrorKindStorage means local state could not be read or written
	ErrorKindStorage ErrorKind = "storage"
)

// Watermark is the highest backend publication horizon fully consumed.
// The zero value means nothing was consumed yet.
type Watermark struct {
	// PublishedUntil is the backend publication horizon
	PublishedUntil time.Time `json:"publishedUntil"`
}

// IsZero reports whether nothing was consumed yet
func (w Watermark) IsZero() bool {
	return w.PublishedUntil.IsZero()
}

// ErrorState tracks failure and success timestamps of sync attempts
type ErrorState struct {
	// LastSuccessAt is the time of the last successful backend fetch
	LastSuccessAt time.Time `json:"lastSuccessAt,omitzero"`

	// FirstErrorAt is the start of the current failure streak
	FirstErrorAt time.Time `json:"firstErrorAt,omitzero"`

	// LastErrorAt is the time of the most recent failure
	LastErrorAt time.Time `json:"lastErrorAt,omitzero"`

	// ConsecutiveFailures counts failures since LastSuccessAt
	ConsecutiveFailures int `json:"consecutiveFailures,omitempty"`

	// LastErrorKind classifies the most recent failure
	LastErrorKind ErrorKind `json:"lastErrorKind,omitempty"`

	// LastErrorMessage describes the most recent failure
	LastErrorMessage string `json:"lastErrorMessage,omitempty"`
}

// SyncState is the single persisted record shared by the sync components
type SyncState struct {
	// TracingEnabled is set while the scheduler should run sync cycles
	TracingEnabled bool `json:"tracingEnabled"`

	// Watermark is the last fully consumed publication horizon
	Watermark Watermark `json:"watermark"`

	// ConsumedDays maps each recently consumed day to the horizon it was consumed at
	ConsumedDays map[daybucket.DayID]time.Time `json:"consumedDays,omitempty"`

	// MatchInvocations holds the times of matching engine calls in the trailing 24 hours
	MatchInvocations []time.Time `json:"matchInvocations,omitempty"`

	// LastSyncAt is the completion time of the last cycle without a transient failure
	LastSyncAt *time.Time `json:"lastSyncAt,omitempty"`

	// Errors tracks fetch failures for grace period evaluation
	Errors ErrorState `json:"errors"`

	// InfectedReported is set once the user's keys were uploaded
	InfectedReported bool `json:"infectedReported,omitempty"`

	// InfectedResettable allows ResetInfectionStatus to clear InfectedReported
	InfectedResettable bool `json:"infectedResettable,omitempty"`
}

// Clone returns a deep copy of the state
func (s *SyncState) Clone() *SyncState {
	if s == nil {
		return &SyncState{}
	}
	out := *s
	if s.ConsumedDays != nil {
		out.ConsumedDays = make(map[daybucket.DayID]time.Time, len(s.ConsumedDays))
		for k, v := range s.ConsumedDays {
			out.ConsumedDays[k] = v
		}
	}
	if s.MatchInvocations != nil {
		out.MatchInvocations = append([]time.Time(nil), s.MatchInvocations...)
	}
	if s.LastSyncAt != nil {
		t := *s.LastSyncAt
		out.LastSyncAt = &t
	}
	return &out
}

// ExposureDay is a calendar day on which a qualifying exposure occurred
type ExposureDay struct {
	// Day is the calendar day of the exposure
	Day daybucket.DayID `json:"day"`

	// ReportedAt is when the exposure was recorded on this device
	ReportedAt time.Time `json:"reportedAt"`

	// DurationSignal is the weighted exposure duration in minutes
	DurationSignal float64 `json:"durationSignal"`
}

// HistoryKind names the event recorded by a HistoryEntry
type HistoryKind string

const (
	// HistoryOpenApp records that a client opened the app
	HistoryOpenApp HistoryKind = "OPEN_APP"

	// HistoryWorkerStarted records that the background scheduler started
	HistoryWorkerStarted HistoryKind = "WORKER_STARTED"

	// HistorySync records the outcome of a sync cycle
	HistorySync HistoryKind = "SYNC"

	// HistoryInfectedReport records the outcome of a key upload
	HistoryInfectedReport HistoryKind = "INFECTED_REPORT"
)

// HistoryEntry is a diagnostic event shown to developers and testers
type HistoryEntry struct {
	ID      uuid.UUID   `json:"id"`
	Kind    HistoryKind `json:"kind"`
	Detail  string      `json:"detail,omitempty"`
	Success bool        `json:"success"`
	At      time.Time   `json:"at"`
}
