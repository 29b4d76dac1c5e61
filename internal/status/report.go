package status

import "time"

// InfectionStatus summarizes what the device knows about its user
type InfectionStatus string

const (
	// InfectionHealthy means no exposure and no report
	InfectionHealthy InfectionStatus = "HEALTHY"

	// InfectionExposed means at least one live exposure day exists
	InfectionExposed InfectionStatus = "EXPOSED"

	// InfectionInfected means the user reported an infection
	InfectionInfected InfectionStatus = "INFECTED"
)

// ErrorCondition is a failure surfaced to the user because it outlived its grace period
type ErrorCondition struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message,omitempty"`
	Since   time.Time `json:"since"`
}

// TracingStatus is the snapshot returned by the status query
type TracingStatus struct {
	TracingEnabled  bool             `json:"tracingEnabled"`
	LastSyncAt      *time.Time       `json:"lastSyncAt,omitempty"`
	Watermark       Watermark        `json:"watermark"`
	InfectionStatus InfectionStatus  `json:"infectionStatus"`
	ExposureDays    []ExposureDay    `json:"exposureDays"`
	Errors          []ErrorCondition `json:"errors"`

	// NotifyError is set once an error condition has also outlived the notification grace period
	NotifyError bool `json:"notifyError"`
}
