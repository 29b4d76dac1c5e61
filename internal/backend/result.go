// Package backend talks to the publishing backend: it fetches the daily
// diagnosis key batches and uploads this device's keys after an infection report.
package backend

import (
	"time"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/status"
)

// Kind classifies the outcome of a batch fetch
type Kind int

const (
	// KindContent means the backend served a batch for the day
	KindContent Kind = iota
	// KindNoContent means the backend has nothing published for the day
	KindNoContent
	// KindTransient means the fetch failed but may succeed later
	KindTransient
	// KindPermanent means the fetch failed and retrying will not help
	KindPermanent
)

// String returns the metric and log label of the kind
func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindNoContent:
		return "no_content"
	case KindTransient:
		return "transient"
	case KindPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// IsSuccess reports whether the backend answered usefully
func (k Kind) IsSuccess() bool {
	return k == KindContent || k == KindNoContent
}

// Result is the classified outcome of fetching one day's batch
type Result struct {
	Day  daybucket.DayID
	Kind Kind

	// Body is the raw batch; only set for KindContent
	Body []byte

	// PublishedUntil is the backend publication horizon; set for successful fetches
	PublishedUntil time.Time

	// ErrorKind and Err describe a failed fetch
	ErrorKind status.ErrorKind
	Err       error
}

func transient(day daybucket.DayID, kind status.ErrorKind, err error) Result {
	return Result{Day: day, Kind: KindTransient, ErrorKind: kind, Err: err}
}

func permanent(day daybucket.DayID, kind status.ErrorKind, err error) Result {
	return Result{Day: day, Kind: KindPermanent, ErrorKind: kind, Err: err}
}
