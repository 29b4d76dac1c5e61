package sync

import (
	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/status"
)

// Error describes the transient failure that stopped a sync cycle
type Error struct {
	Err     error
	Message string
	Kind    status.ErrorKind
	Day     daybucket.DayID
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}
