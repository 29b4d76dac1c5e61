// Package errstate interprets the failure and success timestamps of sync
// attempts. Failures stay silent during a grace period after the last success
// so short outages never reach the user.
package errstate

import (
	"time"

	"github.com/proxtrace/exposure-sync/internal/status"
)

// RecordFailure returns state updated with a failure at now
func RecordFailure(state status.ErrorState, now time.Time, kind status.ErrorKind, message string) status.ErrorState {
	if state.ConsecutiveFailures == 0 || state.FirstErrorAt.IsZero() {
		state.FirstErrorAt = now
	}
	state.LastErrorAt = now
	state.ConsecutiveFailures++
	state.LastErrorKind = kind
	state.LastErrorMessage = message
	return state
}

// RecordSuccess returns state updated with a success at now; the failure streak ends
func RecordSuccess(_ status.ErrorState, now time.Time) status.ErrorState {
	return status.ErrorState{LastSuccessAt: now}
}

// HasFailure reports whether a failure streak is in progress
func HasFailure(state status.ErrorState) bool {
	return state.ConsecutiveFailures > 0
}

// reference is the point in time a failure streak is measured from
func reference(state status.ErrorState) time.Time {
	if !state.LastSuccessAt.IsZero() {
		return state.LastSuccessAt
	}
	return state.FirstErrorAt
}

// IsWithinGracePeriod reports whether a failure may still be hidden from the
// user at now. It is always true when no failure is recorded.
func IsWithinGracePeriod(state status.ErrorState, now time.Time, grace time.Duration) bool {
	if !HasFailure(state) {
		return true
	}
	return now.Sub(reference(state)) <= grace
}

// ShouldNotify reports whether the surfaced failure has also outlived the
// notification grace period
func ShouldNotify(state status.ErrorState, now time.Time, syncGrace, notifyGrace time.Duration) bool {
	if IsWithinGracePeriod(state, now, syncGrace) {
		return false
	}
	surfacedAt := reference(state).Add(syncGrace)
	return now.Sub(surfacedAt) >= notifyGrace
}

// Conditions returns the failures to surface at now
func Conditions(state status.ErrorState, now time.Time, grace time.Duration) []status.ErrorCondition {
	if IsWithinGracePeriod(state, now, grace) {
		return []status.ErrorCondition{}
	}
	return []status.ErrorCondition{{
		Kind:    state.LastErrorKind,
		Message: state.LastErrorMessage,
		Since:   state.FirstErrorAt,
	}}
}
