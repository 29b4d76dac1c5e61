package sync

import (
	"time"

	"github.com/proxtrace/exposure-sync/internal/config"
)

// BudgetWindow is the trailing window matching calls are counted in
const BudgetWindow = 24 * time.Hour

// Budget caps matching engine calls within BudgetWindow
type Budget struct {
	limit int
}

// NewBudget creates a Budget, clamping limit to the platform bounds
func NewBudget(limit int) Budget {
	return Budget{limit: min(max(limit, config.MinMatchingCallsPerDay), config.MaxMatchingCallsPerDay)}
}

// Limit returns the number of calls allowed per window
func (b Budget) Limit() int {
	return b.limit
}

// Prune drops invocations outside the window ending at now
func (b Budget) Prune(invocations []time.Time, now time.Time) []time.Time {
	kept := invocations[:0:0]
	for _, at := range invocations {
		if now.Sub(at) < BudgetWindow {
			kept = append(kept, at)
		}
	}
	return kept
}

// Remaining returns how many calls are still allowed at now
func (b Budget) Remaining(invocations []time.Time, now time.Time) int {
	return max(b.limit-len(b.Prune(invocations, now)), 0)
}

// Reserve logs a call at now when one is left and reports whether it did
func (b Budget) Reserve(invocations []time.Time, now time.Time) ([]time.Time, bool) {
	kept := b.Prune(invocations, now)
	if len(kept) >= b.limit {
		return kept, false
	}
	return append(kept, now), true
}
