package coordinator

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/proxtrace/exposure-sync/internal/config"
)

const (
	// defaultInterval is used when no sync configuration is available
	defaultInterval = 24 * time.Hour

	// jitterDivisor bounds the jitter to ±1/jitterDivisor of the interval
	jitterDivisor = 20

	// initialRetryDelay is the first delay after a transient failure
	initialRetryDelay = time.Minute
)

// getSyncInterval derives the scheduler period from the sync configuration
func getSyncInterval(cfg *config.SyncConfig) time.Duration {
	if cfg == nil {
		return defaultInterval
	}
	return cfg.SyncInterval()
}

// withJitter offsets interval by a random amount so devices sharing a
// schedule do not hit the backend at the same moment
func withJitter(interval time.Duration) time.Duration {
	spread := interval / jitterDivisor
	if spread <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
	offset := time.Duration(rand.Int64N(int64(2*spread))) - spread
	return interval + offset
}

// newRetryBackOff returns the backoff used between failed cycles, capped at interval
func newRetryBackOff(interval time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min(initialRetryDelay, interval)
	b.MaxInterval = interval
	b.Reset()
	return b
}
