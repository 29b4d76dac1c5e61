package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/history"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
)

// Coordinator runs sync cycles in the background and on request
type Coordinator interface {
	// Start runs the periodic loop. It blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop ends the periodic loop and waits for it to return
	Stop() error

	// RequestSync runs a cycle now, or joins the cycle already running
	RequestSync(ctx context.Context) *SyncRequest
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager pkgsync.Manager
	backend storage.Backend
	history *history.Log

	interval time.Duration
	now      func() time.Time

	group singleflight.Group
	retry *backoff.ExponentialBackOff

	// Lifecycle management
	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}

	// cycles run under lifeCtx, which only Stop or the end of Start cancels
	lifeCtx    context.Context
	lifeCancel context.CancelFunc
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithInterval overrides the interval derived from the configuration
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.interval = interval
	}
}

// WithClock overrides the time handed to the manager
func WithClock(now func() time.Time) Option {
	return func(c *defaultCoordinator) {
		c.now = now
	}
}

// New creates a new coordinator with injected dependencies. historyLog may be nil.
func New(
	manager pkgsync.Manager,
	backend storage.Backend,
	historyLog *history.Log,
	cfg *config.Config,
	opts ...Option,
) Coordinator {
	var syncCfg *config.SyncConfig
	if cfg != nil {
		syncCfg = &cfg.Sync
	}

	c := &defaultCoordinator{
		manager:  manager,
		backend:  backend,
		history:  historyLog,
		interval: getSyncInterval(syncCfg),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.retry = newRetryBackOff(c.interval)

	return c
}

// Start begins the periodic sync loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		slog.Warn("Sync coordinator already running")
		return nil
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	defer func() {
		cancel()
		c.endLifetime()
		c.mu.Lock()
		c.cancelFunc = nil
		c.done = nil
		c.mu.Unlock()
		close(done)
		slog.Info("Background sync coordinator shutting down")
	}()

	slog.Info("Starting background sync coordinator", "interval", c.interval)
	c.addHistory(coordCtx, status.HistoryWorkerStarted, "", true)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			failed := c.tick(coordCtx)
			delay := c.nextDelay(failed)
			slog.Debug("Scheduled next sync", "delay", delay, "after_failure", failed)
			timer.Reset(delay)
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		// Wait for coordinator to finish
		<-done
	}
	c.endLifetime()
	return nil
}

// lifetime returns the context cycles run under, creating it when needed
func (c *defaultCoordinator) lifetime() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifeCtx == nil {
		c.lifeCtx, c.lifeCancel = context.WithCancel(context.Background())
	}
	return c.lifeCtx
}

// endLifetime cancels the running cycle, if any
func (c *defaultCoordinator) endLifetime() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lifeCancel != nil {
		c.lifeCancel()
		c.lifeCtx, c.lifeCancel = nil, nil
	}
}

// tick runs a cycle when tracing is enabled and reports whether it should be
// retried early: after a transient failure or a cycle cancelled before finishing
func (c *defaultCoordinator) tick(ctx context.Context) bool {
	state, err := c.backend.LoadState(ctx)
	if err != nil {
		slog.Error("Failed to load sync state", "error", err)
		return true
	}
	if !state.TracingEnabled {
		slog.Debug("Tracing disabled, skipping scheduled sync")
		return false
	}

	result, err := c.RequestSync(ctx).Result()
	if ctx.Err() != nil {
		return false
	}
	return err != nil || (result != nil && result.Cancelled)
}

// nextDelay returns the wait before the next tick
func (c *defaultCoordinator) nextDelay(failed bool) time.Duration {
	if !failed {
		c.retry.Reset()
		return withJitter(c.interval)
	}
	return min(c.retry.NextBackOff(), c.interval)
}
