package coordinator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proxtrace/exposure-sync/internal/status"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
)

const syncKey = "sync"

// SyncRequest tracks one requested sync cycle
type SyncRequest struct {
	done   chan struct{}
	result *pkgsync.Result
	err    error
}

// Done is closed once the cycle finished or the request context ended
func (r *SyncRequest) Done() <-chan struct{} {
	return r.done
}

// Result waits for the cycle and returns its outcome. A cycle that stopped on
// a transient failure returns the partial result and a *sync.Error.
func (r *SyncRequest) Result() (*pkgsync.Result, error) {
	<-r.done
	return r.result, r.err
}

// RequestSync runs a cycle, or joins the one in flight. The cycle is not
// bound to ctx: it keeps the values of the request that started it but only
// Stop cancels it. When ctx ends the request stops waiting with ctx.Err().
func (c *defaultCoordinator) RequestSync(ctx context.Context) *SyncRequest {
	req := &SyncRequest{done: make(chan struct{})}
	ch := c.group.DoChan(syncKey, func() (any, error) {
		cycleCtx, release := c.cycleContext(ctx)
		defer release()
		return c.performSync(cycleCtx)
	})

	go func() {
		defer close(req.done)
		select {
		case res := <-ch:
			req.result, _ = res.Val.(*pkgsync.Result)
			req.err = res.Err
			if res.Shared {
				slog.Debug("Sync request joined a running cycle")
			}
		case <-ctx.Done():
			req.err = ctx.Err()
		}
	}()
	return req
}

// cycleContext detaches ctx from its cancellation and ties it to the coordinator lifetime
func (c *defaultCoordinator) cycleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	cycleCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(c.lifetime(), cancel)
	return cycleCtx, func() {
		stop()
		cancel()
	}
}

// performSync executes a cycle and records its outcome in the history
func (c *defaultCoordinator) performSync(ctx context.Context) (*pkgsync.Result, error) {
	result, syncErr := c.manager.PerformSync(ctx, c.now())

	switch {
	case syncErr != nil:
		slog.Error("Sync failed", "kind", syncErr.Kind, "day", syncErr.Day.String(), "error", syncErr.Message)
		c.addHistory(ctx, status.HistorySync, syncErr.Message, false)
		return result, syncErr
	case result != nil && result.Cancelled:
		c.addHistory(ctx, status.HistorySync, "cancelled", false)
	case result != nil:
		c.addHistory(ctx, status.HistorySync, fmt.Sprintf(
			"days=%d calls=%d deferred=%d skipped=%d exposures=%d",
			result.DaysFetched, result.MatchingCalls, result.Deferred, result.Skipped, result.ExposuresRecorded,
		), true)
	}
	return result, nil
}

func (c *defaultCoordinator) addHistory(ctx context.Context, kind status.HistoryKind, detail string, success bool) {
	if c.history == nil {
		return
	}
	if err := c.history.Add(context.WithoutCancel(ctx), kind, detail, success); err != nil {
		slog.Warn("Failed to record history entry", "kind", kind, "error", err)
	}
}
