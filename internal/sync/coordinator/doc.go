// Package coordinator schedules sync cycles in the background.
//
// It sits on top of sync.Manager and handles:
//
//   - Periodic cycles every 24h/syncsPerDay, with jitter, while tracing is enabled
//   - Exponential backoff after a transient failure, capped at the regular interval
//   - Explicit sync requests, coalesced so at most one cycle runs at a time
//   - A history entry per cycle and per scheduler start
//   - Graceful shutdown
//
// # Usage Example
//
//	coord := coordinator.New(manager, backend, historyLog, cfg)
//
//	go coord.Start(ctx)
//
//	req := coord.RequestSync(ctx)
//	<-req.Done()
//	result, err := req.Result()
//
//	coord.Stop()
//
// Explicit requests run whether or not tracing is enabled; the periodic loop
// only runs cycles while it is.
package coordinator
