// Package sync implements the sync cycle of the exposure notification engine.
//
// A cycle walks the calendar days between the last consumed publication
// horizon and today, oldest first. For every day it fetches the published
// batch, hands content to the matching engine within the trailing 24 hour
// matching budget, records the resulting exposure days and advances the
// watermark.
//
// # Failure handling
//
//   - Transient failures (network, 5xx, engine unavailable, storage) stop the
//     cycle; the next cycle resumes at the same day.
//   - Permanent failures (4xx, malformed responses, bad signatures) skip the
//     day; later days still advance the watermark.
//   - An exhausted budget defers the day. Later days are still fetched, but the
//     watermark stays before the deferred day so the next cycle retries it.
//
// Every failure is recorded in the persisted error state; whether it is shown
// to the user is decided by the errstate grace periods.
//
// # Coordinator Package
//
// The sync/coordinator subpackage runs cycles periodically while tracing is
// enabled and coalesces explicit sync requests.
package sync
