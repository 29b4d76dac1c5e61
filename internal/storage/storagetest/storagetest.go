// Package storagetest provides a conformance suite every storage.Backend must pass
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) storage.Backend

var base = time.Date(2020, 6, 1, 8, 0, 0, 0, time.UTC)

// Run executes the conformance suite against backends produced by newBackend
func Run(t *testing.T, newBackend Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, b storage.Backend)
	}{
		{"empty state on first load", testEmptyState},
		{"update state persists", testUpdateState},
		{"update state discarded when unchanged", testUpdateStateDiscarded},
		{"loaded state is a copy", testLoadedStateIsCopy},
		{"concurrent state updates are serialized", testConcurrentUpdates},
		{"exposure days replace", testExposureDays},
		{"history append list and delete", testHistory},
		{"clear removes everything", testClear},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			defer func() { _ = b.Close() }()
			tt.fn(t, b)
		})
	}
}

func testEmptyState(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	state, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, state.TracingEnabled)
	assert.True(t, state.Watermark.IsZero())
	assert.Empty(t, state.MatchInvocations)
	assert.Nil(t, state.LastSyncAt)

	days, err := b.ListExposureDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)

	history, err := b.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func testUpdateState(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	lastSync := base.Add(time.Hour)

	changed, err := b.UpdateState(ctx, func(s *status.SyncState) bool {
		s.TracingEnabled = true
		s.Watermark = status.Watermark{PublishedUntil: base}
		s.ConsumedDays = map[daybucket.DayID]time.Time{18414: base}
		s.MatchInvocations = []time.Time{base, base.Add(time.Minute)}
		s.LastSyncAt = &lastSync
		s.Errors = status.ErrorState{
			LastSuccessAt:       base,
			FirstErrorAt:        base.Add(time.Minute),
			LastErrorAt:         base.Add(2 * time.Minute),
			ConsecutiveFailures: 2,
			LastErrorKind:       status.ErrorKindNetwork,
			LastErrorMessage:    "connection refused",
		}
		s.InfectedReported = true
		s.InfectedResettable = true
		return true
	})
	require.NoError(t, err)
	assert.True(t, changed)

	state, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.True(t, state.TracingEnabled)
	assert.True(t, state.Watermark.PublishedUntil.Equal(base))
	require.Contains(t, state.ConsumedDays, daybucket.DayID(18414))
	assert.True(t, state.ConsumedDays[18414].Equal(base))
	require.Len(t, state.MatchInvocations, 2)
	assert.True(t, state.MatchInvocations[1].Equal(base.Add(time.Minute)))
	require.NotNil(t, state.LastSyncAt)
	assert.True(t, state.LastSyncAt.Equal(lastSync))
	assert.Equal(t, 2, state.Errors.ConsecutiveFailures)
	assert.Equal(t, status.ErrorKindNetwork, state.Errors.LastErrorKind)
	assert.Equal(t, "connection refused", state.Errors.LastErrorMessage)
	assert.True(t, state.Errors.LastErrorAt.Equal(base.Add(2*time.Minute)))
	assert.True(t, state.InfectedReported)
	assert.True(t, state.InfectedResettable)
}

func testUpdateStateDiscarded(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	changed, err := b.UpdateState(ctx, func(s *status.SyncState) bool {
		s.TracingEnabled = true
		return false
	})
	require.NoError(t, err)
	assert.False(t, changed)

	state, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, state.TracingEnabled)
}

func testLoadedStateIsCopy(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	_, err := b.UpdateState(ctx, func(s *status.SyncState) bool {
		s.MatchInvocations = []time.Time{base}
		return true
	})
	require.NoError(t, err)

	state, err := b.LoadState(ctx)
	require.NoError(t, err)
	state.MatchInvocations = append(state.MatchInvocations, base, base)
	state.TracingEnabled = true

	again, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.Len(t, again.MatchInvocations, 1)
	assert.False(t, again.TracingEnabled)
}

func testConcurrentUpdates(t *testing.T, b storage.Backend) {
	ctx := context.Background()
	const workers = 16

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.UpdateState(ctx, func(s *status.SyncState) bool {
				s.MatchInvocations = append(s.MatchInvocations, base.Add(time.Duration(i)*time.Second))
				return true
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.Len(t, state.MatchInvocations, workers)
}

func testExposureDays(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	first := []status.ExposureDay{
		{Day: 18410, ReportedAt: base, DurationSignal: 20},
		{Day: 18412, ReportedAt: base, DurationSignal: 15.5},
	}
	require.NoError(t, b.UpdateExposureDays(ctx, func(days []status.ExposureDay) ([]status.ExposureDay, bool) {
		assert.Empty(t, days)
		return first, true
	}))

	days, err := b.ListExposureDays(ctx)
	require.NoError(t, err)
	storage.SortExposureDays(days)
	require.Len(t, days, 2)
	assert.Equal(t, daybucket.DayID(18410), days[0].Day)
	assert.InDelta(t, 15.5, days[1].DurationSignal, 1e-9)
	assert.True(t, days[1].ReportedAt.Equal(base))

	// unchanged update leaves data alone
	require.NoError(t, b.UpdateExposureDays(ctx, func(days []status.ExposureDay) ([]status.ExposureDay, bool) {
		return nil, false
	}))
	days, err = b.ListExposureDays(ctx)
	require.NoError(t, err)
	assert.Len(t, days, 2)

	// replacement drops 18410, updates 18412 and adds 18413
	later := base.Add(24 * time.Hour)
	require.NoError(t, b.UpdateExposureDays(ctx, func(days []status.ExposureDay) ([]status.ExposureDay, bool) {
		assert.Len(t, days, 2)
		return []status.ExposureDay{
			{Day: 18412, ReportedAt: later, DurationSignal: 30},
			{Day: 18413, ReportedAt: later, DurationSignal: 16},
		}, true
	}))
	days, err = b.ListExposureDays(ctx)
	require.NoError(t, err)
	storage.SortExposureDays(days)
	require.Len(t, days, 2)
	assert.Equal(t, daybucket.DayID(18412), days[0].Day)
	assert.True(t, days[0].ReportedAt.Equal(later))
	assert.InDelta(t, 30, days[0].DurationSignal, 1e-9)
	assert.Equal(t, daybucket.DayID(18413), days[1].Day)
}

func testHistory(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	entries := []status.HistoryEntry{
		{ID: uuid.New(), Kind: status.HistorySync, Detail: "3 days", Success: true, At: base.Add(2 * time.Hour)},
		{ID: uuid.New(), Kind: status.HistoryOpenApp, Success: true, At: base},
		{ID: uuid.New(), Kind: status.HistoryWorkerStarted, Success: true, At: base.Add(time.Hour)},
	}
	for _, e := range entries {
		require.NoError(t, b.AppendHistory(ctx, e))
	}

	got, err := b.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, status.HistoryOpenApp, got[0].Kind)
	assert.Equal(t, status.HistoryWorkerStarted, got[1].Kind)
	assert.Equal(t, status.HistorySync, got[2].Kind)
	assert.Equal(t, entries[0].ID, got[2].ID)
	assert.Equal(t, "3 days", got[2].Detail)
	assert.True(t, got[2].Success)
	assert.True(t, got[2].At.Equal(base.Add(2*time.Hour)))

	removed, err := b.DeleteHistoryBefore(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	got, err = b.ListHistory(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, status.HistorySync, got[0].Kind)
}

func testClear(t *testing.T, b storage.Backend) {
	ctx := context.Background()

	_, err := b.UpdateState(ctx, func(s *status.SyncState) bool {
		s.TracingEnabled = true
		s.Watermark = status.Watermark{PublishedUntil: base}
		return true
	})
	require.NoError(t, err)
	require.NoError(t, b.UpdateExposureDays(ctx, func([]status.ExposureDay) ([]status.ExposureDay, bool) {
		return []status.ExposureDay{{Day: 1, ReportedAt: base, DurationSignal: 20}}, true
	}))
	require.NoError(t, b.AppendHistory(ctx, status.HistoryEntry{ID: uuid.New(), Kind: status.HistorySync, At: base}))

	require.NoError(t, b.Clear(ctx))

	state, err := b.LoadState(ctx)
	require.NoError(t, err)
	assert.False(t, state.TracingEnabled)
	assert.True(t, state.Watermark.IsZero())

	days, err := b.ListExposureDays(ctx)
	require.NoError(t, err)
	assert.Empty(t, days)

	history, err := b.ListHistory(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
}
