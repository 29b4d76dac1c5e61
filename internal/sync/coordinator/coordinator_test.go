package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/history"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
	"github.com/proxtrace/exposure-sync/internal/storage/memory"
	"github.com/proxtrace/exposure-sync/internal/sync"
	syncmocks "github.com/proxtrace/exposure-sync/internal/sync/mocks"
)

var fixedNow = time.Date(2020, 6, 10, 12, 0, 0, 0, time.UTC)

func newTestCoordinator(t *testing.T, manager sync.Manager, opts ...Option) (Coordinator, storage.Backend, *history.Log) {
	t.Helper()
	backend := memory.New()
	historyLog := history.New(backend, history.WithDevHistory(true))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(manager, backend, historyLog, config.Default(), opts...), backend, historyLog
}

func enableTracing(t *testing.T, backend storage.Backend) {
	t.Helper()
	_, err := backend.UpdateState(context.Background(), func(s *status.SyncState) bool {
		s.TracingEnabled = true
		return true
	})
	require.NoError(t, err)
}

func TestGetSyncInterval(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		cfg      *config.SyncConfig
		expected time.Duration
	}{
		{name: "nil config returns default", cfg: nil, expected: 24 * time.Hour},
		{name: "once a day", cfg: &config.SyncConfig{SyncsPerDay: 1}, expected: 24 * time.Hour},
		{name: "four times a day", cfg: &config.SyncConfig{SyncsPerDay: 4}, expected: 6 * time.Hour},
		{name: "unset is treated as once a day", cfg: &config.SyncConfig{}, expected: 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, getSyncInterval(tt.cfg))
		})
	}
}

func TestWithJitter(t *testing.T) {
	t.Parallel()

	interval := 6 * time.Hour
	for range 100 {
		d := withJitter(interval)
		assert.GreaterOrEqual(t, d, interval-interval/jitterDivisor)
		assert.Less(t, d, interval+interval/jitterDivisor)
	}
	assert.Equal(t, time.Duration(5), withJitter(5))
}

func TestNextDelay(t *testing.T) {
	t.Parallel()

	c := New(nil, memory.New(), nil, nil, WithInterval(time.Hour)).(*defaultCoordinator)

	for range 20 {
		d := c.nextDelay(true)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Hour)
	}

	d := c.nextDelay(false)
	assert.GreaterOrEqual(t, d, time.Hour-time.Hour/jitterDivisor)

	// a success resets the backoff to its initial delay
	first := c.nextDelay(true)
	assert.LessOrEqual(t, first, 2*initialRetryDelay)
}

func TestRequestSync_Success(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	want := &sync.Result{DaysFetched: 11, MatchingCalls: 11}
	manager.EXPECT().PerformSync(gomock.Any(), fixedNow).Return(want, nil)

	coord, _, historyLog := newTestCoordinator(t, manager)

	req := coord.RequestSync(context.Background())
	<-req.Done()
	got, err := req.Result()
	require.NoError(t, err)
	assert.Same(t, want, got)

	entries, err := historyLog.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, status.HistorySync, entries[0].Kind)
	assert.True(t, entries[0].Success)
	assert.Contains(t, entries[0].Detail, "calls=11")
}

func TestRequestSync_Failure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	partial := &sync.Result{MatchingCalls: 2}
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).Return(partial, &sync.Error{
		Err:     errors.New("connection refused"),
		Message: "sync stopped at 2020-06-05: connection refused",
		Kind:    status.ErrorKindNetwork,
	})

	coord, _, historyLog := newTestCoordinator(t, manager)

	got, err := coord.RequestSync(context.Background()).Result()
	require.Error(t, err)
	assert.Same(t, partial, got)

	var syncErr *sync.Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, status.ErrorKindNetwork, syncErr.Kind)

	entries, err := historyLog.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)
	assert.Contains(t, entries[0].Detail, "connection refused")
}

func TestRequestSync_Coalesces(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	started := make(chan struct{})
	release := make(chan struct{})
	want := &sync.Result{}
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, time.Time) (*sync.Result, *sync.Error) {
			close(started)
			<-release
			return want, nil
		}).
		Times(1)

	coord, _, _ := newTestCoordinator(t, manager)

	first := coord.RequestSync(context.Background())
	<-started
	second := coord.RequestSync(context.Background())
	close(release)

	r1, err := first.Result()
	require.NoError(t, err)
	r2, err := second.Result()
	require.NoError(t, err)
	assert.Same(t, want, r1)
	assert.Same(t, want, r2)
}

func TestRequestSync_CallerContextEnds(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	started := make(chan struct{})
	release := make(chan struct{})
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, time.Time) (*sync.Result, *sync.Error) {
			close(started)
			<-release
			return &sync.Result{}, nil
		})

	coord, _, _ := newTestCoordinator(t, manager)

	ctx, cancel := context.WithCancel(context.Background())
	req := coord.RequestSync(ctx)
	<-started
	cancel()

	_, err := req.Result()
	require.ErrorIs(t, err, context.Canceled)
	close(release)
}

func TestRequestSync_JoinedRequestOutlivesCaller(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	started := make(chan struct{})
	release := make(chan struct{})
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ time.Time) (*sync.Result, *sync.Error) {
			close(started)
			select {
			case <-ctx.Done():
				return &sync.Result{Cancelled: true}, nil
			case <-release:
				return &sync.Result{DaysFetched: 11}, nil
			}
		}).
		Times(1)

	coord, _, _ := newTestCoordinator(t, manager)

	apiCtx, cancelAPI := context.WithCancel(context.Background())
	first := coord.RequestSync(apiCtx)
	<-started
	joined := coord.RequestSync(context.Background())
	cancelAPI()

	_, err := first.Result()
	require.ErrorIs(t, err, context.Canceled)

	close(release)
	got, err := joined.Result()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Cancelled)
	assert.Equal(t, 11, got.DaysFetched)
}

func TestStop_CancelsRunningCycle(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	started := make(chan struct{})
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ time.Time) (*sync.Result, *sync.Error) {
			close(started)
			<-ctx.Done()
			return &sync.Result{Cancelled: true}, nil
		})

	coord, _, _ := newTestCoordinator(t, manager)

	req := coord.RequestSync(context.Background())
	<-started
	require.NoError(t, coord.Stop())

	select {
	case <-req.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cycle was not cancelled by Stop")
	}
	got, err := req.Result()
	require.NoError(t, err)
	assert.True(t, got.Cancelled)
}

func TestTick(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		result    *sync.Result
		syncErr   *sync.Error
		wantRetry bool
	}{
		{name: "completed cycle", result: &sync.Result{DaysFetched: 1}, wantRetry: false},
		{name: "cancelled cycle is retried", result: &sync.Result{Cancelled: true}, wantRetry: true},
		{
			name:      "transient failure is retried",
			result:    &sync.Result{},
			syncErr:   &sync.Error{Err: errors.New("timeout"), Message: "timeout", Kind: status.ErrorKindNetwork},
			wantRetry: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			manager := syncmocks.NewMockManager(ctrl)
			manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).Return(tt.result, tt.syncErr)

			coord, backend, _ := newTestCoordinator(t, manager)
			enableTracing(t, backend)

			assert.Equal(t, tt.wantRetry, coord.(*defaultCoordinator).tick(context.Background()))
		})
	}
}

func TestStart_RunsWhileTracingEnabled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	ran := make(chan struct{}, 1)
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, time.Time) (*sync.Result, *sync.Error) {
			select {
			case ran <- struct{}{}:
			default:
			}
			return &sync.Result{}, nil
		}).
		MinTimes(1)

	coord, backend, historyLog := newTestCoordinator(t, manager, WithInterval(time.Hour))
	enableTracing(t, backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- coord.Start(context.Background())
	}()

	select {
	case <-ran:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled sync did not run")
	}

	require.NoError(t, coord.Stop())
	require.NoError(t, <-errCh)

	entries, err := historyLog.List(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, status.HistoryWorkerStarted, entries[0].Kind)
}

func TestStart_SkipsWhileTracingDisabled(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)
	manager.EXPECT().PerformSync(gomock.Any(), gomock.Any()).Times(0)

	coord, _, _ := newTestCoordinator(t, manager, WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, coord.Start(ctx))
}

func TestStop_WithoutStart(t *testing.T) {
	t.Parallel()

	coord, _, _ := newTestCoordinator(t, nil)
	assert.NoError(t, coord.Stop())
}
