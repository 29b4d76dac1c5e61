package app

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/exposure"
	"github.com/proxtrace/exposure-sync/internal/history"
	"github.com/proxtrace/exposure-sync/internal/matching"
	"github.com/proxtrace/exposure-sync/internal/storage/memory"
	"github.com/proxtrace/exposure-sync/internal/sync/coordinator"
	"github.com/proxtrace/exposure-sync/internal/tracing"
)

// mockCoordinator implements the coordinator.Coordinator interface for testing
type mockCoordinator struct {
	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	startErr    error
	stopErr     error
}

func (m *mockCoordinator) Start(ctx context.Context) error {
	m.mu.Lock()
	m.startCalled = true
	err := m.startErr
	m.mu.Unlock()

	if err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (m *mockCoordinator) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopCalled = true
	return m.stopErr
}

func (*mockCoordinator) RequestSync(context.Context) *coordinator.SyncRequest {
	return nil
}

func (m *mockCoordinator) wasStartCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalled
}

func (m *mockCoordinator) wasStopCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopCalled
}

// createTestApp creates an ExposureSyncApp around a memory backend and a mock
// coordinator without going through NewExposureSyncApp
func createTestApp(t *testing.T, addr string) *ExposureSyncApp {
	t.Helper()

	cfg := createTestAppConfig()
	store := memory.New()
	calendar := cfg.Calendar.GetCalendar()
	mockCoord := &mockCoordinator{}
	historyLog := history.New(store)

	components := &AppComponents{
		SyncCoordinator: mockCoord,
		Backend:         store,
		Client: tracing.New(tracing.Dependencies{
			Backend:     store,
			Coordinator: mockCoord,
			Exposures:   exposure.NewStore(store, calendar, exposure.PolicyFromConfig(cfg), cfg.Exposure.DaysToKeep),
			HistoryLog:  historyLog,
			Keys:        matching.NewFixtureEngine(),
			Calendar:    calendar,
		}, cfg),
	}

	appCfg := &appConfig{
		config:         cfg,
		address:        addr,
		requestTimeout: 10 * time.Second,
		readTimeout:    10 * time.Second,
		writeTimeout:   15 * time.Second,
		idleTimeout:    60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	server, err := buildHTTPServer(ctx, appCfg, components)
	require.NoError(t, err)

	return &ExposureSyncApp{
		config:     cfg,
		components: components,
		httpServer: server,
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// createTestAppConfig creates a minimal valid config for testing
func createTestAppConfig() *config.Config {
	cfg := config.Default()
	cfg.Backend.BucketBaseURL = "https://backend.example.org"
	cfg.Storage.Type = config.StorageTypeMemory
	cfg.Calendar.Timezone = "UTC"
	return cfg
}

func freeAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	return addr
}

func TestExposureSyncApp_StartWithListener(t *testing.T) {
	t.Parallel()

	addr := freeAddress(t)
	app := createTestApp(t, addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get("http://" + addr + "/v1/status")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mockCoord := app.components.SyncCoordinator.(*mockCoordinator)
	assert.Eventually(t, mockCoord.wasStartCalled, time.Second, 10*time.Millisecond)

	require.NoError(t, app.Stop(5*time.Second))

	select {
	case startErr := <-errChan:
		require.NoError(t, startErr)
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestExposureSyncApp_Stop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		timeout time.Duration
		start   bool
	}{
		{name: "graceful shutdown with normal timeout", timeout: 5 * time.Second, start: true},
		{name: "graceful shutdown with short timeout", timeout: time.Second, start: true},
		{name: "stop without starting first", timeout: 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			app := createTestApp(t, freeAddress(t))
			if tt.start {
				go func() { _ = app.Start() }()
				time.Sleep(100 * time.Millisecond)
			}

			require.NoError(t, app.Stop(tt.timeout))

			mockCoord := app.components.SyncCoordinator.(*mockCoordinator)
			assert.True(t, mockCoord.wasStopCalled(), "sync coordinator Stop should be called")

			_, err := app.components.Backend.LoadState(context.Background())
			assert.Error(t, err, "storage should be closed")
		})
	}
}

func TestExposureSyncApp_StopWithNilCancelFunc(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, freeAddress(t))
	app.cancelFunc = nil

	require.NoError(t, app.Stop(5*time.Second))
}

func TestExposureSyncApp_Accessors(t *testing.T) {
	t.Parallel()

	app := createTestApp(t, "127.0.0.1:8080")

	require.NotNil(t, app.GetConfig())
	assert.Equal(t, "https://backend.example.org", app.GetConfig().Backend.BucketBaseURL)
	require.NotNil(t, app.GetHTTPServer())
	assert.Equal(t, "127.0.0.1:8080", app.GetHTTPServer().Addr)
	assert.Same(t, app.components.Client, app.Client())
}

func TestExposureSyncApp_StartError_AddressInUse(t *testing.T) {
	t.Parallel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	app := createTestApp(t, listener.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- app.Start()
	}()

	select {
	case startErr := <-errChan:
		require.Error(t, startErr)
		assert.Contains(t, startErr.Error(), "HTTP server failed")
	case <-time.After(5 * time.Second):
		_ = app.Stop(time.Second)
		t.Fatal("Expected Start() to fail due to port in use")
	}
	_ = app.Stop(time.Second)
}

// Verify that Coordinator interface is properly defined
var _ coordinator.Coordinator = (*mockCoordinator)(nil)
