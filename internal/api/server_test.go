package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/proxtrace/exposure-sync/internal/api"
	"github.com/proxtrace/exposure-sync/internal/httpclient"
	"github.com/proxtrace/exposure-sync/internal/service/mocks"
	"github.com/proxtrace/exposure-sync/internal/status"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
	"github.com/proxtrace/exposure-sync/internal/tracing"
)

func serve(t *testing.T, server http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(method, path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockSvc := mocks.NewMockTracingService(ctrl)
	// No expectations needed - health check doesn't call service
	server := api.NewServer(mockSvc)

	rr := serve(t, server, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	server := api.NewServer(mocks.NewMockTracingService(ctrl))

	rr := serve(t, server, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, rr.Code)

	var response map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
	assert.Contains(t, response, "version")
	assert.Contains(t, response, "commit")
	assert.Contains(t, response, "build_date")
	assert.Contains(t, response, "go_version")
	assert.Contains(t, response, "platform")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("exposure_sync_exposure_days 0\n"))
	})

	withMetrics := api.NewServer(mocks.NewMockTracingService(ctrl), api.WithMetricsHandler(metrics))
	rr := serve(t, withMetrics, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "exposure_sync_exposure_days")

	without := api.NewServer(mocks.NewMockTracingService(ctrl))
	rr = serve(t, without, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	lastSync := time.Date(2020, 6, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name           string
		setupMock      func(*mocks.MockTracingService)
		expectedStatus int
		check          func(t *testing.T, body []byte)
	}{
		{
			name: "returns status",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().Status(gomock.Any()).Return(&status.TracingStatus{
					TracingEnabled:  true,
					LastSyncAt:      &lastSync,
					InfectionStatus: status.InfectionExposed,
					ExposureDays:    []status.ExposureDay{{Day: 18423, ReportedAt: lastSync, DurationSignal: 20}},
					Errors:          []status.ErrorCondition{},
				}, nil)
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				t.Helper()
				var got status.TracingStatus
				require.NoError(t, json.Unmarshal(body, &got))
				assert.True(t, got.TracingEnabled)
				assert.Equal(t, status.InfectionExposed, got.InfectionStatus)
				require.Len(t, got.ExposureDays, 1)
			},
		},
		{
			name: "storage failure",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().Status(gomock.Any()).Return(nil, errors.New("disk full"))
			},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body []byte) {
				t.Helper()
				var got map[string]string
				require.NoError(t, json.Unmarshal(body, &got))
				assert.Equal(t, "Failed to get status", got["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			mockSvc := mocks.NewMockTracingService(ctrl)
			tt.setupMock(mockSvc)

			rr := serve(t, api.NewServer(mockSvc), http.MethodGet, "/v1/status", "")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			tt.check(t, rr.Body.Bytes())
		})
	}
}

func TestSyncEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		result         *pkgsync.Result
		err            error
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "success",
			result:         &pkgsync.Result{DaysFetched: 11, MatchingCalls: 11},
			expectedStatus: http.StatusOK,
			expectedBody:   `"matchingCalls":11`,
		},
		{
			name:   "transient failure",
			result: &pkgsync.Result{MatchingCalls: 2},
			err: &pkgsync.Error{
				Err:     errors.New("connection refused"),
				Message: "sync stopped at 2020-06-05: connection refused",
				Kind:    status.ErrorKindNetwork,
				Day:     18418,
			},
			expectedStatus: http.StatusBadGateway,
			expectedBody:   `"kind":"network"`,
		},
		{
			name:           "caller gave up",
			err:            context.Canceled,
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `"error":"Sync failed"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			mockSvc := mocks.NewMockTracingService(ctrl)
			mockSvc.EXPECT().Sync(gomock.Any()).Return(tt.result, tt.err)

			rr := serve(t, api.NewServer(mockSvc), http.MethodPost, "/v1/sync", "")
			assert.Equal(t, tt.expectedStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.expectedBody)
		})
	}
}

func TestTracingEndpoints(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockSvc := mocks.NewMockTracingService(ctrl)
	mockSvc.EXPECT().Start(gomock.Any()).Return(nil)
	mockSvc.EXPECT().Stop(gomock.Any()).Return(nil)
	server := api.NewServer(mockSvc)

	rr := serve(t, server, http.MethodPost, "/v1/tracing/start", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"tracingEnabled":true}`, rr.Body.String())

	rr = serve(t, server, http.MethodPost, "/v1/tracing/stop", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"tracingEnabled":false}`, rr.Body.String())
}

func TestResetEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		path           string
		setupMock      func(*mocks.MockTracingService)
		expectedStatus int
	}{
		{
			name:   "reset exposure days",
			method: http.MethodDelete,
			path:   "/v1/exposure-days",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().ResetExposureDays(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:   "reset infection status",
			method: http.MethodPost,
			path:   "/v1/infection-status/reset",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().ResetInfectionStatus(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:   "infection status not resettable",
			method: http.MethodPost,
			path:   "/v1/infection-status/reset",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().ResetInfectionStatus(gomock.Any()).Return(tracing.ErrNotResettable)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "clear data",
			method: http.MethodDelete,
			path:   "/v1/data",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().ClearData(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:   "clear data while tracing",
			method: http.MethodDelete,
			path:   "/v1/data",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().ClearData(gomock.Any()).Return(tracing.ErrTracingActive)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name:   "client opened",
			method: http.MethodPost,
			path:   "/v1/history/client-opened",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().AddClientOpened(gomock.Any()).Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			mockSvc := mocks.NewMockTracingService(ctrl)
			tt.setupMock(mockSvc)

			rr := serve(t, api.NewServer(mockSvc), tt.method, tt.path, "")
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestInfectionReportEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		body           string
		header         string
		setupMock      func(*mocks.MockTracingService)
		expectedStatus int
	}{
		{
			name: "date onset",
			body: `{"onset":"2020-06-07","authorization":"token"}`,
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().
					ReportInfected(gomock.Any(), time.Date(2020, 6, 7, 12, 0, 0, 0, time.UTC), "token").
					Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:   "authorization from header",
			body:   `{"onset":"2020-06-07T08:00:00Z"}`,
			header: "Bearer header-token",
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().
					ReportInfected(gomock.Any(), time.Date(2020, 6, 7, 8, 0, 0, 0, time.UTC), "header-token").
					Return(nil)
			},
			expectedStatus: http.StatusNoContent,
		},
		{
			name:           "missing onset",
			body:           `{"authorization":"token"}`,
			setupMock:      func(*mocks.MockTracingService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing authorization",
			body:           `{"onset":"2020-06-07"}`,
			setupMock:      func(*mocks.MockTracingService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid body",
			body:           `{`,
			setupMock:      func(*mocks.MockTracingService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "backend rejects the token",
			body: `{"onset":"2020-06-07","authorization":"token"}`,
			setupMock: func(m *mocks.MockTracingService) {
				m.EXPECT().ReportInfected(gomock.Any(), gomock.Any(), "token").
					Return(httpclient.NewHTTPError(http.StatusUnauthorized, "https://backend/v1/gaen/exposed", "unauthorized"))
			},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			t.Cleanup(ctrl.Finish)

			mockSvc := mocks.NewMockTracingService(ctrl)
			tt.setupMock(mockSvc)

			req, err := http.NewRequest(http.MethodPost, "/v1/infection-report", strings.NewReader(tt.body))
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			api.NewServer(mockSvc).ServeHTTP(rr, req)

			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestFakeInfectionReportEndpoint(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockSvc := mocks.NewMockTracingService(ctrl)
	mockSvc.EXPECT().SendFakeInfectedRequest(gomock.Any(), "token").Return(nil)

	req, err := http.NewRequest(http.MethodPost, "/v1/infection-report/fake", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	api.NewServer(mockSvc).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestHistoryAndSettingsEndpoints(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	at := time.Date(2020, 6, 10, 12, 0, 0, 0, time.UTC)
	mockSvc := mocks.NewMockTracingService(ctrl)
	mockSvc.EXPECT().History(gomock.Any()).Return([]status.HistoryEntry{
		{Kind: status.HistorySync, Detail: "days=11", Success: true, At: at},
	}, nil)
	mockSvc.EXPECT().Settings().Return(tracing.Settings{SyncsPerDay: 4, MatchingCallsPerDay: 20})
	server := api.NewServer(mockSvc)

	rr := serve(t, server, http.MethodGet, "/v1/history", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var entries []status.HistoryEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, status.HistorySync, entries[0].Kind)

	rr = serve(t, server, http.MethodGet, "/v1/settings", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	var settings tracing.Settings
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &settings))
	assert.Equal(t, 4, settings.SyncsPerDay)
}

func TestLoggingMiddleware(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	server := api.NewServer(mocks.NewMockTracingService(ctrl), api.WithMiddlewares(api.LoggingMiddleware))
	rr := serve(t, server, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
