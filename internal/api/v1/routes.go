// Package v1 provides the REST API handlers of the exposure sync engine.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proxtrace/exposure-sync/internal/api/common"
	"github.com/proxtrace/exposure-sync/internal/httpclient"
	"github.com/proxtrace/exposure-sync/internal/service"
	pkgsync "github.com/proxtrace/exposure-sync/internal/sync"
	"github.com/proxtrace/exposure-sync/internal/tracing"
	"github.com/proxtrace/exposure-sync/internal/versions"
)

// maxRequestBody bounds JSON request bodies
const maxRequestBody = 1 << 20

// TracingStateResponse reports whether tracing is enabled
type TracingStateResponse struct {
	TracingEnabled bool `json:"tracingEnabled"`
}

// SyncFailureResponse is returned when a requested cycle stopped on a transient failure
type SyncFailureResponse struct {
	Error  string          `json:"error"`
	Kind   string          `json:"kind"`
	Day    string          `json:"day,omitempty"`
	Result *pkgsync.Result `json:"result,omitempty"`
}

// InfectionReportRequest is the body of an infection report
type InfectionReportRequest struct {
	// Onset is a date (2006-01-02) or an RFC 3339 timestamp
	Onset string `json:"onset"`

	// Authorization is the health authority token; the Authorization header is used when empty
	Authorization string `json:"authorization,omitempty"`
}

// Routes holds the handlers with their service dependency
type Routes struct {
	service service.TracingService
}

// NewRoutes creates a new Routes instance with the provided service
func NewRoutes(svc service.TracingService) *Routes {
	return &Routes{
		service: svc,
	}
}

// Router creates the router mounted at /v1
func Router(svc service.TracingService) http.Handler {
	routes := NewRoutes(svc)

	r := chi.NewRouter()

	r.Get("/status", routes.getStatus)
	r.Get("/settings", routes.getSettings)
	r.Post("/sync", routes.postSync)

	r.Post("/tracing/start", routes.postTracingStart)
	r.Post("/tracing/stop", routes.postTracingStop)

	r.Delete("/exposure-days", routes.deleteExposureDays)
	r.Post("/infection-status/reset", routes.postInfectionStatusReset)
	r.Post("/infection-report", routes.postInfectionReport)
	r.Post("/infection-report/fake", routes.postFakeInfectionReport)

	r.Get("/history", routes.getHistory)
	r.Post("/history/client-opened", routes.postClientOpened)

	r.Delete("/data", routes.deleteData)

	return r
}

// HealthRouter creates a router for health check endpoints
func HealthRouter() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler)

	return r
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

func versionHandler(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, versions.GetVersionInfo(), http.StatusOK)
}

func (rr *Routes) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := rr.service.Status(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to get status", err)
		return
	}
	common.WriteJSONResponse(w, st, http.StatusOK)
}

func (rr *Routes) getSettings(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rr.service.Settings(), http.StatusOK)
}

func (rr *Routes) postSync(w http.ResponseWriter, r *http.Request) {
	result, err := rr.service.Sync(r.Context())
	if err != nil {
		var syncErr *pkgsync.Error
		if errors.As(err, &syncErr) {
			common.WriteJSONResponse(w, SyncFailureResponse{
				Error:  syncErr.Message,
				Kind:   string(syncErr.Kind),
				Day:    syncErr.Day.String(),
				Result: result,
			}, http.StatusBadGateway)
			return
		}
		writeServiceError(w, "Sync failed", err)
		return
	}
	common.WriteJSONResponse(w, result, http.StatusOK)
}

func (rr *Routes) postTracingStart(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.Start(r.Context()); err != nil {
		writeServiceError(w, "Failed to start tracing", err)
		return
	}
	common.WriteJSONResponse(w, TracingStateResponse{TracingEnabled: true}, http.StatusOK)
}

func (rr *Routes) postTracingStop(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.Stop(r.Context()); err != nil {
		writeServiceError(w, "Failed to stop tracing", err)
		return
	}
	common.WriteJSONResponse(w, TracingStateResponse{TracingEnabled: false}, http.StatusOK)
}

func (rr *Routes) deleteExposureDays(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.ResetExposureDays(r.Context()); err != nil {
		writeServiceError(w, "Failed to reset exposure days", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) postInfectionStatusReset(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.ResetInfectionStatus(r.Context()); err != nil {
		writeServiceError(w, "Failed to reset infection status", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) postInfectionReport(w http.ResponseWriter, r *http.Request) {
	var req InfectionReportRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		common.WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	onset, err := parseOnset(req.Onset)
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	auth := authorization(r, req.Authorization)
	if auth == "" {
		common.WriteErrorResponse(w, "authorization is required", http.StatusBadRequest)
		return
	}

	if err := rr.service.ReportInfected(r.Context(), onset, auth); err != nil {
		writeServiceError(w, "Failed to report infection", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) postFakeInfectionReport(w http.ResponseWriter, r *http.Request) {
	var req InfectionReportRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
			common.WriteErrorResponse(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}
	auth := authorization(r, req.Authorization)
	if auth == "" {
		common.WriteErrorResponse(w, "authorization is required", http.StatusBadRequest)
		return
	}

	if err := rr.service.SendFakeInfectedRequest(r.Context(), auth); err != nil {
		writeServiceError(w, "Failed to send fake report", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) getHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := rr.service.History(r.Context())
	if err != nil {
		writeServiceError(w, "Failed to get history", err)
		return
	}
	common.WriteJSONResponse(w, entries, http.StatusOK)
}

func (rr *Routes) postClientOpened(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.AddClientOpened(r.Context()); err != nil {
		writeServiceError(w, "Failed to record client open", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rr *Routes) deleteData(w http.ResponseWriter, r *http.Request) {
	if err := rr.service.ClearData(r.Context()); err != nil {
		writeServiceError(w, "Failed to clear data", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseOnset accepts a date or an RFC 3339 timestamp. Dates are taken at noon
// UTC so they map to the same calendar day in every timezone.
func parseOnset(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("onset is required")
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.Add(12 * time.Hour), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("onset must be a date or an RFC 3339 timestamp")
	}
	return t, nil
}

func authorization(r *http.Request, fromBody string) string {
	if fromBody != "" {
		return fromBody
	}
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

// writeServiceError maps service errors onto HTTP status codes
func writeServiceError(w http.ResponseWriter, message string, err error) {
	code := http.StatusInternalServerError
	var httpErr *httpclient.HTTPError
	switch {
	case errors.Is(err, tracing.ErrNotResettable), errors.Is(err, tracing.ErrTracingActive):
		common.WriteErrorResponse(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	case errors.As(err, &httpErr):
		code = http.StatusBadGateway
	}
	slog.Error(message, "error", err, "status", code)
	common.WriteErrorResponse(w, message, code)
}
