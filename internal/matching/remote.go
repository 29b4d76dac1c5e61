package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/proxtrace/exposure-sync/internal/httpclient"
)

// RemoteEngine delegates matching to an engine service over HTTP.
//
//	POST {endpoint}/v1/match  -> {"evidence": [...]}
//	GET  {endpoint}/v1/keys   -> {"keys": [...]}
//
// A 503 or 429 answer maps to ErrEngineUnavailable.
type RemoteEngine struct {
	endpoint string
	client   httpclient.Client
}

var (
	_ Engine      = (*RemoteEngine)(nil)
	_ KeyExporter = (*RemoteEngine)(nil)
)

// NewRemoteEngine creates a RemoteEngine for the service at endpoint
func NewRemoteEngine(endpoint string, client httpclient.Client) *RemoteEngine {
	return &RemoteEngine{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		client:   client,
	}
}

type matchRequest struct {
	Day        int64      `json:"day"`
	Token      string     `json:"token"`
	ValidFrom  int64      `json:"validFrom"`
	Thresholds Thresholds `json:"thresholds"`
	Batch      []byte     `json:"batch"`
}

type matchResponse struct {
	Evidence []Evidence `json:"evidence"`
}

type keysResponse struct {
	Keys []TemporaryExposureKey `json:"keys"`
}

// ProvideDiagnosisKeys posts the batch to the engine service
func (e *RemoteEngine) ProvideDiagnosisKeys(ctx context.Context, req Request) ([]Evidence, error) {
	resp, err := e.client.PostJSON(ctx, e.endpoint+"/v1/match", matchRequest{
		Day:        int64(req.Day),
		Token:      req.Token,
		ValidFrom:  int64(req.ValidFrom),
		Thresholds: req.Thresholds,
		Batch:      req.Batch,
	}, nil)
	if err != nil {
		return nil, classify(err)
	}

	var out matchResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode engine response: %w", err)
	}
	return out.Evidence, nil
}

// TemporaryExposureKeyHistory fetches the device keys from the engine service
func (e *RemoteEngine) TemporaryExposureKeyHistory(ctx context.Context) ([]TemporaryExposureKey, error) {
	resp, err := e.client.Get(ctx, e.endpoint+"/v1/keys")
	if err != nil {
		return nil, classify(err)
	}

	var out keysResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, fmt.Errorf("failed to decode key history: %w", err)
	}
	return out.Keys, nil
}

func classify(err error) error {
	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusServiceUnavailable, http.StatusTooManyRequests:
			return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		}
		return fmt.Errorf("engine request failed: %w", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	// an unreachable engine service behaves like a busy one
	return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
}
