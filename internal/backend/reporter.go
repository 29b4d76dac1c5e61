package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/httpclient"
	"github.com/proxtrace/exposure-sync/internal/matching"
)

//go:generate mockgen -destination=mocks/mock_reporter.go -package=mocks -source=reporter.go ExposeeReporter

// ExposeeRequest is the key upload of an infected user
type ExposeeRequest struct {
	GaenKeys []matching.TemporaryExposureKey `json:"gaenKeys"`

	// DelayedKeyDate is the rolling start of today's key, uploaded the next day
	DelayedKeyDate daybucket.RollingInterval `json:"delayedKeyDate"`

	// WithFederationGateway is omitted when unset so the backend decides
	WithFederationGateway *bool `json:"withFederationGateway,omitempty"`
}

// ExposeeReporter uploads keys to the backend
type ExposeeReporter interface {
	// ReportExposee uploads req authorized by the health authority token
	// and returns the token for the delayed key upload, if any
	ReportExposee(ctx context.Context, req ExposeeRequest, authorization string) (string, error)
}

// Reporter is the HTTP ExposeeReporter posting to {baseURL}/v1/gaen/exposed
type Reporter struct {
	client  httpclient.Client
	baseURL string
}

var _ ExposeeReporter = (*Reporter)(nil)

// NewReporter creates a Reporter for the backend at baseURL
func NewReporter(client httpclient.Client, baseURL string) *Reporter {
	return &Reporter{client: client, baseURL: strings.TrimSuffix(baseURL, "/")}
}

// ReportExposee uploads req with a bearer authorization
func (r *Reporter) ReportExposee(ctx context.Context, req ExposeeRequest, authorization string) (string, error) {
	if r.baseURL == "" {
		return "", fmt.Errorf("report backend is not configured")
	}
	if authorization == "" {
		return "", fmt.Errorf("authorization is required")
	}

	resp, err := r.client.PostJSON(ctx, r.baseURL+"/v1/gaen/exposed", req, map[string]string{
		"Authorization": bearer(authorization),
	})
	if err != nil {
		return "", fmt.Errorf("failed to report exposee: %w", err)
	}
	return strings.TrimPrefix(resp.Header.Get("Authorization"), "Bearer "), nil
}

func bearer(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}
