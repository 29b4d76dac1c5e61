package tracing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/proxtrace/exposure-sync/internal/backend"
	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/matching"
	"github.com/proxtrace/exposure-sync/internal/status"
)

const (
	// paddedKeyCount is the number of keys every upload carries, padded with fake keys
	paddedKeyCount = 30

	keyLength = 16
)

// ReportInfected uploads the keys rolled since onset. On success the device
// is marked infected, the report becomes resettable and tracing stops.
func (c *Client) ReportInfected(ctx context.Context, onset time.Time, authorization string) error {
	err := c.reportInfected(ctx, onset, authorization)
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	if histErr := c.HistoryLog.Add(context.WithoutCancel(ctx), status.HistoryInfectedReport, detail, err == nil); histErr != nil {
		slog.Warn("Failed to record report history", "error", histErr)
	}
	return err
}

func (c *Client) reportInfected(ctx context.Context, onset time.Time, authorization string) error {
	keys, err := c.Keys.TemporaryExposureKeyHistory(ctx)
	if err != nil {
		return fmt.Errorf("failed to export keys: %w", err)
	}

	onsetStart := daybucket.RollingStartOf(c.Calendar.DayOf(onset))
	filtered := make([]matching.TemporaryExposureKey, 0, len(keys))
	for _, k := range keys {
		if k.RollingStartNumber >= onsetStart {
			filtered = append(filtered, k)
		}
	}

	now := c.now()
	padded, err := padKeys(filtered, c.Calendar.DayOf(now))
	if err != nil {
		return err
	}
	req := backend.ExposeeRequest{
		GaenKeys:              padded,
		DelayedKeyDate:        daybucket.RollingStartOf(c.Calendar.DayOf(now)),
		WithFederationGateway: c.cfg.Report.WithFederationGateway,
	}
	if _, err := c.Reporter.ReportExposee(ctx, req, authorization); err != nil {
		return err
	}

	_, err = c.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		s.InfectedReported = true
		s.InfectedResettable = true
		s.TracingEnabled = false
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to save infection status: %w", err)
	}

	slog.Info("Infection reported", "keys", len(filtered), "onset", c.Calendar.DayOf(onset).String())
	return nil
}

// SendFakeInfectedRequest uploads a request made only of fake keys, so
// network observers cannot tell real reports apart. Local state is untouched.
func (c *Client) SendFakeInfectedRequest(ctx context.Context, authorization string) error {
	today := c.Calendar.DayOf(c.now())
	keys, err := padKeys(nil, today)
	if err != nil {
		return err
	}
	req := backend.ExposeeRequest{
		GaenKeys:              keys,
		DelayedKeyDate:        daybucket.RollingStartOf(today),
		WithFederationGateway: c.cfg.Report.WithFederationGateway,
	}
	if _, err := c.Reporter.ReportExposee(ctx, req, authorization); err != nil {
		return err
	}
	slog.Debug("Fake infected request sent")
	return nil
}

// padKeys appends fake keys for the days before today until paddedKeyCount keys are present
func padKeys(keys []matching.TemporaryExposureKey, today daybucket.DayID) ([]matching.TemporaryExposureKey, error) {
	out := append([]matching.TemporaryExposureKey(nil), keys...)
	for i := 1; len(out) < paddedKeyCount; i++ {
		data := make([]byte, keyLength)
		if _, err := rand.Read(data); err != nil {
			return nil, fmt.Errorf("failed to generate fake key: %w", err)
		}
		out = append(out, matching.TemporaryExposureKey{
			KeyData:            base64.StdEncoding.EncodeToString(data),
			RollingStartNumber: daybucket.RollingStartOf(today.AddDays(-i)),
			RollingPeriod:      daybucket.IntervalsPerDay,
			Fake:               1,
		})
	}
	return out, nil
}
