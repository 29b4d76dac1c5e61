package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// SyncMetricsMeterName is the name used for the sync metrics meter
const SyncMetricsMeterName = "github.com/proxtrace/exposure-sync/sync"

// SyncMetrics holds the instruments recorded by sync cycles.
// A nil *SyncMetrics is valid and records nothing.
type SyncMetrics struct {
	cycleDuration metric.Float64Histogram
	fetchResults  metric.Int64Counter
	matchingCalls metric.Int64Counter
	exposureDays  metric.Int64Gauge
}

// NewSyncMetrics creates SyncMetrics from provider; a nil provider yields nil metrics
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"exposure_sync_cycle_duration_seconds",
		metric.WithDescription("Duration of sync cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	fetchResults, err := meter.Int64Counter(
		"exposure_sync_fetch_results_total",
		metric.WithDescription("Batch fetches by result kind"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	matchingCalls, err := meter.Int64Counter(
		"exposure_sync_matching_calls_total",
		metric.WithDescription("Matching engine invocations"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	exposureDays, err := meter.Int64Gauge(
		"exposure_sync_exposure_days",
		metric.WithDescription("Number of live exposure days"),
		metric.WithUnit("{day}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		cycleDuration: cycleDuration,
		fetchResults:  fetchResults,
		matchingCalls: matchingCalls,
		exposureDays:  exposureDays,
	}, nil
}

// RecordCycle records the duration and outcome of one sync cycle
func (m *SyncMetrics) RecordCycle(ctx context.Context, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	m.cycleDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordFetch counts one batch fetch with the given result kind
func (m *SyncMetrics) RecordFetch(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.fetchResults.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordMatchingCall counts one matching engine invocation
func (m *SyncMetrics) RecordMatchingCall(ctx context.Context, success bool) {
	if m == nil {
		return
	}
	m.matchingCalls.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordExposureDays records the current number of live exposure days
func (m *SyncMetrics) RecordExposureDays(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.exposureDays.Record(ctx, int64(count))
}
