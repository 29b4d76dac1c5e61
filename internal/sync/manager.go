package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/proxtrace/exposure-sync/internal/backend"
	"github.com/proxtrace/exposure-sync/internal/config"
	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/errstate"
	"github.com/proxtrace/exposure-sync/internal/exposure"
	"github.com/proxtrace/exposure-sync/internal/matching"
	"github.com/proxtrace/exposure-sync/internal/otel"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
	"github.com/proxtrace/exposure-sync/internal/telemetry"
	"github.com/proxtrace/exposure-sync/internal/watermark"
)

// Result summarizes one sync cycle
type Result struct {
	From daybucket.DayID `json:"from"`
	To   daybucket.DayID `json:"to"`

	// DaysFetched counts days the backend answered with content or no content
	DaysFetched int `json:"daysFetched"`

	// MatchingCalls counts matching engine invocations
	MatchingCalls int `json:"matchingCalls"`

	// Deferred counts content days left for a later cycle by the budget
	Deferred int `json:"deferred"`

	// Skipped counts days that failed permanently
	Skipped int `json:"skipped"`

	// Unchanged counts content days already matched at the same backend
	// horizon; they are consumed without calling the engine again
	Unchanged int `json:"unchanged"`

	// ExposuresRecorded counts evidence entries that qualified as exposure
	ExposuresRecorded int `json:"exposuresRecorded"`

	Watermark status.Watermark `json:"watermark"`

	// Cancelled is set when the context ended the cycle early
	Cancelled bool `json:"cancelled,omitempty"`
}

// Manager runs sync cycles
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager
type Manager interface {
	// PerformSync runs one cycle at now. A transient failure stops the cycle and
	// is returned alongside the partial result.
	PerformSync(ctx context.Context, now time.Time) (*Result, *Error)
}

// Settings are the cycle parameters
type Settings struct {
	// LookbackDays bounds how far back a cycle fetches
	LookbackDays int
	// DaysToConsider bounds the key history handed to the engine
	DaysToConsider int
	// MatchingCallsPerDay is the matching budget per trailing 24 hours
	MatchingCallsPerDay int
	Thresholds          matching.Thresholds
}

// SettingsFromConfig extracts the cycle parameters from cfg
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		LookbackDays:        cfg.Sync.LookbackDays,
		DaysToConsider:      cfg.Exposure.DaysToConsider,
		MatchingCallsPerDay: cfg.Sync.MatchingCallsPerDay,
		Thresholds: matching.Thresholds{
			Low:    cfg.Matching.AttenuationThresholdLow,
			Medium: cfg.Matching.AttenuationThresholdMedium,
		},
	}
}

// Dependencies are the collaborators of a Manager
type Dependencies struct {
	Backend    storage.Backend
	Fetcher    backend.BatchFetcher
	Engine     matching.Engine
	Watermarks *watermark.Store
	Exposures  *exposure.Store
	Calendar   daybucket.Calendar
}

// Option configures the default Manager
type Option func(*defaultManager)

// WithMetrics records cycle metrics
func WithMetrics(m *telemetry.SyncMetrics) Option {
	return func(dm *defaultManager) {
		dm.metrics = m
	}
}

// WithTracer records cycle spans
func WithTracer(tracer trace.Tracer) Option {
	return func(dm *defaultManager) {
		dm.tracer = tracer
	}
}

type defaultManager struct {
	Dependencies
	settings Settings
	budget   Budget
	metrics  *telemetry.SyncMetrics
	tracer   trace.Tracer
}

// NewManager creates the default Manager
func NewManager(deps Dependencies, settings Settings, opts ...Option) Manager {
	m := &defaultManager{
		Dependencies: deps,
		settings:     settings,
		budget:       NewBudget(settings.MatchingCallsPerDay),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// cycle holds the progress of one PerformSync call
type cycle struct {
	now    time.Time
	today  daybucket.DayID
	result *Result

	// markers are the horizons days were consumed at before this cycle
	markers map[daybucket.DayID]time.Time

	// deferred is set once a content day was left for later; the watermark
	// must not pass it
	deferred bool
}

// PerformSync runs one cycle at now
func (m *defaultManager) PerformSync(ctx context.Context, now time.Time) (*Result, *Error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.PerformSync")
	defer span.End()

	res, syncErr := m.performSync(ctx, now)
	if syncErr != nil {
		otel.RecordError(span, syncErr)
	}
	m.metrics.RecordCycle(ctx, time.Since(start), syncErr == nil)
	return res, syncErr
}

func (m *defaultManager) performSync(ctx context.Context, now time.Time) (*Result, *Error) {
	state, err := m.Backend.LoadState(ctx)
	if err != nil {
		return nil, m.fail(ctx, now, status.ErrorKindStorage, 0, fmt.Errorf("failed to load sync state: %w", err))
	}

	markers, err := m.Watermarks.Markers(ctx)
	if err != nil {
		return nil, m.fail(ctx, now, status.ErrorKindStorage, 0, err)
	}

	c := &cycle{
		now:     now,
		today:   m.Calendar.DayOf(now),
		markers: markers,
	}
	from := m.rangeStart(state.Watermark, c.today)
	c.result = &Result{From: from, To: c.today, Watermark: state.Watermark}

	trace.SpanFromContext(ctx).SetAttributes(
		otel.AttrRangeFrom.String(from.String()),
		otel.AttrRangeTo.String(c.today.String()),
	)
	slog.Info("Starting sync cycle", "from", from.String(), "to", c.today.String(),
		"watermark", state.Watermark.PublishedUntil)

	for day := from; day <= c.today; day++ {
		if ctx.Err() != nil {
			c.result.Cancelled = true
			break
		}
		if syncErr := m.processDay(ctx, c, day); syncErr != nil {
			if ctx.Err() != nil {
				c.result.Cancelled = true
				break
			}
			m.refreshWatermark(ctx, c.result)
			slog.Warn("Sync cycle stopped", "day", day.String(), "kind", syncErr.Kind, "error", syncErr.Err)
			return c.result, syncErr
		}
	}

	m.refreshWatermark(ctx, c.result)
	if c.result.Cancelled {
		slog.Info("Sync cycle cancelled", "watermark", c.result.Watermark.PublishedUntil)
		return c.result, nil
	}

	if _, err := m.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		s.LastSyncAt = &now
		return true
	}); err != nil {
		return c.result, m.fail(ctx, now, status.ErrorKindStorage, c.today, fmt.Errorf("failed to save sync time: %w", err))
	}

	if days, err := m.Exposures.List(ctx, now); err == nil {
		m.metrics.RecordExposureDays(ctx, len(days))
	}

	slog.Info("Sync cycle finished",
		"days_fetched", c.result.DaysFetched,
		"matching_calls", c.result.MatchingCalls,
		"deferred", c.result.Deferred,
		"skipped", c.result.Skipped,
		"unchanged", c.result.Unchanged,
		"exposures", c.result.ExposuresRecorded)
	return c.result, nil
}

// rangeStart is the first day to fetch. One day before the watermark day is
// included because a day's batch keeps growing until the day after.
func (m *defaultManager) rangeStart(w status.Watermark, today daybucket.DayID) daybucket.DayID {
	earliest := today.AddDays(-m.settings.LookbackDays)
	if w.IsZero() {
		return earliest
	}
	from := max(m.Calendar.DayOf(w.PublishedUntil).AddDays(-1), earliest)
	return min(from, today)
}

func (m *defaultManager) processDay(ctx context.Context, c *cycle, day daybucket.DayID) *Error {
	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.processDay",
		trace.WithAttributes(otel.AttrDay.String(day.String())))
	defer span.End()

	res := m.Fetcher.Fetch(ctx, day)
	span.SetAttributes(otel.AttrFetchKind.String(res.Kind.String()))
	m.metrics.RecordFetch(ctx, res.Kind.String())

	switch res.Kind {
	case backend.KindTransient:
		return m.fail(ctx, c.now, res.ErrorKind, day, res.Err)

	case backend.KindPermanent:
		c.result.Skipped++
		slog.Warn("Skipping day after permanent failure", "day", day.String(), "kind", res.ErrorKind, "error", res.Err)
		if err := m.recordFailure(ctx, c.now, res.ErrorKind, res.Err); err != nil {
			return m.storageFailure(day, err)
		}
		return nil

	case backend.KindNoContent:
		c.result.DaysFetched++
		if err := m.recordSuccess(ctx, c.now); err != nil {
			return m.storageFailure(day, err)
		}
		return m.consume(ctx, c, day, res.PublishedUntil)

	case backend.KindContent:
		c.result.DaysFetched++
		if err := m.recordSuccess(ctx, c.now); err != nil {
			return m.storageFailure(day, err)
		}
		return m.match(ctx, c, day, res)
	}
	return nil
}

func (m *defaultManager) match(ctx context.Context, c *cycle, day daybucket.DayID, res backend.Result) *Error {
	if seen, ok := c.markers[day]; ok && !res.PublishedUntil.IsZero() && !res.PublishedUntil.After(seen) {
		c.result.Unchanged++
		slog.Debug("Batch unchanged since last match", "day", day.String(), "published_until", res.PublishedUntil)
		return m.consume(ctx, c, day, res.PublishedUntil)
	}

	reserved, err := m.reserve(ctx, c.now)
	if err != nil {
		return m.storageFailure(day, err)
	}
	if !reserved {
		c.result.Deferred++
		c.deferred = true
		slog.Debug("Matching budget exhausted, deferring day", "day", day.String(), "limit", m.budget.Limit())
		return nil
	}

	c.result.MatchingCalls++
	evidence, err := m.Engine.ProvideDiagnosisKeys(ctx, matching.Request{
		Day:        day,
		Batch:      res.Body,
		Token:      uuid.NewString(),
		ValidFrom:  daybucket.RollingStartOf(c.today.AddDays(-m.settings.DaysToConsider)),
		Thresholds: m.settings.Thresholds,
	})
	m.metrics.RecordMatchingCall(ctx, err == nil)
	if err != nil {
		if !errors.Is(err, matching.ErrEngineUnavailable) {
			err = fmt.Errorf("matching failed: %w", err)
		}
		return m.fail(ctx, c.now, status.ErrorKindEngine, day, err)
	}
	trace.SpanFromContext(ctx).SetAttributes(otel.AttrEvidenceCount.Int(len(evidence)))

	recorded, err := m.Exposures.Record(ctx, c.now, evidence...)
	if err != nil {
		return m.storageFailure(day, err)
	}
	c.result.ExposuresRecorded += recorded

	return m.consume(ctx, c, day, res.PublishedUntil)
}

// consume marks day as processed and advances the watermark unless an
// earlier day of this cycle was deferred
func (m *defaultManager) consume(ctx context.Context, c *cycle, day daybucket.DayID, horizon time.Time) *Error {
	var err error
	if c.deferred {
		err = m.Watermarks.Mark(ctx, day, horizon)
	} else {
		_, err = m.Watermarks.Consume(ctx, day, horizon)
	}
	if err != nil {
		return m.storageFailure(day, err)
	}
	return nil
}

func (m *defaultManager) reserve(ctx context.Context, now time.Time) (bool, error) {
	var reserved bool
	_, err := m.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		s.MatchInvocations, reserved = m.budget.Reserve(s.MatchInvocations, now)
		return true
	})
	if err != nil {
		return false, fmt.Errorf("failed to reserve matching call: %w", err)
	}
	return reserved, nil
}

func (m *defaultManager) recordSuccess(ctx context.Context, now time.Time) error {
	_, err := m.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		s.Errors = errstate.RecordSuccess(s.Errors, now)
		return true
	})
	return err
}

func (m *defaultManager) recordFailure(ctx context.Context, now time.Time, kind status.ErrorKind, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	_, err := m.Backend.UpdateState(ctx, func(s *status.SyncState) bool {
		s.Errors = errstate.RecordFailure(s.Errors, now, kind, msg)
		return true
	})
	return err
}

// fail records a transient failure and builds the cycle error
func (m *defaultManager) fail(
	ctx context.Context, now time.Time, kind status.ErrorKind, day daybucket.DayID, cause error,
) *Error {
	if ctx.Err() == nil {
		if err := m.recordFailure(ctx, now, kind, cause); err != nil {
			slog.Error("Failed to record sync failure", "error", err)
		}
	}
	return &Error{
		Err:     cause,
		Message: fmt.Sprintf("sync stopped at %s: %v", day, cause),
		Kind:    kind,
		Day:     day,
	}
}

func (*defaultManager) storageFailure(day daybucket.DayID, err error) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf("sync stopped at %s: %v", day, err),
		Kind:    status.ErrorKindStorage,
		Day:     day,
	}
}

func (m *defaultManager) refreshWatermark(ctx context.Context, res *Result) {
	// a fresh context keeps the final read working after cancellation
	w, err := m.Watermarks.Get(context.WithoutCancel(ctx))
	if err != nil {
		slog.Warn("Failed to read watermark", "error", err)
		return
	}
	res.Watermark = w
}
