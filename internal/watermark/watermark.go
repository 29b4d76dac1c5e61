// Package watermark persists the backend publication horizon up to which
// batches have been fully consumed. The watermark only moves forward.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

// ErrRegression is returned when an advance would move the watermark backward
var ErrRegression = errors.New("watermark regression")

const defaultRetentionDays = 14

// Store reads and advances the watermark kept in the sync state
type Store struct {
	backend       storage.Backend
	calendar      daybucket.Calendar
	retentionDays int
}

// Option configures a Store
type Option func(*Store)

// WithRetentionDays sets how many days of consumption markers are kept
// behind the most recently consumed day
func WithRetentionDays(days int) Option {
	return func(s *Store) {
		if days > 0 {
			s.retentionDays = days
		}
	}
}

// New creates a Store on top of backend
func New(backend storage.Backend, calendar daybucket.Calendar, opts ...Option) *Store {
	s := &Store{
		backend:       backend,
		calendar:      calendar,
		retentionDays: defaultRetentionDays,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the current watermark; the zero value when nothing was consumed
func (s *Store) Get(ctx context.Context) (status.Watermark, error) {
	state, err := s.backend.LoadState(ctx)
	if err != nil {
		return status.Watermark{}, fmt.Errorf("failed to load watermark: %w", err)
	}
	return state.Watermark, nil
}

// Advance moves the watermark to horizon. An equal horizon is a no-op and an
// earlier one leaves the watermark untouched and returns ErrRegression.
func (s *Store) Advance(ctx context.Context, horizon time.Time) error {
	var current time.Time
	_, err := s.backend.UpdateState(ctx, func(state *status.SyncState) bool {
		current = state.Watermark.PublishedUntil
		if !horizon.After(current) {
			return false
		}
		state.Watermark.PublishedUntil = horizon
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to advance watermark: %w", err)
	}
	if horizon.Before(current) {
		slog.Warn("Ignoring watermark regression",
			"current", current.Format(time.RFC3339Nano), "requested", horizon.Format(time.RFC3339Nano))
		return fmt.Errorf("%w: %s is before %s", ErrRegression,
			horizon.Format(time.RFC3339Nano), current.Format(time.RFC3339Nano))
	}
	return nil
}

// Consume records that day was processed against the backend horizon and
// advances the watermark to the earlier of horizon and the end of day.
// Bounding by the end of day keeps the watermark from passing days that have
// not been processed yet. It reports whether the watermark moved.
func (s *Store) Consume(ctx context.Context, day daybucket.DayID, horizon time.Time) (bool, error) {
	target := horizon
	if end := s.calendar.EndOf(day); end.Before(target) {
		target = end
	}

	var advanced bool
	_, err := s.backend.UpdateState(ctx, func(state *status.SyncState) bool {
		s.mark(state, day, horizon)
		if target.After(state.Watermark.PublishedUntil) {
			state.Watermark.PublishedUntil = target
			advanced = true
		}
		return true
	})
	if err != nil {
		return false, fmt.Errorf("failed to consume day %s: %w", day, err)
	}
	return advanced, nil
}

// Mark records the consumption marker of day without moving the watermark
func (s *Store) Mark(ctx context.Context, day daybucket.DayID, horizon time.Time) error {
	_, err := s.backend.UpdateState(ctx, func(state *status.SyncState) bool {
		s.mark(state, day, horizon)
		return true
	})
	if err != nil {
		return fmt.Errorf("failed to mark day %s: %w", day, err)
	}
	return nil
}

// Markers returns the consumption markers, keyed by day
func (s *Store) Markers(ctx context.Context) (map[daybucket.DayID]time.Time, error) {
	state, err := s.backend.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load markers: %w", err)
	}
	if state.ConsumedDays == nil {
		return map[daybucket.DayID]time.Time{}, nil
	}
	return state.ConsumedDays, nil
}

// mark stores the marker and drops markers outside the retention window
func (s *Store) mark(state *status.SyncState, day daybucket.DayID, horizon time.Time) {
	if state.ConsumedDays == nil {
		state.ConsumedDays = make(map[daybucket.DayID]time.Time)
	}
	state.ConsumedDays[day] = horizon

	newest := slices.Max(slices.Collect(maps.Keys(state.ConsumedDays)))
	oldest := newest.AddDays(-s.retentionDays)
	maps.DeleteFunc(state.ConsumedDays, func(d daybucket.DayID, _ time.Time) bool {
		return d < oldest
	})
}
