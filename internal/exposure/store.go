package exposure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/proxtrace/exposure-sync/internal/daybucket"
	"github.com/proxtrace/exposure-sync/internal/matching"
	"github.com/proxtrace/exposure-sync/internal/status"
	"github.com/proxtrace/exposure-sync/internal/storage"
)

// Store keeps at most one ExposureDay per calendar day
type Store struct {
	backend    storage.Backend
	calendar   daybucket.Calendar
	policy     Policy
	daysToKeep int
}

// NewStore creates a Store; records older than daysToKeep days are pruned
func NewStore(backend storage.Backend, calendar daybucket.Calendar, policy Policy, daysToKeep int) *Store {
	return &Store{
		backend:    backend,
		calendar:   calendar,
		policy:     policy,
		daysToKeep: daysToKeep,
	}
}

// Policy returns the policy evidence is evaluated with
func (s *Store) Policy() Policy {
	return s.policy
}

func (s *Store) cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(s.daysToKeep) * 24 * time.Hour)
}

// Record evaluates evidence at now and upserts an exposure day for every
// qualifying entry, then prunes expired days. It returns the number of
// qualifying entries.
func (s *Store) Record(ctx context.Context, now time.Time, evidence ...matching.Evidence) (int, error) {
	today := s.calendar.DayOf(now)

	var fresh []status.ExposureDay
	for _, ev := range evidence {
		weighted, ok := s.policy.Evaluate(ev)
		if !ok {
			continue
		}
		fresh = append(fresh, status.ExposureDay{
			Day:            today.AddDays(-ev.DaysSinceLastExposure),
			ReportedAt:     now,
			DurationSignal: weighted,
		})
	}

	cutoff := s.cutoff(now)
	err := s.backend.UpdateExposureDays(ctx, func(days []status.ExposureDay) ([]status.ExposureDay, bool) {
		byDay := make(map[daybucket.DayID]status.ExposureDay, len(days)+len(fresh))
		for _, d := range days {
			byDay[d.Day] = d
		}
		changed := false
		for _, d := range fresh {
			if existing, ok := byDay[d.Day]; ok && !prefer(d, existing) {
				continue
			}
			byDay[d.Day] = d
			changed = true
		}

		out := make([]status.ExposureDay, 0, len(byDay))
		for _, d := range byDay {
			if d.ReportedAt.Before(cutoff) {
				changed = true
				continue
			}
			out = append(out, d)
		}
		storage.SortExposureDays(out)
		return out, changed
	})
	if err != nil {
		return 0, fmt.Errorf("failed to record exposure days: %w", err)
	}

	if len(fresh) > 0 {
		slog.Info("Recorded exposure days", "count", len(fresh), "today", today.String())
	}
	return len(fresh), nil
}

// prefer reports whether candidate replaces existing for the same day: the
// later report wins, and a longer duration breaks ties.
func prefer(candidate, existing status.ExposureDay) bool {
	if !candidate.ReportedAt.Equal(existing.ReportedAt) {
		return candidate.ReportedAt.After(existing.ReportedAt)
	}
	return candidate.DurationSignal > existing.DurationSignal
}

// List prunes expired days and returns the rest in ascending day order
func (s *Store) List(ctx context.Context, now time.Time) ([]status.ExposureDay, error) {
	cutoff := s.cutoff(now)

	var live []status.ExposureDay
	err := s.backend.UpdateExposureDays(ctx, func(days []status.ExposureDay) ([]status.ExposureDay, bool) {
		live = live[:0]
		for _, d := range days {
			if !d.ReportedAt.Before(cutoff) {
				live = append(live, d)
			}
		}
		storage.SortExposureDays(live)
		return live, len(live) != len(days)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list exposure days: %w", err)
	}
	return live, nil
}

// Reset removes every exposure day
func (s *Store) Reset(ctx context.Context) error {
	err := s.backend.UpdateExposureDays(ctx, func(days []status.ExposureDay) ([]status.ExposureDay, bool) {
		return nil, len(days) > 0
	})
	if err != nil {
		return fmt.Errorf("failed to reset exposure days: %w", err)
	}
	return nil
}
