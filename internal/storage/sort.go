package storage

import (
	"slices"
	"time"

	"github.com/proxtrace/exposure-sync/internal/status"
)

// SortHistory orders entries oldest first, breaking ties by ID
func SortHistory(entries []status.HistoryEntry) {
	slices.SortStableFunc(entries, func(a, b status.HistoryEntry) int {
		if c := a.At.Compare(b.At); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

// SortExposureDays orders days ascending
func SortExposureDays(days []status.ExposureDay) {
	slices.SortFunc(days, func(a, b status.ExposureDay) int {
		switch {
		case a.Day < b.Day:
			return -1
		case a.Day > b.Day:
			return 1
		}
		return 0
	})
}

// HistoryBefore splits entries into those older than cutoff and the rest
func HistoryBefore(entries []status.HistoryEntry, cutoff time.Time) (older, kept []status.HistoryEntry) {
	for _, e := range entries {
		if e.At.Before(cutoff) {
			older = append(older, e)
		} else {
			kept = append(kept, e)
		}
	}
	return older, kept
}
