// Package daybucket maps instants onto the calendar days and 10-minute
// rolling intervals that the publishing backend groups its batches by.
package daybucket

import (
	"strconv"
	"time"
)

const (
	// IntervalsPerDay is the number of 10-minute rolling intervals in a calendar day
	IntervalsPerDay = 144

	// IntervalLength is the length of a single rolling interval
	IntervalLength = 10 * time.Minute

	secondsPerDay = 24 * 60 * 60
)

// DayID identifies a calendar day as the number of days since 1970-01-01,
// counted on the local date of the Calendar that produced it.
type DayID int64

// AddDays returns the day n days after d (n may be negative)
func (d DayID) AddDays(n int) DayID {
	return d + DayID(n)
}

// String renders the day as an ISO date
func (d DayID) String() string {
	return time.Unix(int64(d)*secondsPerDay, 0).UTC().Format(time.DateOnly)
}

// RollingInterval is the index of a 10-minute interval counted from the epoch day
type RollingInterval int64

// Day returns the day the interval belongs to
func (r RollingInterval) Day() DayID {
	if r < 0 {
		return DayID((int64(r) - IntervalsPerDay + 1) / IntervalsPerDay)
	}
	return DayID(int64(r) / IntervalsPerDay)
}

// Calendar converts instants to days in a fixed timezone.
// The zero value uses time.Local.
type Calendar struct {
	loc *time.Location
}

// NewCalendar returns a calendar for the given location; nil means time.Local
func NewCalendar(loc *time.Location) Calendar {
	return Calendar{loc: loc}
}

// LoadCalendar returns a calendar for an IANA zone name; empty means time.Local
func LoadCalendar(name string) (Calendar, error) {
	if name == "" {
		return NewCalendar(nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return Calendar{}, err
	}
	return NewCalendar(loc), nil
}

// Location returns the timezone of the calendar
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.Local
	}
	return c.loc
}

// DayOf returns the calendar day containing t
func (c Calendar) DayOf(t time.Time) DayID {
	y, m, d := t.In(c.Location()).Date()
	return DayID(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay)
}

// StartOf returns local midnight at the start of day
func (c Calendar) StartOf(day DayID) time.Time {
	y, m, d := time.Unix(int64(day)*secondsPerDay, 0).UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.Location())
}

// EndOf returns the last millisecond of day
func (c Calendar) EndOf(day DayID) time.Time {
	return c.StartOf(day + 1).Add(-time.Millisecond)
}

// Timestamp returns the day's start as epoch milliseconds, the form used in bucket URLs
func (c Calendar) Timestamp(day DayID) int64 {
	return c.StartOf(day).UnixMilli()
}

// TimestampString is Timestamp formatted for a URL path segment
func (c Calendar) TimestampString(day DayID) string {
	return strconv.FormatInt(c.Timestamp(day), 10)
}

// RollingIntervalOf returns the 10-minute interval containing t.
// On days longer than 24 hours the trailing intervals collapse onto the last slot.
func (c Calendar) RollingIntervalOf(t time.Time) RollingInterval {
	day := c.DayOf(t)
	slot := int64(t.Sub(c.StartOf(day)) / IntervalLength)
	if slot >= IntervalsPerDay {
		slot = IntervalsPerDay - 1
	}
	if slot < 0 {
		slot = 0
	}
	return RollingInterval(int64(day)*IntervalsPerDay + slot)
}

// RollingStartOf returns the first rolling interval of day
func RollingStartOf(day DayID) RollingInterval {
	return RollingInterval(int64(day) * IntervalsPerDay)
}
