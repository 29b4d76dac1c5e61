package daybucket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	require.NoError(t, err)
	return loc
}

func TestCalendar_DayOf(t *testing.T) {
	t.Parallel()

	zurich := mustLoad(t, "Europe/Zurich")
	newYork := mustLoad(t, "America/New_York")

	tests := []struct {
		name     string
		loc      *time.Location
		instant  time.Time
		expected string
	}{
		{
			name:     "utc midnight",
			loc:      time.UTC,
			instant:  time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC),
			expected: "2020-06-01",
		},
		{
			name:     "utc last millisecond",
			loc:      time.UTC,
			instant:  time.Date(2020, 6, 1, 23, 59, 59, int(999*time.Millisecond), time.UTC),
			expected: "2020-06-01",
		},
		{
			name:     "late utc evening is next day in zurich",
			loc:      zurich,
			instant:  time.Date(2020, 6, 1, 22, 30, 0, 0, time.UTC),
			expected: "2020-06-02",
		},
		{
			name:     "early utc morning is previous day in new york",
			loc:      newYork,
			instant:  time.Date(2020, 6, 2, 2, 0, 0, 0, time.UTC),
			expected: "2020-06-01",
		},
		{
			name:     "before epoch",
			loc:      time.UTC,
			instant:  time.Date(1969, 12, 31, 12, 0, 0, 0, time.UTC),
			expected: "1969-12-31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cal := NewCalendar(tt.loc)
			assert.Equal(t, tt.expected, cal.DayOf(tt.instant).String())
		})
	}
}

func TestCalendar_DayOfIsStableWithinDay(t *testing.T) {
	t.Parallel()

	cal := NewCalendar(mustLoad(t, "Europe/Zurich"))
	day := cal.DayOf(time.Date(2020, 10, 25, 12, 0, 0, 0, time.UTC))

	// 2020-10-25 is a 25 hour day in Zurich
	for ts := cal.StartOf(day); !ts.After(cal.EndOf(day)); ts = ts.Add(7 * time.Minute) {
		require.Equal(t, day, cal.DayOf(ts), "instant %s", ts)
	}
	assert.Equal(t, day+1, cal.DayOf(cal.EndOf(day).Add(time.Millisecond)))
	assert.Equal(t, 25*time.Hour, cal.StartOf(day+1).Sub(cal.StartOf(day)))
}

func TestCalendar_StartAndEnd(t *testing.T) {
	t.Parallel()

	cal := NewCalendar(time.UTC)
	day := cal.DayOf(time.Date(2020, 6, 1, 15, 0, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), cal.StartOf(day))
	assert.Equal(t, time.Date(2020, 6, 1, 23, 59, 59, int(999*time.Millisecond), time.UTC), cal.EndOf(day))
	assert.Equal(t, int64(1590969600000), cal.Timestamp(day))
	assert.Equal(t, "1590969600000", cal.TimestampString(day))
	assert.Equal(t, "2020-05-30", day.AddDays(-2).String())
}

func TestCalendar_RollingIntervalOf(t *testing.T) {
	t.Parallel()

	cal := NewCalendar(time.UTC)
	day := cal.DayOf(time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name     string
		instant  time.Time
		expected RollingInterval
	}{
		{"midnight", time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC), RollingStartOf(day)},
		{"nine minutes", time.Date(2020, 6, 1, 0, 9, 59, 0, time.UTC), RollingStartOf(day)},
		{"ten minutes", time.Date(2020, 6, 1, 0, 10, 0, 0, time.UTC), RollingStartOf(day) + 1},
		{"last slot", time.Date(2020, 6, 1, 23, 55, 0, 0, time.UTC), RollingStartOf(day) + 143},
		{"next day", time.Date(2020, 6, 2, 0, 0, 0, 0, time.UTC), RollingStartOf(day + 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := cal.RollingIntervalOf(tt.instant)
			assert.Equal(t, tt.expected, got)
			assert.Equal(t, cal.DayOf(tt.instant), got.Day())
		})
	}
}

func TestCalendar_RollingIntervalOnLongDay(t *testing.T) {
	t.Parallel()

	cal := NewCalendar(mustLoad(t, "Europe/Zurich"))
	day := cal.DayOf(time.Date(2020, 10, 25, 12, 0, 0, 0, time.UTC))

	last := cal.RollingIntervalOf(cal.EndOf(day))
	assert.Equal(t, RollingStartOf(day)+IntervalsPerDay-1, last)
	assert.Equal(t, day, last.Day())
}

func TestRollingInterval_DayBeforeEpoch(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DayID(-1), RollingInterval(-1).Day())
	assert.Equal(t, DayID(-1), RollingInterval(-144).Day())
	assert.Equal(t, DayID(-2), RollingInterval(-145).Day())
	assert.Equal(t, DayID(0), RollingInterval(143).Day())
}

func TestLoadCalendar(t *testing.T) {
	t.Parallel()

	cal, err := LoadCalendar("")
	require.NoError(t, err)
	assert.Equal(t, time.Local, cal.Location())

	cal, err = LoadCalendar("Asia/Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", cal.Location().String())

	_, err = LoadCalendar("Not/AZone")
	assert.Error(t, err)
}
