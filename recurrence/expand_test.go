package recurrence_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carecircle/care-engine/recurrence"
)

func newYork(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	return loc
}

// =============================================================================
// DAILY / WEEKLY
// =============================================================================

func TestBetween_DailyWithinHorizon(t *testing.T) {
	// GIVEN: Daily 09:00 reminder created at 08:00 local
	// WHEN: Expanding a 24h window from creation
	// THEN: Only today's 09:00 fires; tomorrow's 09:00 is 25h out

	loc := newYork(t)
	now := time.Date(2024, time.January, 1, 8, 0, 0, 0, loc)
	rule := recurrence.MustParse("FREQ=DAILY;BYHOUR=9;BYMINUTE=0")

	got := rule.Between(now, loc, now, now.Add(24*time.Hour))

	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(time.Date(2024, time.January, 1, 9, 0, 0, 0, loc)))
}

func TestBetween_DailyKeepsWallClockAcrossDST(t *testing.T) {
	// GIVEN: Daily 09:00 in New York, window spanning the March 10 2024 spring-forward
	// THEN: Every instant reads 09:00 local, and the UTC offset moves by one hour

	loc := newYork(t)
	anchor := time.Date(2024, time.March, 1, 0, 0, 0, 0, loc)
	rule := recurrence.MustParse("FREQ=DAILY;BYHOUR=9;BYMINUTE=0")

	from := time.Date(2024, time.March, 8, 0, 0, 0, 0, loc)
	to := time.Date(2024, time.March, 12, 23, 0, 0, 0, loc)
	got := rule.Between(anchor, loc, from, to)

	require.Len(t, got, 5)
	for _, inst := range got {
		local := inst.In(loc)
		assert.Equal(t, 9, local.Hour(), "instant %s", inst)
		assert.Equal(t, 0, local.Minute(), "instant %s", inst)
	}

	assert.Equal(t, 14, got[0].UTC().Hour(), "EST: 09:00 = 14:00Z")
	assert.Equal(t, 13, got[4].UTC().Hour(), "EDT: 09:00 = 13:00Z")
}

func TestBetween_DailyFallBack(t *testing.T) {
	loc := newYork(t)
	anchor := time.Date(2024, time.October, 1, 0, 0, 0, 0, loc)
	rule := recurrence.MustParse("FREQ=DAILY;BYHOUR=9")

	from := time.Date(2024, time.November, 2, 0, 0, 0, 0, loc)
	to := time.Date(2024, time.November, 4, 0, 0, 0, 0, loc)
	got := rule.Between(anchor, loc, from, to)

	require.Len(t, got, 2)
	assert.Equal(t, 9, got[1].In(loc).Hour())
	assert.Equal(t, 25*time.Hour, got[1].Sub(got[0]))
}

func TestBetween_DailyInterval(t *testing.T) {
	anchor := time.Date(2025, time.June, 1, 7, 0, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=DAILY;INTERVAL=3;BYHOUR=8")

	got := rule.Between(anchor, time.UTC, anchor, anchor.AddDate(0, 0, 10))

	require.Len(t, got, 4)
	for i, inst := range got {
		assert.Equal(t, 1+3*i, inst.Day())
	}
}

func TestBetween_DailyDefaultsToAnchorTime(t *testing.T) {
	anchor := time.Date(2025, time.June, 1, 7, 45, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=DAILY")

	got := rule.Between(anchor, time.UTC, anchor, anchor.AddDate(0, 0, 2))

	require.Len(t, got, 3)
	for _, inst := range got {
		assert.Equal(t, 7, inst.Hour())
		assert.Equal(t, 45, inst.Minute())
	}
}

func TestBetween_WeeklyByDay(t *testing.T) {
	// 2025-06-02 is a Monday
	anchor := time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=WEEKLY;BYDAY=MO,WE,FR;BYHOUR=8;BYMINUTE=30")

	got := rule.Between(anchor, time.UTC, anchor, anchor.AddDate(0, 0, 7).Add(9*time.Hour))

	require.Len(t, got, 4)
	want := []time.Weekday{time.Monday, time.Wednesday, time.Friday, time.Monday}
	for i, inst := range got {
		assert.Equal(t, want[i], inst.Weekday())
		assert.Equal(t, 8, inst.Hour())
		assert.Equal(t, 30, inst.Minute())
	}
}

func TestBetween_WeeklyIntervalSkipsWeeks(t *testing.T) {
	// Anchor on a Wednesday; fortnightly on Mondays counts from the anchor's week
	anchor := time.Date(2025, time.June, 4, 0, 0, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO;BYHOUR=10")

	got := rule.Between(anchor, time.UTC, anchor, anchor.AddDate(0, 0, 35))

	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2025, time.June, 16, 10, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2025, time.June, 30, 10, 0, 0, 0, time.UTC), got[1])
}

func TestBetween_WeeklyWithoutByDayUsesAnchorWeekday(t *testing.T) {
	anchor := time.Date(2025, time.June, 4, 18, 0, 0, 0, time.UTC) // Wednesday
	rule := recurrence.MustParse("FREQ=WEEKLY")

	got := rule.Between(anchor, time.UTC, anchor, anchor.AddDate(0, 0, 14))

	require.Len(t, got, 3)
	for _, inst := range got {
		assert.Equal(t, time.Wednesday, inst.Weekday())
	}
}

// =============================================================================
// HOURLY
// =============================================================================

func TestBetween_HourlyStepsFromAnchor(t *testing.T) {
	anchor := time.Date(2025, time.June, 1, 6, 15, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=HOURLY;INTERVAL=4")

	from := time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	got := rule.Between(anchor, time.UTC, from, from.Add(12*time.Hour))

	require.Len(t, got, 3)
	assert.Equal(t, time.Date(2025, time.June, 1, 14, 15, 0, 0, time.UTC), got[0].UTC())
	assert.Equal(t, time.Date(2025, time.June, 1, 18, 15, 0, 0, time.UTC), got[1].UTC())
	assert.Equal(t, time.Date(2025, time.June, 1, 22, 15, 0, 0, time.UTC), got[2].UTC())
}

func TestBetween_HourlyIsAbsoluteAcrossDST(t *testing.T) {
	loc := newYork(t)
	anchor := time.Date(2024, time.March, 10, 0, 0, 0, 0, loc)
	rule := recurrence.MustParse("FREQ=HOURLY;INTERVAL=2")

	got := rule.Between(anchor, loc, anchor, anchor.Add(6*time.Hour))

	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.Equal(t, 2*time.Hour, got[i].Sub(got[i-1]))
	}
}

func TestBetween_NothingBeforeAnchor(t *testing.T) {
	anchor := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=DAILY;BYHOUR=9")

	got := rule.Between(anchor, time.UTC, anchor.AddDate(0, 0, -5), anchor.AddDate(0, 0, 1))

	require.Len(t, got, 1)
	assert.Equal(t, 11, got[0].Day())
}

func TestBetween_EmptyWindow(t *testing.T) {
	anchor := time.Date(2025, time.June, 10, 12, 0, 0, 0, time.UTC)
	rule := recurrence.MustParse("FREQ=HOURLY")

	assert.Empty(t, rule.Between(anchor, time.UTC, anchor, anchor.Add(-time.Hour)))
}
