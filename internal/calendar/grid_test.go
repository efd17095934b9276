package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studycal/internal/model"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestMonthWindowWholeWeeks(t *testing.T) {
	for month := time.January; month <= time.December; month++ {
		for _, ws := range []time.Weekday{time.Monday, time.Sunday} {
			start, end := MonthWindow(date(2024, month, 15), ws)

			require.Equal(t, ws, start.Weekday(), "month %s", month)
			days := int(end.Sub(start).Hours()/24) + 1
			require.Zero(t, days%7, "month %s window is %d days", month, days)

			first := date(2024, month, 1)
			require.False(t, start.After(first))
			require.False(t, end.Before(first.AddDate(0, 1, -1)))
		}
	}
}

func TestBuildGridEmptyActivities(t *testing.T) {
	grid := BuildGrid(date(2024, time.February, 10), time.Monday, nil, time.UTC)

	require.Zero(t, len(grid.Days)%7)
	for _, day := range grid.Days {
		require.Empty(t, day.Occurrences)
	}
}

func TestBuildGridBucketsOneTimeActivityExactlyOnce(t *testing.T) {
	act := model.Activity{
		ID:         "a1",
		Name:       "Doctor's Appointment",
		Start:      time.Date(2024, time.January, 14, 14, 0, 0, 0, time.UTC),
		Recurrence: model.RecurrenceOneTime,
	}

	grid := BuildGrid(date(2024, time.January, 1), time.Monday, []model.Activity{act}, time.UTC)

	hits := 0
	for _, day := range grid.Days {
		for _, occ := range day.Occurrences {
			require.Equal(t, "a1", occ.ActivityID)
			require.Equal(t, date(2024, time.January, 14), day.Date)
			hits++
		}
	}
	require.Equal(t, 1, hits)
}

func TestBuildGridActivityOutsideWindowAppearsNowhere(t *testing.T) {
	act := model.Activity{
		ID:         "a1",
		Start:      time.Date(2024, time.June, 14, 9, 0, 0, 0, time.UTC),
		Recurrence: model.RecurrenceOneTime,
	}

	grid := BuildGrid(date(2024, time.January, 1), time.Monday, []model.Activity{act}, time.UTC)

	for _, day := range grid.Days {
		require.Empty(t, day.Occurrences)
	}
}

func TestBuildGridMidnightBucketsByCivilDate(t *testing.T) {
	// Starts exactly at midnight local time; must land on that civil date.
	act := model.Activity{
		ID:         "mid",
		Start:      time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC),
		Recurrence: model.RecurrenceOneTime,
	}

	grid := BuildGrid(date(2024, time.January, 1), time.Monday, []model.Activity{act}, time.UTC)

	for _, day := range grid.Days {
		if day.Date.Equal(date(2024, time.January, 10)) {
			require.Len(t, day.Occurrences, 1)
		} else {
			require.Empty(t, day.Occurrences)
		}
	}
}

func TestBuildGridAdjacentMonthDaysMarked(t *testing.T) {
	// January 2024 starts on a Monday; with Sunday week start the grid pulls
	// in Dec 31.
	grid := BuildGrid(date(2024, time.January, 15), time.Sunday, nil, time.UTC)

	require.Equal(t, date(2023, time.December, 31), grid.Days[0].Date)
	require.False(t, grid.Days[0].InMonth)
	require.True(t, grid.Days[1].InMonth)
}

func TestExpandRepeatingWeekly(t *testing.T) {
	act := model.Activity{
		ID:          "rep",
		Start:       time.Date(2024, time.January, 2, 11, 0, 0, 0, time.UTC), // a Tuesday
		Recurrence:  model.RecurrenceRepeating,
		RepeatCount: 3,
	}

	occs := Expand([]model.Activity{act}, date(2024, time.January, 1), date(2024, time.February, 4), time.UTC)

	require.Len(t, occs, 3)
	for i, occ := range occs {
		want := act.Start.AddDate(0, 0, 7*i)
		require.Equal(t, want, occ.Start)
		require.Equal(t, time.Tuesday, occ.Start.Weekday())
	}
}

func TestExpandIndefiniteFillsEveryMatchingWeekday(t *testing.T) {
	act := model.Activity{
		ID:         "inf",
		Start:      time.Date(2023, time.November, 6, 8, 0, 0, 0, time.UTC), // a Monday
		Recurrence: model.RecurrenceIndefinite,
	}

	start, end := MonthWindow(date(2024, time.January, 1), time.Monday)
	occs := Expand([]model.Activity{act}, start, end, time.UTC)

	// Every Monday in the displayed window carries one occurrence.
	mondays := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Monday {
			mondays++
		}
	}
	require.Equal(t, mondays, len(occs))
	for _, occ := range occs {
		require.Equal(t, time.Monday, occ.Start.Weekday())
	}
}

func TestExpandRepeatingBeforeWindowContributesNothing(t *testing.T) {
	act := model.Activity{
		ID:          "old",
		Start:       time.Date(2023, time.March, 1, 9, 0, 0, 0, time.UTC),
		Recurrence:  model.RecurrenceRepeating,
		RepeatCount: 2,
	}

	occs := Expand([]model.Activity{act}, date(2024, time.January, 1), date(2024, time.January, 31), time.UTC)
	require.Empty(t, occs)
}
