// Package calendar turns a reference month and an activity list into a
// renderable day grid. Everything here is a pure data transformation:
// navigating months is a full recomputation, no state is kept.
package calendar

import (
	"sort"
	"time"

	"studycal/internal/model"
)

// civilDateLayout keys buckets by calendar date, independent of
// time-of-day and zone offset.
const civilDateLayout = "2006-01-02"

// Day is one grid cell: a date plus the activity occurrences that fall on
// it by civil date in the display zone.
type Day struct {
	// Date is midnight of the civil date in the display zone.
	Date time.Time
	// InMonth is false for the leading/trailing days pulled in from the
	// adjacent months to complete the first and last week.
	InMonth bool
	// Occurrences holds the activity instances bucketed onto this date.
	Occurrences []Occurrence
}

// Grid is the full visible window for one reference month. Its length is
// always a whole number of 7-day weeks.
type Grid struct {
	Year  int
	Month time.Month
	Days  []Day
}

// Weeks returns the day grid split into rows of seven.
func (g Grid) Weeks() [][]Day {
	weeks := make([][]Day, 0, len(g.Days)/7)
	for i := 0; i+7 <= len(g.Days); i += 7 {
		weeks = append(weeks, g.Days[i:i+7])
	}
	return weeks
}

// MonthWindow computes the inclusive civil-date range displayed for the
// month containing ref: the first day of the month extended backward to
// weekStart, and the last day extended forward to the end of that week.
// Both bounds are midnights in ref's location.
func MonthWindow(ref time.Time, weekStart time.Weekday) (start, end time.Time) {
	loc := ref.Location()
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, loc)
	last := first.AddDate(0, 1, -1)

	back := (int(first.Weekday()) - int(weekStart) + 7) % 7
	weekEnd := time.Weekday((int(weekStart) + 6) % 7)
	forward := (int(weekEnd) - int(last.Weekday()) + 7) % 7

	return first.AddDate(0, 0, -back), last.AddDate(0, 0, forward)
}

// BuildGrid expands activities into occurrences over the visible window of
// ref's month and buckets them by civil date in loc. An empty activity
// list yields a grid with all-empty buckets.
func BuildGrid(ref time.Time, weekStart time.Weekday, activities []model.Activity, loc *time.Location) Grid {
	if loc == nil {
		loc = time.Local
	}
	ref = ref.In(loc)

	start, end := MonthWindow(ref, weekStart)

	buckets := make(map[string][]Occurrence)
	for _, occ := range Expand(activities, start, end, loc) {
		key := occ.Start.In(loc).Format(civilDateLayout)
		buckets[key] = append(buckets[key], occ)
	}

	grid := Grid{Year: ref.Year(), Month: ref.Month()}
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		occs := buckets[day.Format(civilDateLayout)]
		sort.SliceStable(occs, func(i, j int) bool {
			return occs[i].Start.Before(occs[j].Start)
		})
		grid.Days = append(grid.Days, Day{
			Date:        day,
			InMonth:     day.Month() == ref.Month(),
			Occurrences: occs,
		})
	}
	return grid
}
