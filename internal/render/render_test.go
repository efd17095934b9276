package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studycal/internal/calendar"
	"studycal/internal/model"
)

func TestMonthRendersHeaderAndDays(t *testing.T) {
	ref := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	activities := []model.Activity{{
		ID:         "A1",
		Name:       "Team Meeting",
		Start:      time.Date(2024, time.January, 24, 19, 0, 0, 0, time.UTC),
		Recurrence: model.RecurrenceOneTime,
	}}

	grid := calendar.BuildGrid(ref, time.Monday, activities, time.UTC)
	out := Month(grid)

	require.Contains(t, out, "January 2024")
	require.Contains(t, out, "Mon")
	require.Contains(t, out, "Sun")
	require.Contains(t, out, "Team Meeting")
	// Title and header lines plus cellHeight lines per week row.
	require.Equal(t, 2+len(grid.Weeks())*cellHeight, strings.Count(out, "\n"))
}

func TestMonthHonorsSundayWeekStart(t *testing.T) {
	ref := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	grid := calendar.BuildGrid(ref, time.Sunday, nil, time.UTC)

	out := Month(grid)
	require.Less(t, strings.Index(out, "Sun"), strings.Index(out, "Mon"))
}
