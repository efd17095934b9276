package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studycal/internal/model"
)

func testCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open("file:" + filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func sampleEntries() []model.ActivityWithTasks {
	return []model.ActivityWithTasks{
		{
			Activity: model.Activity{
				ID:            "A1",
				Start:         time.Date(2024, time.January, 2, 11, 0, 0, 0, time.UTC),
				EndClock:      "12:00",
				Recurrence:    model.RecurrenceRepeating,
				RepeatCount:   4,
				Name:          "Yoga Class",
				Description:   "An hour of gentle yoga",
				Category:      "Health",
				GradientStart: "#ADFF2F",
				GradientEnd:   "#228B22",
			},
			Tasks: []model.Task{
				{ID: "T1", ActivityID: "A1", Name: "bring mat", Index: 0, Status: "open"},
				{ID: "T2", ActivityID: "A1", Name: "book room", Index: 1, Status: "done"},
			},
		},
		{
			Activity: model.Activity{
				ID:         "A2",
				Start:      time.Date(2024, time.January, 20, 16, 0, 0, 0, time.UTC),
				EndClock:   "18:00",
				Recurrence: model.RecurrenceOneTime,
				Name:       "Birthday Party",
				Category:   "Social",
			},
		},
	}
}

func TestReplaceAndReadBack(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceActivities(ctx, "U1", sampleEntries()))

	got, err := c.Activities(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	require.Equal(t, "A1", got[0].Activity.ID)
	require.Equal(t, model.RecurrenceRepeating, got[0].Activity.Recurrence)
	require.Equal(t, 4, got[0].Activity.RepeatCount)
	require.True(t, got[0].Activity.Start.Equal(time.Date(2024, time.January, 2, 11, 0, 0, 0, time.UTC)))
	require.Len(t, got[0].Tasks, 2)
	require.Equal(t, "bring mat", got[0].Tasks[0].Name)

	require.Equal(t, "A2", got[1].Activity.ID)
	require.Empty(t, got[1].Tasks)
}

func TestReplaceDropsStaleEntries(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceActivities(ctx, "U1", sampleEntries()))
	require.NoError(t, c.ReplaceActivities(ctx, "U1", sampleEntries()[:1]))

	got, err := c.Activities(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "A1", got[0].Activity.ID)
}

func TestUsersAreIsolated(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	require.NoError(t, c.ReplaceActivities(ctx, "U1", sampleEntries()))

	got, err := c.Activities(ctx, "U2")
	require.NoError(t, err)
	require.Empty(t, got)

	require.NoError(t, c.ReplaceActivities(ctx, "U2", nil))
	got, err = c.Activities(ctx, "U1")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestLastSync(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	_, ok, err := c.LastSync(ctx, "U1")
	require.NoError(t, err)
	require.False(t, ok)

	before := time.Now().UTC()
	require.NoError(t, c.ReplaceActivities(ctx, "U1", nil))

	synced, ok, err := c.LastSync(ctx, "U1")
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, synced.Before(before.Add(-time.Second)))
}
