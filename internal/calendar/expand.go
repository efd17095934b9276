package calendar

import (
	"time"

	"github.com/teambition/rrule-go"

	applog "studycal/internal/log"
	"studycal/internal/model"
)

// maxOccurrencesPerActivity is a safety cap so an indefinite rule can never
// flood a window, whatever the server sends back.
const maxOccurrencesPerActivity = 1000

// Occurrence is a single concrete instance of an activity inside the
// displayed window, normalized to the display timezone.
type Occurrence struct {
	ActivityID  string
	Name        string
	Description string
	Category    string

	GradientStart string
	GradientEnd   string

	// Start is the instance start in the display timezone. EndClock is the
	// activity's end time of day ("HH:MM"), carried through unchanged.
	Start    time.Time
	EndClock string
}

// Expand turns activities into concrete occurrences within the inclusive
// civil-date window [start, end]. One-time activities yield at most one
// occurrence; repeating and indefinite activities expand as weekly rules
// anchored at their start instant.
func Expand(activities []model.Activity, start, end time.Time, loc *time.Location) []Occurrence {
	if loc == nil {
		loc = time.Local
	}

	// The window bounds are civil midnights; stretch the upper bound to the
	// last instant of its day so same-day starts are kept.
	windowStart := start
	windowEnd := end.AddDate(0, 0, 1).Add(-time.Nanosecond)

	out := make([]Occurrence, 0)
	for _, act := range activities {
		switch act.Recurrence {
		case model.RecurrenceRepeating, model.RecurrenceIndefinite:
			out = append(out, expandWeekly(act, windowStart, windowEnd, loc)...)
		default:
			// One-time: bucket by local civil date, not instant equality,
			// so midnight-boundary starts land on the right day.
			local := act.Start.In(loc)
			if !local.Before(windowStart) && !local.After(windowEnd) {
				out = append(out, makeOccurrence(act, local))
			}
		}
	}
	return out
}

// expandWeekly expands a repeating or indefinite activity via an RRULE
// anchored at the activity start.
func expandWeekly(act model.Activity, windowStart, windowEnd time.Time, loc *time.Location) []Occurrence {
	opt := rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: act.Start,
	}
	if act.Recurrence == model.RecurrenceRepeating {
		count := act.RepeatCount
		if count <= 0 {
			count = 1
		}
		opt.Count = count
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		applog.Error("recurrence rule rejected, treating as one-time", err, "activity_id", act.ID)
		local := act.Start.In(loc)
		if !local.Before(windowStart) && !local.After(windowEnd) {
			return []Occurrence{makeOccurrence(act, local)}
		}
		return nil
	}

	// Clip the iteration to the window in the activity's own location so
	// the rule walks local wall-clock weeks, then normalize for display.
	occTimes := r.Between(windowStart.In(act.Start.Location()), windowEnd.In(act.Start.Location()), true)
	if len(occTimes) > maxOccurrencesPerActivity {
		applog.Warn("recurrence expansion capped",
			"activity_id", act.ID,
			"cap", maxOccurrencesPerActivity,
		)
		occTimes = occTimes[:maxOccurrencesPerActivity]
	}

	out := make([]Occurrence, 0, len(occTimes))
	for _, t := range occTimes {
		out = append(out, makeOccurrence(act, t.In(loc)))
	}
	return out
}

func makeOccurrence(act model.Activity, start time.Time) Occurrence {
	return Occurrence{
		ActivityID:    act.ID,
		Name:          act.Name,
		Description:   act.Description,
		Category:      act.Category,
		GradientStart: act.GradientStart,
		GradientEnd:   act.GradientEnd,
		Start:         start,
		EndClock:      act.EndClock,
	}
}
