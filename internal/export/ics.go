// Package export serializes the user's activity list as an iCalendar feed
// so external calendar apps can subscribe to it.
package export

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"studycal/internal/model"
)

// prodID identifies this client in exported calendars.
const prodID = "-//studycal//calendar export//EN"

// WriteICS writes one VEVENT per activity to w. Repeating and indefinite
// activities carry a weekly RRULE so subscribing apps expand them
// themselves. Times are emitted in loc.
func WriteICS(w io.Writer, activities []model.Activity, loc *time.Location) error {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(prodID)

	for _, act := range activities {
		ev := cal.AddEvent(act.ID)

		start := act.Start.In(loc)
		ev.SetStartAt(start)
		ev.SetEndAt(eventEnd(act, start))
		ev.SetSummary(act.Name)
		if act.Description != "" {
			ev.SetDescription(act.Description)
		}
		if act.Category != "" {
			ev.SetProperty(ical.ComponentPropertyCategories, act.Category)
		}

		switch act.Recurrence {
		case model.RecurrenceRepeating:
			count := act.RepeatCount
			if count <= 0 {
				count = 1
			}
			ev.AddRrule(fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", count))
		case model.RecurrenceIndefinite:
			ev.AddRrule("FREQ=WEEKLY")
		}
	}

	return cal.SerializeTo(w)
}

// eventEnd resolves the activity's "HH:MM" end clock against the start
// date. An unparsable or missing clock falls back to a one-hour slot.
func eventEnd(act model.Activity, start time.Time) time.Time {
	clock, err := time.Parse("15:04", act.EndClock)
	if err != nil {
		return start.Add(time.Hour)
	}

	end := time.Date(start.Year(), start.Month(), start.Day(),
		clock.Hour(), clock.Minute(), 0, 0, start.Location())
	if !end.After(start) {
		return start.Add(time.Hour)
	}
	return end
}
