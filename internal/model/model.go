package model

import (
	"strings"
	"time"
)

// Credentials identifies an authenticated session against the planner API.
// An empty AccessToken means the session is unauthenticated.
type Credentials struct {
	UserID      string `json:"userUid"`
	AccessToken string `json:"accessToken"`
}

// Valid reports whether the credentials can authorize a request.
func (c Credentials) Valid() bool {
	return c.AccessToken != ""
}

// Recurrence describes how often an activity repeats.
type Recurrence string

const (
	// RecurrenceOneTime is a single occurrence at the activity start.
	RecurrenceOneTime Recurrence = "one-time"
	// RecurrenceRepeating repeats weekly a fixed number of times.
	RecurrenceRepeating Recurrence = "repeating"
	// RecurrenceIndefinite repeats weekly without an end.
	RecurrenceIndefinite Recurrence = "indefinite"
)

// ParseRecurrence maps a server-provided recurrence string onto a known
// Recurrence value. Unknown values degrade to one-time so that a bad record
// never multiplies across the calendar.
func ParseRecurrence(v string) Recurrence {
	switch Recurrence(strings.ToLower(strings.TrimSpace(v))) {
	case RecurrenceRepeating:
		return RecurrenceRepeating
	case RecurrenceIndefinite:
		return RecurrenceIndefinite
	default:
		return RecurrenceOneTime
	}
}

// Activity is a scheduled entry owned by the backend. The client holds a
// read-only copy fetched per user.
type Activity struct {
	ID          string     `json:"activityUid"`
	Start       time.Time  `json:"startTime"`
	EndClock    string     `json:"endTime"` // "HH:MM" time of day
	Recurrence  Recurrence `json:"type"`
	RepeatCount int        `json:"repeatCount,omitempty"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Category    string     `json:"category"`

	// GradientStart / GradientEnd are hex colors used when rendering the
	// day cell that the activity lands in.
	GradientStart string `json:"hexGradientStart"`
	GradientEnd   string `json:"hexGradientEnd"`
}

// Task is a checklist item attached to an activity.
type Task struct {
	ID          string `json:"taskUid"`
	ActivityID  string `json:"activityUid"`
	Priority    string `json:"priorityLevel"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Index       int    `json:"taskIndex"`
	Color       string `json:"hexColor"`
	Status      string `json:"status"`
}

// ActivityWithTasks bundles an activity with its fetched task list.
type ActivityWithTasks struct {
	Activity Activity `json:"activity"`
	Tasks    []Task   `json:"tasks"`
}

// UserProfile holds the account fields shown on the profile header.
type UserProfile struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	RegisterDate string `json:"registerDate"`
	PhoneNumber  string `json:"phoneNumber"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	StudyLevel   string `json:"studyLevel"`
}

// Registration carries the fields submitted when creating an account.
type Registration struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	StudyLevel  string `json:"studyLevel"`
}
