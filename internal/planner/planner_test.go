package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studycal/internal/api"
	"studycal/internal/model"
	"studycal/internal/session"
)

type stubGateway struct {
	refresh   api.AuthResult
	responses map[string]api.Response
	calls     []string
	onDo      func()
}

func (s *stubGateway) RefreshToken(context.Context) api.AuthResult {
	s.calls = append(s.calls, "refresh")
	return s.refresh
}

func (s *stubGateway) Do(_ context.Context, subRoute string, _ any, _ string) api.Response {
	s.calls = append(s.calls, subRoute)
	if s.onDo != nil {
		s.onDo()
	}
	if resp, ok := s.responses[subRoute]; ok {
		return resp
	}
	return api.Response{StatusCode: http.StatusNotFound, Message: "no stub"}
}

func jsonResponse(t *testing.T, v any) api.Response {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return api.Response{StatusCode: http.StatusOK, Message: "Request successful", Payload: data}
}

func authedSession(t *testing.T, userID string) *session.Manager {
	t.Helper()
	m := session.NewManager(nil)
	require.NoError(t, m.Set(model.Credentials{UserID: userID, AccessToken: "T1"}, false))
	return m
}

func TestProfileRefreshesBeforeFetching(t *testing.T) {
	gw := &stubGateway{
		refresh: api.AuthResult{Status: http.StatusOK},
		responses: map[string]api.Response{
			"/api/data/user/U1": jsonResponse(t, model.UserProfile{ID: "U1", Email: "a@b.c"}),
		},
	}
	p := New(gw, authedSession(t, "U1"))

	profile, err := p.Profile(context.Background(), "U1")
	require.NoError(t, err)
	require.Equal(t, "a@b.c", profile.Email)

	// The refresh completes before the data call starts.
	require.Equal(t, []string{"refresh", "/api/data/user/U1"}, gw.calls)
}

func TestProfileIdentityMismatchRejectedBeforeFetch(t *testing.T) {
	gw := &stubGateway{refresh: api.AuthResult{Status: http.StatusOK}}
	p := New(gw, authedSession(t, "U1"))

	_, err := p.Profile(context.Background(), "U2")
	require.ErrorIs(t, err, ErrIdentityMismatch)

	// Only the refresh went out; the foreign profile was never requested.
	require.Equal(t, []string{"refresh"}, gw.calls)
}

func TestProfileRejectsForeignOwnerInPayload(t *testing.T) {
	gw := &stubGateway{
		refresh: api.AuthResult{Status: http.StatusOK},
		responses: map[string]api.Response{
			"/api/data/user/U1": jsonResponse(t, model.UserProfile{ID: "U2"}),
		},
	}
	p := New(gw, authedSession(t, "U1"))

	_, err := p.Profile(context.Background(), "U1")
	require.ErrorIs(t, err, ErrIdentityMismatch)
}

func TestRefreshFailureSignalsAuthErrorAndKeepsCredentials(t *testing.T) {
	gw := &stubGateway{refresh: api.AuthResult{Status: http.StatusInternalServerError, Message: "Token refresh failed"}}
	sessions := authedSession(t, "U1")

	rec := &recordingNotifier{}
	sessions.Subscribe(rec)

	p := New(gw, sessions)
	_, err := p.Profile(context.Background(), "U1")

	require.ErrorIs(t, err, ErrAuth)

	// The stale token remains inspectable.
	creds, ok := sessions.Credentials()
	require.True(t, ok)
	require.Equal(t, "T1", creds.AccessToken)

	// The session-invalid event reached the observer.
	require.NotEmpty(t, rec.events)
	require.Equal(t, session.EventSessionInvalid, rec.events[len(rec.events)-1].Kind)
}

type recordingNotifier struct {
	events []session.Event
}

func (r *recordingNotifier) Notify(ev session.Event) { r.events = append(r.events, ev) }

func TestActivitiesAggregatesTasks(t *testing.T) {
	acts := []model.Activity{
		{ID: "A1", Name: "Yoga", Start: time.Now(), Recurrence: model.RecurrenceOneTime},
		{ID: "A2", Name: "Brunch", Start: time.Now(), Recurrence: model.RecurrenceOneTime},
	}
	gw := &stubGateway{
		refresh: api.AuthResult{Status: http.StatusOK},
		responses: map[string]api.Response{
			"/api/data/activity/U1": jsonResponse(t, map[string]any{"activities": acts}),
			"/api/data/task/A1": jsonResponse(t, map[string]any{"tasks": []model.Task{
				{ID: "T1", ActivityID: "A1", Name: "bring mat"},
			}}),
			// A2's task fetch is unstubbed and fails with 404.
		},
	}
	p := New(gw, authedSession(t, "U1"))

	entries, err := p.Activities(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, "A1", entries[0].Activity.ID)
	require.Len(t, entries[0].Tasks, 1)
	require.Equal(t, "bring mat", entries[0].Tasks[0].Name)

	// The failed task fetch degrades to an empty task list, not an error.
	require.Equal(t, "A2", entries[1].Activity.ID)
	require.Empty(t, entries[1].Tasks)
}

func TestActivitiesNormalizesUnknownRecurrence(t *testing.T) {
	gw := &stubGateway{
		refresh: api.AuthResult{Status: http.StatusOK},
		responses: map[string]api.Response{
			"/api/data/activity/U1": jsonResponse(t, map[string]any{"activities": []map[string]any{
				{"activityUid": "A1", "startTime": time.Now().Format(time.RFC3339), "type": "whenever"},
			}}),
		},
	}
	p := New(gw, authedSession(t, "U1"))

	entries, err := p.Activities(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.RecurrenceOneTime, entries[0].Activity.Recurrence)
}

func TestSupersededOperationDiscardsLateResult(t *testing.T) {
	gw := &stubGateway{
		refresh: api.AuthResult{Status: http.StatusOK},
		responses: map[string]api.Response{
			"/api/data/user/U1": jsonResponse(t, model.UserProfile{ID: "U1"}),
		},
	}
	p := New(gw, authedSession(t, "U1"))

	// A newer user action lands while the request is in flight.
	gw.onDo = func() { p.Supersede() }

	_, err := p.Profile(context.Background(), "U1")
	require.ErrorIs(t, err, ErrSuperseded)
}

func TestCreateActivityFillsID(t *testing.T) {
	gw := &stubGateway{
		refresh: api.AuthResult{Status: http.StatusOK},
		responses: map[string]api.Response{
			"/api/data/activity/U1": {StatusCode: http.StatusCreated, Message: "created"},
		},
	}
	p := New(gw, authedSession(t, "U1"))

	created, err := p.CreateActivity(context.Background(), model.Activity{Name: "Movie Night", Start: time.Now()})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, model.RecurrenceOneTime, created.Recurrence)
}
