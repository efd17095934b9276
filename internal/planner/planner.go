// Package planner sequences the authenticated data operations: refresh the
// token first, enforce that the requested resource belongs to the session
// user, then issue the data call. The refresh-before-every-call policy
// trades an extra round trip for never having to retry a 401 mid-flight.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"studycal/internal/api"
	applog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/session"
)

// ErrAuth reports that the session is invalid and the caller must route to
// re-authentication; it is never retryable in place.
var ErrAuth = errors.New("session invalid, sign in again")

// ErrIdentityMismatch reports that a requested or fetched resource belongs
// to a different user than the session holds. The data is discarded.
var ErrIdentityMismatch = errors.New("resource owner does not match session user")

// ErrSuperseded reports that a newer user action replaced this operation
// while it was in flight; its result must be ignored.
var ErrSuperseded = errors.New("operation superseded")

// Gateway is the slice of the API client the planner drives.
type Gateway interface {
	RefreshToken(ctx context.Context) api.AuthResult
	Do(ctx context.Context, subRoute string, payload any, method string) api.Response
}

// Planner coordinates profile and activity retrieval for the signed-in user.
type Planner struct {
	gateway    Gateway
	sessions   *session.Manager
	generation atomic.Uint64
}

// New creates a Planner. Both collaborators are required.
func New(gateway Gateway, sessions *session.Manager) *Planner {
	return &Planner{gateway: gateway, sessions: sessions}
}

// Supersede marks all in-flight operations as stale, e.g. when the user
// navigates away. Their late results are dropped instead of applied.
func (p *Planner) Supersede() {
	p.generation.Add(1)
}

// refreshSession performs the mandatory pre-call refresh. A failed refresh
// leaves the held credentials untouched but flags the session invalid.
func (p *Planner) refreshSession(ctx context.Context) error {
	res := p.gateway.RefreshToken(ctx)
	if res.OK() {
		return nil
	}
	applog.Warn("token refresh failed", "status", res.Status, "message", res.Message)
	p.sessions.Invalidate(res.Message)
	return fmt.Errorf("%w: %s", ErrAuth, res.Message)
}

// checkIdentity verifies the requested owner against the session user.
func (p *Planner) checkIdentity(userID string) error {
	creds, ok := p.sessions.Credentials()
	if !ok {
		return ErrAuth
	}
	if userID != creds.UserID {
		applog.Warn("identity mismatch", "requested", userID, "session", creds.UserID)
		return ErrIdentityMismatch
	}
	return nil
}

// Profile fetches the profile for userID. The session is refreshed first;
// a profile owned by anyone but the session user is rejected unseen.
func (p *Planner) Profile(ctx context.Context, userID string) (model.UserProfile, error) {
	gen := p.generation.Load()

	if err := p.refreshSession(ctx); err != nil {
		return model.UserProfile{}, err
	}
	if err := p.checkIdentity(userID); err != nil {
		return model.UserProfile{}, err
	}

	resp := p.gateway.Do(ctx, "/api/data/user/"+userID, nil, http.MethodGet)
	if gen != p.generation.Load() {
		return model.UserProfile{}, ErrSuperseded
	}
	if !resp.OK() {
		return model.UserProfile{}, fmt.Errorf("fetch profile: %s", resp.Message)
	}

	var profile model.UserProfile
	if err := json.Unmarshal(resp.Payload, &profile); err != nil {
		return model.UserProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	if profile.ID != "" && profile.ID != userID {
		return model.UserProfile{}, ErrIdentityMismatch
	}

	applog.Debug("profile retrieved", "user_id", userID)
	return profile, nil
}

// Activities fetches the user's activities together with their task lists.
// A failed task fetch for one activity is logged and leaves that activity
// with no tasks rather than failing the whole operation.
func (p *Planner) Activities(ctx context.Context, userID string) ([]model.ActivityWithTasks, error) {
	gen := p.generation.Load()

	if err := p.refreshSession(ctx); err != nil {
		return nil, err
	}
	if err := p.checkIdentity(userID); err != nil {
		return nil, err
	}

	resp := p.gateway.Do(ctx, "/api/data/activity/"+userID, nil, http.MethodGet)
	if gen != p.generation.Load() {
		return nil, ErrSuperseded
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetch activities: %s", resp.Message)
	}

	var listing struct {
		Activities []model.Activity `json:"activities"`
	}
	if err := json.Unmarshal(resp.Payload, &listing); err != nil {
		return nil, fmt.Errorf("decode activities: %w", err)
	}

	out := make([]model.ActivityWithTasks, 0, len(listing.Activities))
	for _, act := range listing.Activities {
		act.Recurrence = model.ParseRecurrence(string(act.Recurrence))

		entry := model.ActivityWithTasks{Activity: act}

		taskResp := p.gateway.Do(ctx, "/api/data/task/"+act.ID, nil, http.MethodGet)
		if gen != p.generation.Load() {
			return nil, ErrSuperseded
		}
		if taskResp.OK() {
			var tasks struct {
				Tasks []model.Task `json:"tasks"`
			}
			if err := json.Unmarshal(taskResp.Payload, &tasks); err != nil {
				applog.Warn("task list undecodable", "activity_id", act.ID, "err", err)
			} else {
				entry.Tasks = tasks.Tasks
			}
		} else {
			applog.Warn("task fetch failed", "activity_id", act.ID, "status", taskResp.StatusCode)
		}

		out = append(out, entry)
	}

	applog.Info("activities retrieved", "user_id", userID, "count", len(out))
	return out, nil
}

// CreateActivity submits a new activity for the session user. A missing ID
// is filled with a fresh UUID before the call.
func (p *Planner) CreateActivity(ctx context.Context, act model.Activity) (model.Activity, error) {
	gen := p.generation.Load()

	if err := p.refreshSession(ctx); err != nil {
		return model.Activity{}, err
	}
	creds, ok := p.sessions.Credentials()
	if !ok {
		return model.Activity{}, ErrAuth
	}

	if act.ID == "" {
		act.ID = uuid.NewString()
	}
	act.Recurrence = model.ParseRecurrence(string(act.Recurrence))

	resp := p.gateway.Do(ctx, "/api/data/activity/"+creds.UserID, act, http.MethodPost)
	if gen != p.generation.Load() {
		return model.Activity{}, ErrSuperseded
	}
	if !resp.OK() {
		return model.Activity{}, fmt.Errorf("create activity: %s", resp.Message)
	}

	applog.Info("activity created", "activity_id", act.ID, "name", act.Name)
	return act, nil
}
