// Package session owns the in-memory credential state for the client.
//
// A single Manager instance is the only writer of credential state; the
// gateway installs tokens through it and view code reads through the
// accessor. Notification fan-out uses an explicit observer interface
// instead of a mutable callback field.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	applog "studycal/internal/log"
	"studycal/internal/model"
)

// RememberTTL is the fixed lifetime of a persisted credential record.
const RememberTTL = 30 * 24 * time.Hour

// ErrUnauthenticated is returned when an operation needs credentials and
// none are held.
var ErrUnauthenticated = errors.New("session: unauthenticated")

// ErrSubjectMismatch is returned when a token's embedded subject disagrees
// with the user the credentials claim to belong to.
var ErrSubjectMismatch = errors.New("session: token subject does not match user")

// EventKind classifies session notifications.
type EventKind string

const (
	EventAuthenticated  EventKind = "authenticated"
	EventRefreshed      EventKind = "refreshed"
	EventSessionInvalid EventKind = "session-invalid"
	EventLoggedOut      EventKind = "logged-out"
)

// Event is delivered to subscribed notifiers on session state changes.
type Event struct {
	Kind    EventKind
	Message string
}

// Notifier receives session events. Implementations must not block.
type Notifier interface {
	Notify(Event)
}

// PersistentStore is the subset of the credential store the manager needs.
type PersistentStore interface {
	Load() (model.Credentials, bool, error)
	Save(creds model.Credentials, ttl time.Duration) error
	Clear() error
}

// Manager is the single authoritative holder of the current credentials.
type Manager struct {
	mu        sync.RWMutex
	creds     model.Credentials
	remember  bool
	store     PersistentStore
	notifiers []Notifier
}

// NewManager creates a Manager backed by store. A previously remembered
// record is restored immediately; restore failures are logged and ignored
// so a broken store never blocks a fresh login.
func NewManager(store PersistentStore) *Manager {
	m := &Manager{store: store}
	if store == nil {
		return m
	}

	creds, ok, err := store.Load()
	if err != nil {
		applog.Warn("stored credentials unreadable, starting unauthenticated", "err", err)
		return m
	}
	if ok {
		m.creds = creds
		m.remember = true
		applog.Info("restored remembered session", "user_id", creds.UserID)
	}
	return m
}

// Subscribe registers a notifier for session events.
func (m *Manager) Subscribe(n Notifier) {
	if n == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifiers = append(m.notifiers, n)
}

// Credentials returns the current credentials. The second result is false
// when the session is unauthenticated.
func (m *Manager) Credentials() (model.Credentials, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.creds, m.creds.Valid()
}

// Remember reports whether the persist-across-restarts flag is active.
func (m *Manager) Remember() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.remember
}

// Set replaces the current credentials, typically after login or
// registration. When remember is set, the record is persisted with the
// fixed 30-day TTL; persistence failures are logged and swallowed.
func (m *Manager) Set(creds model.Credentials, remember bool) error {
	if !creds.Valid() {
		return ErrUnauthenticated
	}
	if sub, ok := tokenSubject(creds.AccessToken); ok && creds.UserID != "" && sub != creds.UserID {
		return ErrSubjectMismatch
	}

	m.mu.Lock()
	m.creds = creds
	m.remember = remember
	m.mu.Unlock()

	if remember {
		m.persist(creds)
	}

	m.notify(Event{Kind: EventAuthenticated, Message: "signed in"})
	return nil
}

// InstallToken replaces only the access token after a successful refresh,
// preserving the user identifier. It fails when no session is held.
func (m *Manager) InstallToken(token string) error {
	if token == "" {
		return ErrUnauthenticated
	}

	m.mu.Lock()
	if !m.creds.Valid() {
		m.mu.Unlock()
		return ErrUnauthenticated
	}
	if sub, ok := tokenSubject(token); ok && sub != m.creds.UserID {
		m.mu.Unlock()
		return ErrSubjectMismatch
	}
	m.creds.AccessToken = token
	creds := m.creds
	remember := m.remember
	m.mu.Unlock()

	if remember {
		m.persist(creds)
	}

	m.notify(Event{Kind: EventRefreshed, Message: "token refreshed"})
	return nil
}

// Invalidate signals that the held session is no longer usable. The
// in-memory credentials are deliberately left untouched so the stale token
// stays available for inspection; callers must route to re-authentication.
func (m *Manager) Invalidate(reason string) {
	m.notify(Event{Kind: EventSessionInvalid, Message: reason})
}

// Clear drops the session and removes any persisted record.
func (m *Manager) Clear() {
	m.mu.Lock()
	m.creds = model.Credentials{}
	m.remember = false
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Clear(); err != nil {
			applog.Warn("failed to clear stored credentials", "err", err)
		}
	}

	m.notify(Event{Kind: EventLoggedOut, Message: "signed out"})
}

// TokenExpiresWithin reports whether the held token carries a parseable
// expiry inside the next d. Opaque tokens report false; the caller then
// falls back to the refresh-before-call policy.
func (m *Manager) TokenExpiresWithin(d time.Duration) bool {
	m.mu.RLock()
	token := m.creds.AccessToken
	m.mu.RUnlock()

	exp, ok := tokenExpiry(token)
	if !ok {
		return false
	}
	return time.Until(exp) < d
}

func (m *Manager) persist(creds model.Credentials) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(creds, RememberTTL); err != nil {
		// Best-effort: the in-memory session stays usable either way.
		applog.Warn("failed to persist credentials", "err", err, "user_id", creds.UserID)
	}
}

func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	subs := make([]Notifier, len(m.notifiers))
	copy(subs, m.notifiers)
	m.mu.RUnlock()

	for _, n := range subs {
		n.Notify(ev)
	}
}

// tokenSubject extracts the unverified "sub" claim from a JWT access token.
// The client holds no signing secret, so claims are informational only.
func tokenSubject(token string) (string, bool) {
	claims, ok := unverifiedClaims(token)
	if !ok {
		return "", false
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

// tokenExpiry extracts the unverified "exp" claim from a JWT access token.
func tokenExpiry(token string) (time.Time, bool) {
	claims, ok := unverifiedClaims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func unverifiedClaims(token string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}
