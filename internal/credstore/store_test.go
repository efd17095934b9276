package credstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studycal/internal/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "credentials.json"))
}

func TestLoadAbsent(t *testing.T) {
	s := testStore(t)

	_, ok, err := s.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := testStore(t)
	creds := model.Credentials{UserID: "U1", AccessToken: "T1"}

	require.NoError(t, s.Save(creds, 30*24*time.Hour))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, creds, got)
}

func TestRecordIsSealedWithExpiry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s := New(path)
	creds := model.Credentials{UserID: "U1", AccessToken: "T1"}

	before := time.Now()
	require.NoError(t, s.Save(creds, 30*24*time.Hour))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var rec record
	require.NoError(t, json.Unmarshal(raw, &rec))

	// The raw record must not expose the token and must expire ~30d out.
	require.NotContains(t, string(raw), "T1")
	wantExpiry := before.Add(30 * 24 * time.Hour).UnixMilli()
	require.InDelta(t, wantExpiry, rec.Expiry, float64(time.Minute.Milliseconds()))
}

func TestExpiredRecordPurgedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")

	now := time.Now()
	past := NewWithClock(path, func() time.Time { return now.Add(-48 * time.Hour) })
	require.NoError(t, past.Save(model.Credentials{UserID: "U1", AccessToken: "T1"}, 24*time.Hour))

	s := NewWithClock(path, func() time.Time { return now })
	_, ok, err := s.Load()
	require.NoError(t, err)
	require.False(t, ok)

	// Purged: the record file is gone.
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestSaveOverwrites(t *testing.T) {
	s := testStore(t)

	require.NoError(t, s.Save(model.Credentials{UserID: "U1", AccessToken: "T1"}, time.Hour))
	require.NoError(t, s.Save(model.Credentials{UserID: "U1", AccessToken: "T2"}, time.Hour))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "T2", got.AccessToken)
}

func TestClear(t *testing.T) {
	s := testStore(t)
	require.NoError(t, s.Save(model.Credentials{UserID: "U1", AccessToken: "T1"}, time.Hour))

	require.NoError(t, s.Clear())
	require.NoError(t, s.Clear()) // idempotent

	_, ok, err := s.Load()
	require.NoError(t, err)
	require.False(t, ok)
}
