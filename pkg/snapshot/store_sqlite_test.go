package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T, ttl time.Duration) *SQLiteStore {
	t.Helper()
	dsn, err := SQLiteDSNForFile(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	s, err := NewSQLiteStore(dsn, "session_states", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_RoundTripIsOneShot(t *testing.T) {
	s := newTestSQLiteStore(t, time.Hour)
	entries := []Entry{
		Entry(`{"id":"s1","pos":42}`),
		Entry(`{"id":"s2","model":"large","tokens":[1,2]}`),
	}
	require.NoError(t, s.Save(context.Background(), entries, "app_backgrounded"))

	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.JSONEq(t, `{"id":"s1","pos":42}`, string(got[0]))
	require.JSONEq(t, `{"id":"s2","model":"large","tokens":[1,2]}`, string(got[1]))

	again, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	dsn, err := SQLiteDSNForFile(filepath.Join(dir, "snapshots.db"))
	require.NoError(t, err)

	s, err := NewSQLiteStore(dsn, "session_states", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Save(context.Background(), []Entry{Entry(`{"id":"s1","pos":42}`)}, "app_backgrounded"))
	require.NoError(t, s.Close())

	// Simulated process restart: a fresh store over the same file.
	s2, err := NewSQLiteStore(dsn, "session_states", time.Hour)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	got, err := s2.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"id":"s1","pos":42}`, string(got[0]))
}

func TestSQLiteStore_ExpiredSnapshotClearsSlot(t *testing.T) {
	s := newTestSQLiteStore(t, time.Hour)
	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Save(context.Background(), []Entry{Entry(`{"id":"s1"}`)}, "r"))

	s.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)

	// Slot was deleted, not just filtered: a recovery within TTL still sees nothing.
	s.now = func() time.Time { return base }
	got, err = s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSQLiteStore_CorruptPayloadTreatedAsAbsent(t *testing.T) {
	s := newTestSQLiteStore(t, time.Hour)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO snapshots(slot, version, saved_at_ms, reason, payload)
		VALUES(?, ?, ?, ?, ?)
	`, "session_states", SchemaVersion, time.Now().UnixMilli(), "r", "{not json")
	require.NoError(t, err)

	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestSQLiteStore_UnknownVersionTreatedAsAbsent(t *testing.T) {
	s := newTestSQLiteStore(t, time.Hour)
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO snapshots(slot, version, saved_at_ms, reason, payload)
		VALUES(?, ?, ?, ?, ?)
	`, "session_states", 99, time.Now().UnixMilli(), "r", `[{"id":"s1"}]`)
	require.NoError(t, err)

	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}
