package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTripIsOneShot(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	entries := []Entry{
		Entry(`{"id":"s1","pos":42}`),
		Entry(`{"id":"s2","nested":{"a":[1,2,3]},"flag":true}`),
	}
	require.NoError(t, s.Save(context.Background(), entries, "app_backgrounded"))

	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.JSONEq(t, `{"id":"s1","pos":42}`, string(got[0]))
	require.JSONEq(t, `{"id":"s2","nested":{"a":[1,2,3]},"flag":true}`, string(got[1]))

	again, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, again)
}

func TestMemoryStore_SaveReplacesPriorSnapshot(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	require.NoError(t, s.Save(context.Background(), []Entry{Entry(`{"id":"old"}`)}, "first"))
	require.NoError(t, s.Save(context.Background(), []Entry{Entry(`{"id":"new"}`)}, "second"))

	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.JSONEq(t, `{"id":"new"}`, string(got[0]))
}

func TestMemoryStore_ExpiredSnapshotIsDiscarded(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	base := time.Now()
	s.now = func() time.Time { return base }
	require.NoError(t, s.Save(context.Background(), []Entry{Entry(`{"id":"s1"}`)}, "r"))

	s.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestMemoryStore_RecoverOnEmptyStore(t *testing.T) {
	s := NewMemoryStore(time.Hour)
	got, err := s.Recover(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}
