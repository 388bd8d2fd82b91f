package snapshot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MemoryStore is the in-process twin of SQLiteStore, used in tests and in
// deployments that do not need durability across a process teardown. It goes
// through the same JSON serialization so opaque-entry handling behaves
// identically to the sqlite store.
type MemoryStore struct {
	mu  sync.Mutex
	rec *memoryRecord
	ttl time.Duration

	now func() time.Time
}

type memoryRecord struct {
	version   int
	savedAtMs int64
	reason    string
	payload   []byte
}

var _ Store = &MemoryStore{}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, entries []Entry, reason string) error {
	if s == nil {
		return nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		log.Warn().Err(err).Str("component", "snapshot").Msg("snapshot save abandoned: entries not serializable")
		return err
	}
	s.mu.Lock()
	s.rec = &memoryRecord{
		version:   SchemaVersion,
		savedAtMs: s.now().UnixMilli(),
		reason:    reason,
		payload:   payload,
	}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Recover(_ context.Context) ([]Entry, error) {
	if s == nil {
		return []Entry{}, nil
	}
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()

	if rec == nil {
		return []Entry{}, nil
	}
	if s.now().Sub(time.UnixMilli(rec.savedAtMs)) > s.ttl {
		return []Entry{}, nil
	}
	if rec.version != SchemaVersion {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(rec.payload, &entries); err != nil {
		log.Warn().Err(err).Str("component", "snapshot").Msg("discarding unparsable snapshot")
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func (s *MemoryStore) Close() error { return nil }
