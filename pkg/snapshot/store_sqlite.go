package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SQLiteStore keeps the snapshot in a single named slot of a sqlite table.
type SQLiteStore struct {
	db   *sql.DB
	slot string
	ttl  time.Duration

	now func() time.Time
}

var _ Store = &SQLiteStore{}

func NewSQLiteStore(dsn, slot string, ttl time.Duration) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlite snapshot store: empty dsn")
	}
	if strings.TrimSpace(slot) == "" {
		return nil, errors.New("sqlite snapshot store: empty slot")
	}
	if ttl <= 0 {
		return nil, errors.New("sqlite snapshot store: ttl must be positive")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db, slot: slot, ttl: ttl, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	if s == nil || s.db == nil {
		return errors.New("sqlite snapshot store: db is nil")
	}
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		slot TEXT NOT NULL PRIMARY KEY,
		version INTEGER NOT NULL,
		saved_at_ms INTEGER NOT NULL,
		reason TEXT NOT NULL,
		payload TEXT NOT NULL
	);`)
	if err != nil {
		return errors.Wrap(err, "sqlite snapshot store: migrate")
	}
	return nil
}

// Save replaces the slot with the given entries. Entries are stored as one
// JSON array so order and per-entry shape survive untouched.
func (s *SQLiteStore) Save(ctx context.Context, entries []Entry, reason string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite snapshot store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if entries == nil {
		entries = []Entry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		log.Warn().Err(err).Str("component", "snapshot").Str("slot", s.slot).Msg("snapshot save abandoned: entries not serializable")
		return errors.Wrap(err, "sqlite snapshot store: marshal entries")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots(slot, version, saved_at_ms, reason, payload)
		VALUES(?, ?, ?, ?, ?)
	`, s.slot, SchemaVersion, s.now().UnixMilli(), reason, string(payload))
	if err != nil {
		return errors.Wrap(err, "sqlite snapshot store: replace slot")
	}
	return nil
}

// Recover reads the slot and deletes it unconditionally, so a given snapshot
// is returned at most once. Stale, corrupt, or version-mismatched records
// come back as an empty result.
func (s *SQLiteStore) Recover(ctx context.Context) ([]Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite snapshot store: db is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var version int
	var savedAtMs int64
	var reason, payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT version, saved_at_ms, reason, payload FROM snapshots WHERE slot = ?
	`, s.slot).Scan(&version, &savedAtMs, &reason, &payload)
	if err == sql.ErrNoRows {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "sqlite snapshot store: read slot")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE slot = ?`, s.slot); err != nil {
		log.Warn().Err(err).Str("component", "snapshot").Str("slot", s.slot).Msg("failed to clear snapshot slot after read")
	}

	age := s.now().Sub(time.UnixMilli(savedAtMs))
	if age > s.ttl {
		log.Debug().Str("component", "snapshot").Str("slot", s.slot).Dur("age", age).Str("reason", reason).Msg("discarding stale snapshot")
		return []Entry{}, nil
	}
	if version != SchemaVersion {
		log.Warn().Str("component", "snapshot").Str("slot", s.slot).Int("version", version).Msg("discarding snapshot with unknown schema version")
		return []Entry{}, nil
	}

	var entries []Entry
	if err := json.Unmarshal([]byte(payload), &entries); err != nil {
		log.Warn().Err(err).Str("component", "snapshot").Str("slot", s.slot).Msg("discarding unparsable snapshot")
		return []Entry{}, nil
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

func SQLiteDSNForFile(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("sqlite snapshot store: empty path")
	}
	return fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path), nil
}
