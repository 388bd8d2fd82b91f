package snapshot

import (
	"context"
	"encoding/json"
)

// Entry is one opaque stream-state record. The store never interprets its
// fields; callers own the meaning. Keeping it as raw JSON preserves field
// order and heterogeneous shapes across a save/recover round trip.
type Entry = json.RawMessage

// SchemaVersion tags persisted snapshots. Recovery treats a snapshot with a
// different version the same as a corrupt one: cleared and not surfaced.
const SchemaVersion = 1

// Snapshot is the single durable record: the last known stream states plus
// when and why they were saved. It is written wholesale (replace, not merge)
// and consumed at most once.
type Snapshot struct {
	Version   int     `json:"version"`
	Entries   []Entry `json:"entries"`
	SavedAtMs int64   `json:"saved_at_ms"`
	Reason    string  `json:"reason"`
}

// Store persists the snapshot slot.
//
// Save replaces any prior snapshot. Recover returns the current entries and
// clears the slot unconditionally; absent, expired, or unparsable snapshots
// yield an empty result rather than an error so callers can treat recovery
// as best-effort.
type Store interface {
	Save(ctx context.Context, entries []Entry, reason string) error
	Recover(ctx context.Context) ([]Entry, error)
	Close() error
}
