// Package history provides the append-only memory change log, backed by SQLite.
//
// Every mutation of a memory (add, update, delete) appends one event recording
// the old and new content. The log is for inspection and audit; nothing in the
// engine reads it back on the hot path.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Event names for the change log.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
)

// Event is one recorded change to a memory.
type Event struct {
	// ID is the log sequence number, assigned on insert.
	ID int64

	// MemoryID identifies the changed memory.
	MemoryID string

	// Event is one of EventAdd, EventUpdate, EventDelete.
	Event string

	// OldContent is the memory text before the change. Empty for adds.
	OldContent string

	// NewContent is the memory text after the change. Empty for deletes.
	NewContent string

	// CreatedAt is when the change was recorded.
	CreatedAt time.Time
}

// Store is the SQLite-backed change log. Safe for concurrent use; SQLite
// serialises writers internally.
type Store struct {
	db *sql.DB
}

const ddl = `
CREATE TABLE IF NOT EXISTS history (
    id          INTEGER  PRIMARY KEY AUTOINCREMENT,
    memory_id   TEXT     NOT NULL,
    event       TEXT     NOT NULL,
    old_content TEXT     NOT NULL DEFAULT '',
    new_content TEXT     NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_memory_id ON history (memory_id);
`

// Open opens (creating if necessary) the history database at path and ensures
// the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history store: open %q: %w", path, err)
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one event to the log.
func (s *Store) Record(ctx context.Context, memoryID, event, oldContent, newContent string) error {
	const q = `
		INSERT INTO history (memory_id, event, old_content, new_content, created_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q, memoryID, event, oldContent, newContent, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("history store: record %s for %q: %w", event, memoryID, err)
	}
	return nil
}

// List returns all events for one memory in insertion order.
// Returns an empty (non-nil) slice when the memory has no history.
func (s *Store) List(ctx context.Context, memoryID string) ([]Event, error) {
	const q = `
		SELECT id, memory_id, event, old_content, new_content, created_at
		FROM   history
		WHERE  memory_id = ?
		ORDER  BY id`

	rows, err := s.db.QueryContext(ctx, q, memoryID)
	if err != nil {
		return nil, fmt.Errorf("history store: list %q: %w", memoryID, err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.MemoryID, &e.Event, &e.OldContent, &e.NewContent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history store: scan row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history store: list %q: %w", memoryID, err)
	}
	return events, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
