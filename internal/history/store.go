// Package history keeps a per-owner log of access events in SQLite.
//
// Entries record who did what and when. They never hold location data.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/amaydixit11/locvault/internal/events"
)

// DefaultLimit is the number of entries List returns when asked for none
const DefaultLimit = 50

// Entry is one recorded access event
type Entry struct {
	ID        int64            `json:"id"`
	Type      events.EventType `json:"type"`
	Owner     string           `json:"owner"`
	Viewer    string           `json:"viewer,omitempty"`
	ExpiresAt *time.Time       `json:"expires_at,omitempty"`
	At        time.Time        `json:"at"`
}

// Store manages access history in SQLite
type Store struct {
	db          *sql.DB
	ownsDB      bool
	maxPerOwner int // Max entries to keep per owner (0 = unlimited)
}

// NewStore creates a history store on an existing database
func NewStore(db *sql.DB, maxPerOwner int) (*Store, error) {
	store := &Store{
		db:          db,
		maxPerOwner: maxPerOwner,
	}

	if err := store.initSchema(); err != nil {
		return nil, err
	}

	return store, nil
}

// Open creates a history store with its own database at path.
// ":memory:" keeps history for the life of the process only.
func Open(path string, maxPerOwner int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store, err := NewStore(db, maxPerOwner)
	if err != nil {
		db.Close()
		return nil, err
	}
	store.ownsDB = true
	return store, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS access_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			owner TEXT NOT NULL,
			viewer TEXT,
			expires_at INTEGER,
			at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_history_owner_at ON access_history(owner, at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends an event to its owner's history
func (s *Store) Record(e events.Event) error {
	if e.Owner == "" {
		return fmt.Errorf("event has no owner")
	}
	at := e.Timestamp
	if at.IsZero() {
		at = time.Now()
	}

	var expiresAt sql.NullInt64
	if e.ExpiresAt != nil {
		expiresAt = sql.NullInt64{Int64: e.ExpiresAt.UnixNano(), Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO access_history (type, owner, viewer, expires_at, at)
		VALUES (?, ?, ?, ?, ?)
	`, string(e.Type), e.Owner, e.Viewer, expiresAt, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}

	if s.maxPerOwner > 0 {
		return s.prune(e.Owner)
	}
	return nil
}

// List returns up to limit entries for owner, newest first
func (s *Store) List(owner string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.db.Query(`
		SELECT id, type, owner, viewer, expires_at, at
		FROM access_history
		WHERE owner = ?
		ORDER BY at DESC, id DESC
		LIMIT ?
	`, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var eventType string
		var viewer sql.NullString
		var expiresAt sql.NullInt64
		var at int64

		if err := rows.Scan(&e.ID, &eventType, &e.Owner, &viewer, &expiresAt, &at); err != nil {
			return nil, err
		}

		e.Type = events.EventType(eventType)
		e.At = time.Unix(0, at).UTC()
		if viewer.Valid {
			e.Viewer = viewer.String
		}
		if expiresAt.Valid {
			t := time.Unix(0, expiresAt.Int64).UTC()
			e.ExpiresAt = &t
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Close closes the database if Open created it
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// prune removes old entries beyond the limit
func (s *Store) prune(owner string) error {
	_, err := s.db.Exec(`
		DELETE FROM access_history
		WHERE owner = ? AND id NOT IN (
			SELECT id FROM access_history
			WHERE owner = ?
			ORDER BY at DESC, id DESC
			LIMIT ?
		)
	`, owner, owner, s.maxPerOwner)
	return err
}
