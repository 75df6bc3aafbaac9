package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/amaydixit11/locvault/internal/storage"
	"github.com/amaydixit11/locvault/pkg/crypto"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements storage.PayloadStore using SQLite
type SQLiteStore struct {
	db *sql.DB
}

var _ storage.PayloadStore = (*SQLiteStore)(nil)

// New creates a new SQLite store at the given path
// If path is ":memory:", creates an in-memory database
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see a different database
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// GetDB returns the underlying SQL database
func (s *SQLiteStore) GetDB() *sql.DB {
	return s.db
}

// initSchema creates the database tables if they don't exist
func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS payloads (
			owner TEXT PRIMARY KEY,
			salt BLOB NOT NULL,
			nonce BLOB NOT NULL,
			tag BLOB NOT NULL,
			ciphertext BLOB,
			updated_at INTEGER NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores the owner's payload (upsert, last write wins)
func (s *SQLiteStore) Put(owner string, payload *crypto.EncryptedPayload) error {
	if payload == nil {
		return fmt.Errorf("nil payload for owner %q", owner)
	}

	_, err := s.db.Exec(`
		INSERT INTO payloads (owner, salt, nonce, tag, ciphertext, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner) DO UPDATE SET
			salt = excluded.salt,
			nonce = excluded.nonce,
			tag = excluded.tag,
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at
	`, owner, payload.Salt, payload.Nonce, payload.Tag, payload.Ciphertext,
		time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to upsert payload: %w", err)
	}
	return nil
}

// Get retrieves the owner's payload
func (s *SQLiteStore) Get(owner string) (*crypto.EncryptedPayload, error) {
	var p crypto.EncryptedPayload

	err := s.db.QueryRow(`
		SELECT salt, nonce, tag, ciphertext
		FROM payloads
		WHERE owner = ?
	`, owner).Scan(&p.Salt, &p.Nonce, &p.Tag, &p.Ciphertext)

	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound{Owner: owner}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payload: %w", err)
	}
	if p.Ciphertext == nil {
		p.Ciphertext = []byte{}
	}

	return &p, nil
}

// Delete removes the owner's payload
func (s *SQLiteStore) Delete(owner string) error {
	result, err := s.db.Exec("DELETE FROM payloads WHERE owner = ?", owner)
	if err != nil {
		return fmt.Errorf("failed to delete payload: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return storage.ErrNotFound{Owner: owner}
	}

	return nil
}

// Count returns the number of owners with a stored payload
func (s *SQLiteStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM payloads").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payloads: %w", err)
	}
	return n, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
