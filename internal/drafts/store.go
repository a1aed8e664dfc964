// Package drafts persists unsent composer text per corresponder, so a
// half-written message survives switching conversations and restarting
// the client.
package drafts

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store keeps one draft per corresponder in a small local sqlite
// database.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the drafts database location (~/.placer/drafts.db).
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".placer", "drafts.db")
}

// Open opens (creating if needed) the drafts database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create drafts directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open drafts database: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS drafts (
		corresponder_id TEXT PRIMARY KEY,
		body            TEXT NOT NULL,
		updated_at      TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create drafts table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores the draft for a corresponder, replacing any previous
// one. Saving an empty body removes the draft instead.
func (s *Store) Save(corresponderID, body string) error {
	if body == "" {
		return s.Delete(corresponderID)
	}

	query := `INSERT INTO drafts (corresponder_id, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(corresponder_id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`
	if _, err := s.db.Exec(query, corresponderID, body, time.Now()); err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Load returns the stored draft for a corresponder, or "" when there
// is none.
func (s *Store) Load(corresponderID string) (string, error) {
	var body string
	err := s.db.QueryRow(`SELECT body FROM drafts WHERE corresponder_id = ?`, corresponderID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load draft: %w", err)
	}
	return body, nil
}

// Delete removes the draft for a corresponder. Deleting a missing
// draft is not an error.
func (s *Store) Delete(corresponderID string) error {
	if _, err := s.db.Exec(`DELETE FROM drafts WHERE corresponder_id = ?`, corresponderID); err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return nil
}
