package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists the durable conversation and user scopes of a TurnState
// using SQLite, keyed by (channel, user).
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore creates a SQLite-backed state store at the given path.
func NewStore(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &Store{db: db}

	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

// init creates the necessary tables if they don't exist
func (s *Store) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS state_entries (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			channel_id  TEXT NOT NULL,
			user_id     TEXT NOT NULL,
			scope       TEXT NOT NULL,
			name        TEXT NOT NULL,
			value       TEXT,
			updated_at  TEXT NOT NULL,
			UNIQUE(channel_id, user_id, scope, name)
		);

		CREATE INDEX IF NOT EXISTS idx_state_updated ON state_entries(updated_at);
		CREATE INDEX IF NOT EXISTS idx_state_key ON state_entries(channel_id, user_id);
	`)
	return err
}

// LoadState loads the conversation and user scopes for a (channel, user) key
// into a fresh TurnState. Missing rows yield an empty state.
func (s *Store) LoadState(channelID, userID string) (*TurnState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT scope, name, value
		FROM state_entries
		WHERE channel_id = ? AND user_id = ? AND scope IN (?, ?)
	`, channelID, userID, ScopeConversation, ScopeUser)
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	defer rows.Close()

	ts := NewTurnState()
	for rows.Next() {
		var scope, name string
		var value sql.NullString
		if err := rows.Scan(&scope, &name, &value); err != nil {
			return nil, fmt.Errorf("failed to scan state entry: %w", err)
		}
		var v any
		if value.Valid && value.String != "" {
			if err := json.Unmarshal([]byte(value.String), &v); err != nil {
				return nil, fmt.Errorf("failed to decode state entry %s.%s: %w", scope, name, err)
			}
		}
		ts.Set(scope+"."+name, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state entries: %w", err)
	}
	return ts, nil
}

// SaveState replaces the persisted conversation and user scopes with the
// TurnState's. Keys deleted from a scope disappear from the table too. The
// temp scope is never persisted.
func (s *Store) SaveState(channelID, userID string, ts *TurnState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().Format(time.RFC3339)
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, scope := range []string{ScopeConversation, ScopeUser} {
		if _, err := tx.Exec(`
			DELETE FROM state_entries
			WHERE channel_id = ? AND user_id = ? AND scope = ?
		`, channelID, userID, scope); err != nil {
			return fmt.Errorf("failed to clear %s scope: %w", scope, err)
		}
		for name, v := range ts.ScopeValues(scope) {
			data, err := json.Marshal(v)
			if err != nil {
				return fmt.Errorf("failed to encode state entry %s.%s: %w", scope, name, err)
			}
			_, err = tx.Exec(`
				INSERT INTO state_entries (channel_id, user_id, scope, name, value, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, channelID, userID, scope, name, string(data), now)
			if err != nil {
				return fmt.Errorf("failed to save state entry %s.%s: %w", scope, name, err)
			}
		}
	}

	return tx.Commit()
}

// PurgeIdle deletes every entry not updated within the ttl and returns the
// number of rows removed.
func (s *Store) PurgeIdle(ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-ttl).Format(time.RFC3339)
	res, err := s.db.Exec(`DELETE FROM state_entries WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge state entries: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
