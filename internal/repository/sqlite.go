package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	keyToken      = "auth_token"
	keyActiveRole = "active_role"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS client_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadState reads the persisted token and active role.
func (s *SQLiteStore) LoadState(ctx context.Context) (State, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM client_state WHERE key IN (?, ?)`, keyToken, keyActiveRole)
	if err != nil {
		return State{}, fmt.Errorf("failed to load state: %w", err)
	}
	defer rows.Close()

	var state State
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return State{}, err
		}
		switch key {
		case keyToken:
			state.Token = value
		case keyActiveRole:
			state.ActiveRole = value
		}
	}
	return state, rows.Err()
}

// SaveState writes token and active role in one transaction. Empty fields are deleted.
func (s *SQLiteStore) SaveState(ctx context.Context, state State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := putOrDelete(ctx, tx, keyToken, state.Token); err != nil {
		return err
	}
	if err := putOrDelete(ctx, tx, keyActiveRole, state.ActiveRole); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// SaveToken persists the auth token.
func (s *SQLiteStore) SaveToken(ctx context.Context, token string) error {
	return putOrDelete(ctx, s.db, keyToken, token)
}

// SaveActiveRole persists the active role.
func (s *SQLiteStore) SaveActiveRole(ctx context.Context, role string) error {
	return putOrDelete(ctx, s.db, keyActiveRole, role)
}

// ClearToken removes the persisted token and keeps the active role.
func (s *SQLiteStore) ClearToken(ctx context.Context) error {
	return putOrDelete(ctx, s.db, keyToken, "")
}

// ClearState removes both token and active role.
func (s *SQLiteStore) ClearState(ctx context.Context) error {
	return s.SaveState(ctx, State{})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putOrDelete(ctx context.Context, db execer, key, value string) error {
	if value == "" {
		if _, err := db.ExecContext(ctx, `DELETE FROM client_state WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
		return nil
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
