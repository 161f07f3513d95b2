package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLite keeps the journal in a local database file.
type SQLite struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLite(path string) *SQLite {
	return &SQLite{path: path}
}

// Init opens the database and creates the schema. Calling it twice is a no-op.
func (s *SQLite) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	// One writer; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping journal: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dispatches (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			channel TEXT NOT NULL,
			value INTEGER NOT NULL,
			payload INTEGER NOT NULL,
			success INTEGER NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS dispatches_created_at ON dispatches (created_at);
	`); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create journal schema: %w", err)
	}

	s.db = db
	return nil
}

func (s *SQLite) Record(ctx context.Context, e Entry) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO dispatches (id, session_id, kind, channel, value, payload, success, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID.String(), e.SessionID.String(), string(e.Kind), e.Channel,
		e.Value, e.Payload, e.Success, e.Error, e.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record dispatch: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]Entry, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, kind, channel, value, payload, success, error, created_at
		FROM dispatches
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e              Entry
			id, sessionID  string
			kind           string
			createdAtNanos int64
		)
		if err := rows.Scan(&id, &sessionID, &kind, &e.Channel, &e.Value, &e.Payload,
			&e.Success, &e.Error, &createdAtNanos); err != nil {
			return nil, fmt.Errorf("failed to scan dispatch: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad dispatch id %q: %w", id, err)
		}
		if e.SessionID, err = uuid.Parse(sessionID); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", sessionID, err)
		}
		e.Kind = Kind(kind)
		e.CreatedAt = time.Unix(0, createdAtNanos).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLite) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errors.New("journal is not initialized")
	}
	return s.db, nil
}
