package processors

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS event_state (
	kind             TEXT PRIMARY KEY,
	count            INTEGER NOT NULL DEFAULT 0,
	last_payload     TEXT NOT NULL DEFAULT '',
	last_occurred_at INTEGER NOT NULL DEFAULT 0,
	updated_at       INTEGER NOT NULL DEFAULT 0
)`

const sqliteUpsert = `
INSERT INTO event_state (kind, count, last_payload, last_occurred_at, updated_at)
VALUES (?, 1, ?, ?, ?)
ON CONFLICT(kind) DO UPDATE SET
	count = count + 1,
	last_payload = excluded.last_payload,
	last_occurred_at = excluded.last_occurred_at,
	updated_at = excluded.updated_at`

// EventState is the reconciled state kept per event kind
type EventState struct {
	Kind           string
	Count          int64
	LastPayload    string
	LastOccurredAt time.Time
}

// SQLiteSync keeps a per-kind row of event counts and the latest payload
// in a local SQLite database
type SQLiteSync struct {
	plugin.BasePlugin
	db *sql.DB
}

// NewSQLiteSync creates a new SQLite sync plugin
func NewSQLiteSync(id string) *SQLiteSync {
	return &SQLiteSync{
		BasePlugin: plugin.NewBasePlugin(id, "SQLite Sync", model.SyncPluginType),
	}
}

// Validate requires a database path
func (s *SQLiteSync) Validate() bool {
	return strings.TrimSpace(s.ConfigString("path", "")) != ""
}

// Start opens the database and creates the state table
func (s *SQLiteSync) Start() bool {
	db, err := openSQLite(s.ConfigString("path", ""))
	if err != nil {
		s.Logger.Error("cannot open state database", "error", err)
		s.SetStatus(model.StatusError)
		return false
	}
	s.db = db
	s.SetStatus(model.StatusRunning)
	return true
}

func openSQLite(path string) (*sql.DB, error) {
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

// Stop closes the database
func (s *SQLiteSync) Stop() bool {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.Logger.Warn("closing state database", "error", err)
		}
		s.db = nil
	}
	s.SetStatus(model.StatusStopped)
	return true
}

// Sync upserts the row for the event's kind
func (s *SQLiteSync) Sync(ctx context.Context, event model.Event) error {
	if s.db == nil {
		return fmt.Errorf("state database is not open")
	}
	_, err := s.db.ExecContext(ctx, sqliteUpsert,
		event.Kind,
		event.Payload,
		event.OccurredAt.UTC().UnixMilli(),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", event.Kind, err)
	}
	return nil
}

// State returns the stored row for kind
func (s *SQLiteSync) State(ctx context.Context, kind string) (EventState, error) {
	if s.db == nil {
		return EventState{}, fmt.Errorf("state database is not open")
	}
	var (
		state    = EventState{Kind: kind}
		occurred int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT count, last_payload, last_occurred_at FROM event_state WHERE kind = ?`, kind,
	).Scan(&state.Count, &state.LastPayload, &occurred)
	if err != nil {
		return EventState{}, err
	}
	state.LastOccurredAt = time.UnixMilli(occurred).UTC()
	return state, nil
}
