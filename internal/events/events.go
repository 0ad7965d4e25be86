// Package events is the append-only structured event log that accompanies
// a session. It records what happened (routing decisions, review verdicts,
// recoveries) for later inspection, writes independently of the state
// store, and is deliberately not subject to the state file's locking
// discipline: SQLite's own WAL serializes appenders.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Event types appended by the session loop and state store consumers.
const (
	TypeSessionStarted  = "session_started"
	TypeSessionResumed  = "session_resumed"
	TypeTaskRouted      = "task_routed"
	TypeGenerationDone  = "generation_completed"
	TypeReviewRecorded  = "review_recorded"
	TypeRepairAttempted = "repair_attempted"
	TypeStateRecovered  = "state_recovered"
	TypeSessionFinished = "session_finished"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	agent TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id, id);
`

// Event is one append-only log record.
type Event struct {
	ID        int64
	SessionID string
	Type      string
	Agent     string
	Detail    string
	CreatedAt time.Time
}

// Log is a SQLite-backed append-only event log.
type Log struct {
	db *sql.DB
}

// Open creates or opens the event log at path. WAL mode keeps appends from
// different processes from blocking each other.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create events dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open events db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create events schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Append writes one event. CreatedAt is stamped here; the caller supplies
// the rest.
func (l *Log) Append(ctx context.Context, e Event) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, agent, detail, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.SessionID, e.Type, e.Agent, e.Detail, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns up to limit events for a session, newest first. An empty
// sessionID returns events across all sessions.
func (l *Log) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, session_id, event_type, agent, detail, created_at FROM events`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &e.Agent, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.CreatedAt = ts
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
