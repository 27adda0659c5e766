package sinks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/qiboda/atom-sub003/logging"
)

// SQLite journals events into an append-only table.
type SQLite struct {
	db   *sql.DB
	stmt *sql.Stmt
}

// JournalEntry is one stored event.
type JournalEntry struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Tick      uint64    `json:"tick"`
	Time      time.Time `json:"time"`
	Severity  string    `json:"severity"`
	Category  string    `json:"category,omitempty"`
	ActorKind string    `json:"actorKind,omitempty"`
	ActorID   string    `json:"actorId,omitempty"`
	Payload   string    `json:"payload,omitempty"`
}

// NewSQLite opens (or creates) the journal database at path.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite sink: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite sink: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite sink: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			type       TEXT    NOT NULL,
			tick       INTEGER NOT NULL,
			time_ns    INTEGER NOT NULL,
			severity   TEXT    NOT NULL,
			category   TEXT    NOT NULL DEFAULT '',
			actor_kind TEXT    NOT NULL DEFAULT '',
			actor_id   TEXT    NOT NULL DEFAULT '',
			payload    TEXT    NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
		CREATE INDEX IF NOT EXISTS idx_events_actor ON events(actor_id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite sink: migrate: %w", err)
	}

	stmt, err := db.Prepare(`INSERT INTO events
		(type, tick, time_ns, severity, category, actor_kind, actor_id, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite sink: prepare insert: %w", err)
	}
	return &SQLite{db: db, stmt: stmt}, nil
}

func (s *SQLite) Write(event logging.Event) error {
	payload := ""
	if event.Payload != nil || len(event.Extra) > 0 {
		data, err := json.Marshal(struct {
			Payload any            `json:"payload,omitempty"`
			Extra   map[string]any `json:"extra,omitempty"`
		}{event.Payload, event.Extra})
		if err != nil {
			return fmt.Errorf("sqlite sink: encode payload: %w", err)
		}
		payload = string(data)
	}
	_, err := s.stmt.Exec(
		string(event.Type),
		int64(event.Tick),
		event.Time.UnixNano(),
		event.Severity.String(),
		event.Category,
		string(event.Actor.Kind),
		event.Actor.ID,
		payload,
	)
	return err
}

// Recent returns up to limit stored events of eventType, newest first. An
// empty eventType matches every event.
func (s *SQLite) Recent(ctx context.Context, eventType string, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, tick, time_ns, severity, category, actor_kind, actor_id, payload
		FROM events
		WHERE ? = '' OR type = ?
		ORDER BY id DESC
		LIMIT ?`, eventType, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: query: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			entry  JournalEntry
			tick   int64
			timeNs int64
		)
		if err := rows.Scan(&entry.ID, &entry.Type, &tick, &timeNs, &entry.Severity,
			&entry.Category, &entry.ActorKind, &entry.ActorID, &entry.Payload); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan: %w", err)
		}
		entry.Tick = uint64(tick)
		entry.Time = time.Unix(0, timeNs)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *SQLite) Close(context.Context) error {
	s.stmt.Close()
	return s.db.Close()
}
