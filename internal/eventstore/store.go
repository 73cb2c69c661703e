// Package eventstore persists release lifecycle events to SQLite, giving the
// daemon a durable history of builds and deployments.
package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// EventType names a release lifecycle event.
type EventType string

const (
	EventReleaseStarted   EventType = "ReleaseStarted"
	EventJobStarted       EventType = "JobStarted"
	EventJobCompleted     EventType = "JobCompleted"
	EventJobFailed        EventType = "JobFailed"
	EventReleaseCompleted EventType = "ReleaseCompleted"
	EventReleaseFailed    EventType = "ReleaseFailed"
	EventReleaseCanceled  EventType = "ReleaseCanceled"
	EventDocsDeployed     EventType = "DocsDeployed"
)

// Event is one persisted release lifecycle event.
type Event struct {
	ID        int64           `json:"id"`
	ReleaseID string          `json:"release_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Store is a SQLite-backed event log.
// Use ":memory:" for an in-memory database, or a file path for persistence.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (and initializes) the event store.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open event store database: %w", err)
	}
	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize event store schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS release_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		release_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_release_id ON release_events(release_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON release_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append records a new event. The payload is marshaled to JSON; nil payloads
// are stored empty.
func (s *Store) Append(ctx context.Context, releaseID string, eventType EventType, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A nil slice would insert SQL NULL, which does not scan back into a
	// RawMessage; keep the column a blob.
	data := []byte{}
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal event payload: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO release_events (release_id, event_type, timestamp, payload) VALUES (?, ?, ?, ?)",
		releaseID, string(eventType), time.Now().Unix(), data,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ByRelease returns all events for one release in insertion order.
func (s *Store) ByRelease(ctx context.Context, releaseID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, release_id, event_type, timestamp, payload FROM release_events WHERE release_id = ? ORDER BY id",
		releaseID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Recent returns the most recent events across releases, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, release_id, event_type, timestamp, payload FROM release_events ORDER BY id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			e       Event
			rawType string
			unix    int64
			payload []byte
		)
		if err := rows.Scan(&e.ID, &e.ReleaseID, &rawType, &unix, &payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Type = EventType(rawType)
		e.Timestamp = time.Unix(unix, 0)
		if len(payload) > 0 {
			e.Payload = payload
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return events, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
