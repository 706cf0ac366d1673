// Package sqlstore is an optional SQLite-backed task.Service for
// deployments that want task history queryable outside a session's
// workspace JSON snapshot. No core invariant depends on it; it is a
// drop-in alternative to task.InMemoryService.
package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arclane/conduit/pkg/task"
)

// Store is a task.Service backed by a SQLite database, one row per
// session holding its full graph snapshot as JSON — simple and
// sufficient, since the graph itself is never queried relationally,
// only loaded/saved whole per session.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) a SQLite database at path and ensures
// its schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite task store: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS task_snapshots (
			session_id TEXT PRIMARY KEY,
			snapshot_json TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create task_snapshots table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads the Manager for sessionID, returning an empty one if no row
// exists yet.
func (s *Store) Get(sessionID string) (*task.Manager, error) {
	var raw string
	err := s.db.QueryRow(`SELECT snapshot_json FROM task_snapshots WHERE session_id = ?`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return task.NewManager(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task snapshot: %w", err)
	}

	var snap task.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal task snapshot: %w", err)
	}
	m := task.NewManager()
	m.FromSnapshot(snap)
	return m, nil
}

// Save upserts the Manager's snapshot for sessionID.
func (s *Store) Save(sessionID string, m *task.Manager) error {
	data, err := json.Marshal(m.ToSnapshot())
	if err != nil {
		return fmt.Errorf("marshal task snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO task_snapshots (session_id, snapshot_json) VALUES (?, ?)
		ON CONFLICT(session_id) DO UPDATE SET snapshot_json = excluded.snapshot_json
	`, sessionID, string(data))
	if err != nil {
		return fmt.Errorf("upsert task snapshot: %w", err)
	}
	return nil
}

// Delete removes a session's task graph row.
func (s *Store) Delete(sessionID string) error {
	_, err := s.db.Exec(`DELETE FROM task_snapshots WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("delete task snapshot: %w", err)
	}
	return nil
}
