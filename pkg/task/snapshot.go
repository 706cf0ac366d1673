package task

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the serializable form of a Manager, written to
// <workspace_root>/<session_id>/tasks.json.
type Snapshot struct {
	Tasks   map[string]Task `json:"tasks"`
	Order   []string        `json:"order"`
	NextSeq int             `json:"next_seq"`
}

// ToSnapshot captures the current graph for persistence.
func (m *Manager) ToSnapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := make(map[string]Task, len(m.tasks))
	for id, t := range m.tasks {
		tasks[id] = *t
	}
	return Snapshot{
		Tasks:   tasks,
		Order:   append([]string{}, m.order...),
		NextSeq: m.nextSeq,
	}
}

// FromSnapshot replaces the graph with a previously captured Snapshot
// and rebuilds the incremental dependency counters.
func (m *Manager) FromSnapshot(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tasks = make(map[string]*Task, len(snap.Tasks))
	for id, t := range snap.Tasks {
		cp := t
		m.tasks[id] = &cp
	}
	m.order = append([]string{}, snap.Order...)
	m.nextSeq = snap.NextSeq
	m.pendingDeps = make(map[string]int, len(m.tasks))
	m.rebuildPendingDeps()
}

// SaveAtomic writes the manager's snapshot to path using the
// write-temp-then-rename convention shared with the message manager.
func (m *Manager) SaveAtomic(path string) error {
	snap := m.ToSnapshot()
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tasks-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

// LoadAtomic reads a previously saved snapshot from path, returning an
// empty Manager if the file does not yet exist.
func LoadAtomic(path string) (*Manager, error) {
	m := NewManager()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read task snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal task snapshot: %w", err)
	}
	m.FromSnapshot(snap)
	return m, nil
}
