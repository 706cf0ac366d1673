package message

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the serializable form of a Manager's state, written to
// <workspace_root>/<session_id>/messages.json (§6 "Workspace layout").
type Snapshot struct {
	Order    []string           `json:"order"`
	Messages map[string]Message `json:"messages"`
	Seq      int                `json:"seq"`
}

// Persister is the storage side of message-manager persistence; the
// filesystem implementation below satisfies it, but tests may supply an
// in-memory fake.
type Persister interface {
	Save(Snapshot) error
	Load() (Snapshot, error)
}

// FilePersister atomically writes/reads messages.json under a session
// workspace directory using the write-temp-then-rename convention.
type FilePersister struct {
	Path string // full path to messages.json
}

// Save writes snap atomically: write to a temp file in the same
// directory, then rename over Path, so no reader ever observes a
// partially written file.
func (p FilePersister) Save(snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal message snapshot: %w", err)
	}

	dir := filepath.Dir(p.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create workspace dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".messages-*.json.tmp")
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
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, p.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

// Load reads messages.json, returning an empty Snapshot if it does not
// yet exist (a brand-new session).
func (p FilePersister) Load() (Snapshot, error) {
	data, err := os.ReadFile(p.Path)
	if os.IsNotExist(err) {
		return Snapshot{Messages: map[string]Message{}}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("read message snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("unmarshal message snapshot: %w", err)
	}
	return snap, nil
}

// snapshotLocked builds a Snapshot from the current state; caller must
// hold m.mu.
func (m *Manager) snapshotLocked() Snapshot {
	msgs := make(map[string]Message, len(m.messages))
	for id, msg := range m.messages {
		msgs[id] = *msg
	}
	return Snapshot{Order: append([]string{}, m.order...), Messages: msgs, Seq: m.seq}
}

// Snapshot returns the current persisted form of the manager's state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Restore replaces the manager's state with a previously saved
// snapshot, used on session resume.
func (m *Manager) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append([]string{}, snap.Order...)
	m.messages = make(map[string]*Message, len(snap.Messages))
	for id, msg := range snap.Messages {
		cp := msg
		m.messages[id] = &cp
	}
	// seq is unexported and so not carried by JSON; rebuild it from the
	// persisted arrival order, which is exactly what seq encodes.
	for i, id := range m.order {
		if msg, ok := m.messages[id]; ok {
			msg.seq = i
		}
	}
	m.seq = snap.Seq
}
