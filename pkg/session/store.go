package session

import (
	"context"
	"path/filepath"
	"sync"
)

// Store looks up or creates the one Context per session id shared by
// the controller across a turn's agent stages (§3 "Ownership").
type Store struct {
	mu            sync.Mutex
	sessions      map[string]*Context
	workspaceRoot string
	model         string
	contextBudget int
}

// StoreConfig configures a Store.
type StoreConfig struct {
	WorkspaceRoot string
	Model         string
	ContextBudget int
}

// NewStore creates an empty Store.
func NewStore(cfg StoreConfig) *Store {
	return &Store{
		sessions:      make(map[string]*Context),
		workspaceRoot: cfg.WorkspaceRoot,
		model:         cfg.Model,
		contextBudget: cfg.ContextBudget,
	}
}

// GetOrCreate returns the existing Context for sessionID, or creates one
// rooted at <workspaceRoot>/<sessionID>/ (§6 "Workspace layout").
func (s *Store) GetOrCreate(parent context.Context, sessionID, userID string) (ctx *Context, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		return existing, false
	}

	var workspace string
	if s.workspaceRoot != "" {
		workspace = filepath.Join(s.workspaceRoot, sessionID)
	}

	c := New(parent, Config{
		SessionID:     sessionID,
		UserID:        userID,
		WorkspaceRoot: workspace,
		ContextBudget: s.contextBudget,
		Model:         s.model,
	})
	s.sessions[sessionID] = c
	return c, true
}

// Delete evicts a session's Context (explicit shutdown or idle
// eviction, both implementation-defined per §3).
func (s *Store) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// List returns every currently tracked session id.
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
