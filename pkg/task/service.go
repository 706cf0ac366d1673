package task

import (
	"fmt"
	"sync"
)

// Service persists one Manager per session id, the same persistence
// abstraction shape used by every other stateful component in this
// engine (message.Persister, session.Store).
type Service interface {
	Get(sessionID string) (*Manager, error)
	Save(sessionID string, m *Manager) error
	Delete(sessionID string) error
}

// InMemoryService is a Service backed by process memory, suitable for
// tests and single-process deployments.
type InMemoryService struct {
	mu       sync.Mutex
	managers map[string]*Manager
}

// NewInMemoryService returns an empty InMemoryService.
func NewInMemoryService() *InMemoryService {
	return &InMemoryService{managers: make(map[string]*Manager)}
}

// Get returns the Manager for sessionID, creating an empty one on first
// access.
func (s *InMemoryService) Get(sessionID string) (*Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.managers[sessionID]
	if !ok {
		m = NewManager()
		s.managers[sessionID] = m
	}
	return m, nil
}

// Save stores m as the Manager for sessionID, replacing any previous
// one; a Manager returned by Get is already the stored instance.
func (s *InMemoryService) Save(sessionID string, m *Manager) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.managers[sessionID] = m
	return nil
}

// Delete removes a session's task graph.
func (s *InMemoryService) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.managers[sessionID]; !ok {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	delete(s.managers, sessionID)
	return nil
}
