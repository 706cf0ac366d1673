// Package task maintains a dependency-ordered task graph with lifecycle
// states, mirroring the general mutex-guarded-struct and Service/
// snapshot persistence idiom used elsewhere in this engine's ambient
// stack, generalized here to a DAG rather than a flat list.
package task

import (
	"fmt"
	"sync"
	"time"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusSkipped    Status = "skipped"
)

// IsTerminal reports whether status permits no further transition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// satisfiesDependency reports whether a dependency in this status
// allows a dependent to become ready: completed or skipped terminal
// states satisfy it, a failed dependency only satisfies a soft edge
// (§4.4 "Failed tasks do not block dependents unless explicitly wired
// hard").
func (s Status) satisfiesDependency(hard bool) bool {
	switch s {
	case StatusCompleted, StatusSkipped:
		return true
	case StatusFailed:
		return !hard
	default:
		return false
	}
}

// Dependency is one edge in the task graph.
type Dependency struct {
	TaskID string `json:"task_id"`
	Hard   bool   `json:"hard"`
}

// Task is one node of the dependency DAG.
type Task struct {
	ID              string       `json:"task_id"`
	Description     string       `json:"description"`
	Status          Status       `json:"status"`
	Dependencies    []Dependency `json:"dependencies"`
	ResultSummary   string       `json:"result_summary,omitempty"`
	ResultDocuments []string     `json:"result_documents,omitempty"`
	StartTime       *time.Time   `json:"start_time,omitempty"`
	EndTime         *time.Time   `json:"end_time,omitempty"`
	Subtasks        []*Task      `json:"subtasks,omitempty"`
}

// ErrNotFound is returned when an operation references an unknown task id.
var ErrNotFound = fmt.Errorf("task: not found")

// Manager owns the task graph for one session. Zero value is not
// usable; construct with NewManager.
type Manager struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	order   []string
	nextSeq int

	// pendingDeps tracks, per task, how many of its dependencies have
	// not yet reached a status satisfying that edge. Maintained
	// incrementally by UpdateTask so ReadyTasks checks each task with
	// one lookup instead of walking its dependencies; ReadyTasks still
	// visits every task.
	pendingDeps map[string]int
}

// NewManager returns an empty task graph.
func NewManager() *Manager {
	return &Manager{
		tasks:       make(map[string]*Task),
		pendingDeps: make(map[string]int),
	}
}

// CreateTask adds a new pending task with the given dependency ids (all
// soft edges) and returns its id.
func (m *Manager) CreateTask(description string, dependencies ...string) string {
	deps := make([]Dependency, len(dependencies))
	for i, d := range dependencies {
		deps[i] = Dependency{TaskID: d}
	}
	return m.CreateTaskWithDeps(description, deps)
}

// CreateTaskWithDeps is CreateTask with explicit hard/soft edges.
func (m *Manager) CreateTaskWithDeps(description string, dependencies []Dependency) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSeq++
	id := fmt.Sprintf("task-%d", m.nextSeq)
	t := &Task{
		ID:           id,
		Description:  description,
		Status:       StatusPending,
		Dependencies: dependencies,
	}
	m.tasks[id] = t
	m.order = append(m.order, id)

	pending := 0
	for _, dep := range dependencies {
		if depTask, ok := m.tasks[dep.TaskID]; !ok || !depTask.Status.satisfiesDependency(dep.Hard) {
			pending++
		}
	}
	m.pendingDeps[id] = pending

	return id
}

// TaskUpdate carries the optional fields UpdateTask may change.
type TaskUpdate struct {
	Status          *Status
	ResultSummary   *string
	ResultDocuments []string
}

// UpdateTask applies a partial update and, on a transition into a
// terminal status, stamps EndTime and decrements pendingDeps for every
// dependent task.
func (m *Manager) UpdateTask(id string, update TaskUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	wasTerminal := t.Status.IsTerminal()

	if update.Status != nil {
		if *update.Status == StatusInProgress && t.StartTime == nil {
			now := time.Now()
			t.StartTime = &now
		}
		t.Status = *update.Status
	}
	if update.ResultSummary != nil {
		t.ResultSummary = *update.ResultSummary
	}
	if update.ResultDocuments != nil {
		t.ResultDocuments = update.ResultDocuments
	}

	if !wasTerminal && t.Status.IsTerminal() {
		now := time.Now()
		t.EndTime = &now
		m.decrementDependents(id)
	}

	return nil
}

func (m *Manager) decrementDependents(completedID string) {
	completed := m.tasks[completedID]
	for _, candidate := range m.tasks {
		for _, dep := range candidate.Dependencies {
			if dep.TaskID != completedID {
				continue
			}
			if completed.Status.satisfiesDependency(dep.Hard) {
				if m.pendingDeps[candidate.ID] > 0 {
					m.pendingDeps[candidate.ID]--
				}
			}
			// a hard dependency that failed leaves pendingDeps > 0
			// forever, which is the intended "blocks the dependent"
			// behavior; nothing further to do here.
		}
	}
}

// ReadyTasks returns pending tasks whose dependencies are all terminal
// (and, for hard edges, completed/skipped) — invariant 5.
func (m *Manager) ReadyTasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []string
	for _, id := range m.order {
		t := m.tasks[id]
		if t.Status == StatusPending && m.pendingDeps[id] == 0 {
			ready = append(ready, id)
		}
	}
	return ready
}

// rebuildPendingDeps recomputes every task's pendingDeps counter from
// scratch; used after restoring a Manager from a persisted snapshot,
// where the incremental counters themselves are not part of the
// serialized state.
func (m *Manager) rebuildPendingDeps() {
	for id, t := range m.tasks {
		want := 0
		for _, dep := range t.Dependencies {
			depTask, ok := m.tasks[dep.TaskID]
			if !ok || !depTask.Status.satisfiesDependency(dep.Hard) {
				want++
			}
		}
		m.pendingDeps[id] = want
	}
}

// AllDone reports whether every task has reached a terminal status.
func (m *Manager) AllDone() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// Get returns a copy of one task by id.
func (m *Manager) Get(id string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// All returns a copy of every task in creation order.
func (m *Manager) All() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.tasks[id])
	}
	return out
}
