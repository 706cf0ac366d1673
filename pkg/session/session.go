// Package session owns the per-session bundle of state the rest of the
// engine operates on: workspace, message manager, task manager,
// cancellation, and the audit_status hand-off blob (§3
// "SessionContext").
package session

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/message"
	"github.com/arclane/conduit/pkg/task"
)

// AuditStatus is the per-session key/value blob used for structured
// agent-to-agent hand-off (Design Note "Structured hand-off"): agents
// that produce structured output write it here instead of relying on
// downstream agents to parse prior chunk text.
type AuditStatus struct {
	mu   sync.RWMutex
	data map[string]any
}

func newAuditStatus() *AuditStatus {
	return &AuditStatus{data: make(map[string]any)}
}

// Set stores a value under key.
func (a *AuditStatus) Set(key string, value any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data[key] = value
}

// Get retrieves a value previously stored under key.
func (a *AuditStatus) Get(key string) (any, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	v, ok := a.data[key]
	return v, ok
}

// All returns a shallow copy of the full blob, used when filtering
// internal keys before handing state to a sub-session (mirrors the
// teacher's agent-as-tool state filtering, generalized to this engine's
// single audit_status blob rather than a whole session-state map).
func (a *AuditStatus) All() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]any, len(a.data))
	for k, v := range a.data {
		out[k] = v
	}
	return out
}

// Context is the owned bundle of one session's state. A Context
// exclusively owns its Messages and Tasks managers; the controller
// shares a *Context by reference across every agent stage of one turn.
type Context struct {
	id            string
	userID        string
	workspaceRoot string
	contextBudget int

	Messages *message.Manager
	Tasks    *task.Manager

	mu       sync.Mutex // serializes concurrent requests for this session id
	busy     bool
	cancelFn context.CancelFunc
	ctx      context.Context

	audit *AuditStatus

	createdAt      time.Time
	lastActivityAt time.Time
}

// Config configures a new Context.
type Config struct {
	SessionID     string
	UserID        string
	WorkspaceRoot string // the session's own subdirectory under the global workspace root
	ContextBudget int     // max tokens allocated to history; 0 uses DefaultContextBudget
	Model         string
}

// DefaultContextBudget is used when Config.ContextBudget is unset.
const DefaultContextBudget = 32000

// New creates a fresh Context, wiring its Messages manager to persist
// under WorkspaceRoot/messages.json.
func New(parent context.Context, cfg Config) *Context {
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}

	ctx, cancel := context.WithCancel(parent)

	var persister message.Persister
	if cfg.WorkspaceRoot != "" {
		persister = message.FilePersister{Path: filepath.Join(cfg.WorkspaceRoot, "messages.json")}
	}

	return &Context{
		id:            cfg.SessionID,
		userID:        cfg.UserID,
		workspaceRoot: cfg.WorkspaceRoot,
		contextBudget: cfg.ContextBudget,
		Messages:      message.NewManager(message.Config{Model: cfg.Model, Persister: persister}),
		Tasks:         task.NewManager(),
		ctx:           ctx,
		cancelFn:      cancel,
		audit:         newAuditStatus(),
		createdAt:     time.Now(),
		lastActivityAt: time.Now(),
	}
}

func (c *Context) ID() string              { return c.id }
func (c *Context) UserID() string          { return c.userID }
func (c *Context) WorkspaceRoot() string   { return c.workspaceRoot }
func (c *Context) ContextBudget() int      { return c.contextBudget }
func (c *Context) Context() context.Context { return c.ctx }
func (c *Context) AuditStatus() *AuditStatus { return c.audit }

// TryLock acquires the per-session lock without blocking, reporting
// session_busy semantics (§5 "a second concurrent call... fails with
// session_busy") to the caller instead of queuing.
func (c *Context) TryLock() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return false
	}
	c.busy = true
	c.lastActivityAt = time.Now()
	return true
}

// Unlock releases the per-session lock acquired by TryLock.
func (c *Context) Unlock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
}

// Cancel sets the cancellation flag, aborting in-flight LLM streams and
// tool calls bound to c.Context() (§4.6 "Cancellation").
func (c *Context) Cancel(reason string) {
	c.audit.Set("cancel_reason", reason)
	c.cancelFn()
}

// Cancelled reports whether Cancel has been called.
func (c *Context) Cancelled() bool {
	return c.ctx.Err() != nil
}

// SeedUserMessage merges a synthetic final user MessageChunk, used by
// agenttool to hand a request to a sub-session without going through
// the controller's normal request path.
func (c *Context) SeedUserMessage(content string) {
	c.Messages.Merge(&chunk.MessageChunk{
		MessageID: uuid.NewString(),
		Role:      chunk.RoleUser,
		Type:      chunk.TypeNormal,
		Content:   content,
		SessionID: c.id,
		IsFinal:   true,
		Timestamp: time.Now(),
	})
}

// NewSubSession creates a transient child Context whose workspace is a
// subdirectory of the parent's and whose cancellation is derived from
// the parent's (Design Note "Agent-as-tool recursion": "the parent's
// cancellation must propagate into the child").
func (c *Context) NewSubSession(agentName string) (*Context, error) {
	childID := fmt.Sprintf("%s-%s", c.id, uuid.NewString())
	var workspace string
	if c.workspaceRoot != "" {
		workspace = filepath.Join(c.workspaceRoot, "subsessions", childID)
	}

	child := New(c.ctx, Config{
		SessionID:     childID,
		UserID:        c.userID,
		WorkspaceRoot: workspace,
		ContextBudget: c.contextBudget,
	})
	child.audit.Set("parent_session_id", c.id)
	child.audit.Set("delegating_agent", agentName)
	return child, nil
}

// Touch records request activity, used by an idle-eviction policy (§3
// "destroyed on... idle-eviction (implementation-defined, not core)").
func (c *Context) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivityAt = time.Now()
}

// IdleSince reports how long it has been since the last recorded activity.
func (c *Context) IdleSince() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastActivityAt)
}

// SaveTasksSnapshot persists the task graph to the session workspace,
// using the same atomic write convention as the message manager.
func (c *Context) SaveTasksSnapshot() error {
	if c.workspaceRoot == "" {
		return nil
	}
	return c.Tasks.SaveAtomic(filepath.Join(c.workspaceRoot, "tasks.json"))
}
