// Package message accumulates streaming chunk.MessageChunk values into
// logical messages, applies per-agent filter strategies, compresses to a
// token budget, and persists the result atomically to a session's
// workspace.
package message

import (
	"sort"
	"sync"
	"time"

	"github.com/arclane/conduit/pkg/chunk"
)

// Message is the accumulation of every chunk sharing a MessageID: the
// unit stored, filtered, compressed, and sent to the LLM.
type Message struct {
	MessageID  string                `json:"message_id"`
	Role       chunk.Role            `json:"role"`
	Type       chunk.Type            `json:"type"`
	Content    string                `json:"content"`
	ToolCalls  []chunk.ToolCallIntent `json:"tool_calls,omitempty"`
	ToolCallID string                `json:"tool_call_id,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Final      bool                  `json:"final"`
	Usage      *chunk.UsageStats     `json:"usage_stats,omitempty"`
	seq        int
}

// Manager owns the ordered logical-message list for one session and is
// the exclusive mutator of it (SessionContext owns one Manager).
type Manager struct {
	mu       sync.Mutex
	order    []string // message_id insertion order
	messages map[string]*Message
	seq      int

	tokens    *TokenCounter
	persister Persister
}

// Config configures a new Manager.
type Config struct {
	Model     string    // for token-counter selection
	Persister Persister // nil disables persistence
}

// NewManager builds an empty Manager for one session.
func NewManager(cfg Config) *Manager {
	tc, err := NewTokenCounter(cfg.Model)
	if err != nil {
		tc = fallbackCounter()
	}
	return &Manager{
		order:     nil,
		messages:  make(map[string]*Message),
		tokens:    tc,
		persister: cfg.Persister,
	}
}

// Merge applies one chunk to the logical message list per §4.3's merge
// rule, returning false if the chunk was discarded (empty, non-final,
// no tool calls).
func (m *Manager) Merge(c *chunk.MessageChunk) bool {
	if c.Empty() {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.messages[c.MessageID]
	if !ok {
		m.seq++
		existing = &Message{
			MessageID: c.MessageID,
			Role:      c.Role,
			Type:      c.Type,
			CreatedAt: c.Timestamp,
			seq:       m.seq,
		}
		m.messages[c.MessageID] = existing
		m.order = append(m.order, c.MessageID)
	}

	if c.IsToolResult() {
		existing.Content = c.Content
		existing.ToolCallID = c.ToolCallID
	} else {
		existing.Content += c.Content
	}

	if len(c.ToolCalls) > 0 {
		existing.ToolCalls = mergeToolCalls(existing.ToolCalls, c.ToolCalls)
	}
	existing.Type = c.Type
	existing.UpdatedAt = c.Timestamp
	if c.IsFinal {
		existing.Final = true
	}
	if c.Usage != nil {
		if existing.Usage == nil {
			existing.Usage = &chunk.UsageStats{}
		}
		existing.Usage.Add(*c.Usage)
	}

	if m.persister != nil {
		snap := m.snapshotLocked()
		_ = m.persister.Save(snap) // persistence failures are logged by the caller's controller, not fatal here
	}

	return true
}

func mergeToolCalls(existing, incoming []chunk.ToolCallIntent) []chunk.ToolCallIntent {
	byIndex := make(map[int]int, len(existing))
	for i, tc := range existing {
		byIndex[tc.Index] = i
	}
	for _, tc := range incoming {
		if i, ok := byIndex[tc.Index]; ok {
			if tc.Name != "" {
				existing[i].Name = tc.Name
			}
			if tc.ID != "" {
				existing[i].ID = tc.ID
			}
			if tc.Arguments != nil {
				existing[i].Arguments = tc.Arguments
			}
			continue
		}
		byIndex[tc.Index] = len(existing)
		existing = append(existing, tc)
	}
	return existing
}

// All returns the logical message list in arrival order. The returned
// slice is a copy; mutating it does not affect the Manager.
func (m *Manager) All() []*Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Message, 0, len(m.order))
	for _, id := range m.order {
		msg := *m.messages[id]
		out = append(out, &msg)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Get returns the logical message for a message id, if present.
func (m *Manager) Get(messageID string) (*Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[messageID]
	if !ok {
		return nil, false
	}
	cp := *msg
	return &cp, true
}

// ForLLM applies a named filter strategy, then compresses the result to
// fit budget tokens, returning the exact message list to send to the
// LLM for one agent turn.
func (m *Manager) ForLLM(strategy string, budget int) []*Message {
	filtered := Filter(m.All(), strategy)
	return m.Compress(filtered, budget)
}
