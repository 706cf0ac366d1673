// Package llm exposes a uniform streaming interface to any
// OpenAI-chat-completions-compatible endpoint (§4.1).
package llm

import (
	"context"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
)

// Message is one entry of the prompt sent to a Provider.
type Message struct {
	Role       chunk.Role             `json:"role"`
	Content    string                 `json:"content"`
	ToolCalls  []chunk.ToolCallIntent `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Name       string                 `json:"name,omitempty"`
}

// ToolDefinition is the wire shape of one callable tool offered to the
// model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ModelConfig parameterizes one stream_chat call.
type ModelConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Tools       []ToolDefinition
}

// DeltaType classifies a ChatDelta.
type DeltaType string

const (
	DeltaContent  DeltaType = "content"
	DeltaToolCall DeltaType = "tool_call"
	DeltaFinish   DeltaType = "finish"
	DeltaError    DeltaType = "error"
)

// ToolCallDelta is one raw argument fragment of a tool call in
// progress. ID and Name are only populated on the fragment that first
// introduces a given Index; ArgumentsFragment must be concatenated
// across every delta sharing an Index before being parsed as JSON —
// providers stream tool-call arguments as a split JSON string, not
// as pre-parsed objects (§4.1).
type ToolCallDelta struct {
	Index             int
	ID                string
	Name              string
	ArgumentsFragment string
}

// ChatDelta is one incremental unit of a streamed completion.
type ChatDelta struct {
	Type       DeltaType
	Content    string
	ToolCall   *ToolCallDelta    // raw fragment; Index disambiguates parallel calls
	FinishedBy string            // finish_reason, set on DeltaFinish
	Usage      *chunk.UsageStats // set on the terminal delta only
	Err        error
}

// Provider is satisfied by every wire-format-specific client.
type Provider interface {
	// StreamChat streams deltas for one call. The caller is responsible
	// for assembling tool-call deltas into whole calls by Index before
	// invoking the tool manager (§4.1).
	StreamChat(ctx context.Context, messages []Message, cfg ModelConfig, stepName, sessionID string) iter.Seq2[ChatDelta, error]
}

// Registry resolves a named Provider, letting callers register more
// than one OpenAI-compatible endpoint (e.g. a second base URL) under a
// distinct name. Lookup is by that name only (see Get); ModelConfig is
// not consulted to pick a provider.
type Registry struct {
	providers map[string]Provider
	def       string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register installs provider under name; the first registered provider
// becomes the default.
func (r *Registry) Register(name string, provider Provider) {
	r.providers[name] = provider
	if r.def == "" {
		r.def = name
	}
}

// SetDefault overrides which registered provider Get("") resolves to.
func (r *Registry) SetDefault(name string) { r.def = name }

// Get resolves a provider by name, falling back to the default when
// name is empty.
func (r *Registry) Get(name string) (Provider, bool) {
	if name == "" {
		name = r.def
	}
	p, ok := r.providers[name]
	return p, ok
}
