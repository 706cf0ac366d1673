package agent

import (
	"context"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// ReactAgentSystemPrefix is the constant system prompt prefix for
// ReactAgent, asking for an explicit reasoning trace before acting.
const ReactAgentSystemPrefix = "You answer the user, thinking step by step. Narrate your reasoning " +
	"before calling a tool, then react to its result before deciding what to do next."

// ReactAgent is a single-agent mode producing a classic ReAct
// transcript: reasoning, tool call, observation, interleaved inline
// within one stream rather than split across separate agents (§4.5).
type ReactAgent struct {
	BaseAgent
	NoOpHooks
}

func NewReactAgent(cfg Config) *ReactAgent {
	if cfg.Name == "" {
		cfg.Name = "react_agent"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = ReactAgentSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "default"
	}
	return &ReactAgent{BaseAgent: NewBase(cfg)}
}

func (a *ReactAgent) ChunkType() chunk.Type { return chunk.TypeThinking }
func (a *ReactAgent) AdvertiseTools() bool   { return true }
func (a *ReactAgent) ExecuteTools() bool     { return true }

func (a *ReactAgent) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *ReactAgent) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
