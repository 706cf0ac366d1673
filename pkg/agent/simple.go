package agent

import (
	"context"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// SimpleAgentSystemPrefix is the constant system prompt prefix for SimpleAgent.
const SimpleAgentSystemPrefix = "You answer the user directly and concisely. You have no tools available."

// SimpleAgent is a single-agent mode that never calls tools and skips
// decomposition entirely (§4.5).
type SimpleAgent struct {
	BaseAgent
	NoOpHooks
}

func NewSimpleAgent(cfg Config) *SimpleAgent {
	if cfg.Name == "" {
		cfg.Name = "simple_agent"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = SimpleAgentSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "default"
	}
	return &SimpleAgent{BaseAgent: NewBase(cfg)}
}

func (a *SimpleAgent) ChunkType() chunk.Type { return chunk.TypeNormal }
func (a *SimpleAgent) AdvertiseTools() bool   { return false }
func (a *SimpleAgent) ExecuteTools() bool     { return false }

func (a *SimpleAgent) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *SimpleAgent) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
