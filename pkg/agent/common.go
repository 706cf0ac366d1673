package agent

import (
	"context"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// CommonAgentSystemPrefix is the constant system prompt prefix for
// CommonAgent, the general tool-loop agent used by rapid mode.
const CommonAgentSystemPrefix = "You answer the user, calling tools as needed to gather information " +
	"or take action, then give a direct final answer."

// CommonAgent is the general single-agent tool-loop mode used by
// `rapid` mode (§4.5, §4.6).
type CommonAgent struct {
	BaseAgent
	NoOpHooks
}

func NewCommonAgent(cfg Config) *CommonAgent {
	if cfg.Name == "" {
		cfg.Name = "common_agent"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = CommonAgentSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "default"
	}
	return &CommonAgent{BaseAgent: NewBase(cfg)}
}

func (a *CommonAgent) ChunkType() chunk.Type { return chunk.TypeNormal }
func (a *CommonAgent) AdvertiseTools() bool   { return true }
func (a *CommonAgent) ExecuteTools() bool     { return true }

func (a *CommonAgent) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *CommonAgent) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
