package controller

import (
	"context"
	"iter"

	"github.com/google/uuid"

	"github.com/arclane/conduit/pkg/agent"
	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
)

// AgentFlow runs a caller-supplied, fixed, ordered list of agents with
// the same chunk-forwarding and cancellation contract as the
// controller, but never consults the task manager between stages;
// sequencing is purely positional (§4.7).
type AgentFlow struct {
	agents []agent.Agent
}

// NewAgentFlow builds a flow over agents, run in the given order.
func NewAgentFlow(agents ...agent.Agent) *AgentFlow {
	return &AgentFlow{agents: agents}
}

// RunStream runs every agent of the flow in order against sess,
// forwarding their chunks. A cancelled session stops the flow before
// its next stage with a single terminal cancellation chunk, the same
// shape a single agent would produce on its own.
func (f *AgentFlow) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return func(yield func(chunk.MessageChunk, error) bool) {
		for _, a := range f.agents {
			if sess.Cancelled() {
				c := chunk.Cancelled(sess.ID(), uuid.NewString())
				sess.Messages.Merge(c)
				yield(*c, nil)
				return
			}
			for c, err := range a.RunStream(ctx, sess) {
				if err != nil {
					if !yield(chunk.MessageChunk{}, err) {
						return
					}
					continue
				}
				if !yield(c, nil) {
					return
				}
			}
		}
	}
}
