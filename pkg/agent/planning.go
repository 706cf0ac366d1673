package agent

import (
	"context"
	"fmt"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// PlanningSystemPrefix is Planning's constant system prompt prefix.
const PlanningSystemPrefix = "You select the next eligible subtask and propose a tool-call plan to " +
	"make progress on it. You may call tools directly if that is the most direct way to make progress; " +
	"otherwise describe the plan in plain language."

// Planning selects the next eligible task and proposes a tool-call
// plan; it may emit tool_calls itself, but does not execute them —
// Executor is responsible for running any tool_calls surfaced on a
// planning-typed message (§4.5).
type Planning struct {
	BaseAgent
	NoOpHooks
}

func NewPlanning(cfg Config) *Planning {
	if cfg.Name == "" {
		cfg.Name = "planning"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = PlanningSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "planning"
	}
	return &Planning{BaseAgent: NewBase(cfg)}
}

func (a *Planning) ChunkType() chunk.Type { return chunk.TypePlanning }
func (a *Planning) AdvertiseTools() bool   { return true }
func (a *Planning) ExecuteTools() bool     { return false }

// ContextInjection surfaces the next ready task so the model knows
// what it is selecting among, instead of re-deriving it from free text.
func (a *Planning) ContextInjection(sess *session.Context) string {
	ready := sess.Tasks.ReadyTasks()
	if len(ready) == 0 {
		return "No subtasks are currently ready; all remaining work is blocked or done."
	}
	id := ready[0]
	t, ok := sess.Tasks.Get(id)
	if !ok {
		return ""
	}
	sess.AuditStatus().Set("current_task_id", id)
	return fmt.Sprintf("Next eligible subtask (%s): %s", id, t.Description)
}

func (a *Planning) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *Planning) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
