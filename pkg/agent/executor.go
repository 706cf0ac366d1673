package agent

import (
	"context"
	"fmt"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/task"
	"github.com/arclane/conduit/pkg/tool"
)

// ExecutorSystemPrefix is Executor's constant system prompt prefix.
const ExecutorSystemPrefix = "You carry out the tool-call plan from the prior planning step, calling " +
	"tools as needed until the plan's immediate goal is reached."

// Executor runs tool calls and observes their results via the shared
// tool-execution loop (§4.5).
type Executor struct {
	BaseAgent
	NoOpHooks
}

func NewExecutor(cfg Config) *Executor {
	if cfg.Name == "" {
		cfg.Name = "executor"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = ExecutorSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "execution"
	}
	return &Executor{BaseAgent: NewBase(cfg)}
}

func (a *Executor) ChunkType() chunk.Type { return chunk.TypeExecution }
func (a *Executor) AdvertiseTools() bool   { return true }
func (a *Executor) ExecuteTools() bool     { return true }

// ContextInjection marks the task Planning selected as in-progress the
// first time Executor picks it up, so Task invariant 4 (start_time set
// before completion) holds without a separate bookkeeping step.
func (a *Executor) ContextInjection(sess *session.Context) string {
	id, ok := sess.AuditStatus().Get("current_task_id")
	idStr, _ := id.(string)
	if !ok || idStr == "" {
		return ""
	}
	t, ok := sess.Tasks.Get(idStr)
	if !ok || t.Status != task.StatusPending {
		return ""
	}
	inProgress := task.StatusInProgress
	_ = sess.Tasks.UpdateTask(idStr, task.TaskUpdate{Status: &inProgress})
	return fmt.Sprintf("Working on subtask %s: %s", idStr, t.Description)
}

func (a *Executor) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *Executor) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
