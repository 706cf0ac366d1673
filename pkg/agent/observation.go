package agent

import (
	"context"
	"iter"
	"strings"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/task"
	"github.com/arclane/conduit/pkg/tool"
)

// ObservationSystemPrefix instructs the model to end its synthesis
// with a literal status marker the agent parses deterministically.
const ObservationSystemPrefix = `You review the tool results from the prior execution step and decide
whether the current subtask is now complete. End your response with exactly
one of these lines, and nothing after it:

STATUS: COMPLETE
STATUS: INCOMPLETE
STATUS: FAILED`

// Observation synthesizes subtask completion, updates task status, and
// records an informational observation_complete flag in audit_status;
// re-planning itself happens because an INCOMPLETE subtask is returned
// to pending, which makes it visible to ReadyTasks() again (§4.5, §4.6
// step 4).
type Observation struct {
	BaseAgent
	NoOpHooks
}

func NewObservation(cfg Config) *Observation {
	if cfg.Name == "" {
		cfg.Name = "observation"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = ObservationSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "observation"
	}
	return &Observation{BaseAgent: NewBase(cfg)}
}

func (a *Observation) ChunkType() chunk.Type { return chunk.TypeObservation }
func (a *Observation) AdvertiseTools() bool   { return false }
func (a *Observation) ExecuteTools() bool     { return false }

func (a *Observation) OnFinal(_ context.Context, sess *session.Context, text string, _ []chunk.ToolCallIntent) error {
	status := parseObservationStatus(text)

	id, _ := sess.AuditStatus().Get("current_task_id")
	idStr, _ := id.(string)

	complete := status == task.StatusCompleted || status == task.StatusFailed
	sess.AuditStatus().Set("observation_complete", complete)

	if idStr == "" {
		return nil
	}

	// an INCOMPLETE subtask goes back to pending rather than staying
	// in_progress, so the next deep-mode iteration's ReadyTasks() picks
	// it up again and re-enters Planning instead of treating it as
	// permanently blocked (§4.6 step 4).
	next := status
	if status == task.StatusInProgress {
		next = task.StatusPending
	}
	return sess.Tasks.UpdateTask(idStr, task.TaskUpdate{Status: &next})
}

func parseObservationStatus(text string) task.Status {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "STATUS: COMPLETE"):
		return task.StatusCompleted
	case strings.Contains(upper, "STATUS: FAILED"):
		return task.StatusFailed
	default:
		return task.StatusInProgress
	}
}

func (a *Observation) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *Observation) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
