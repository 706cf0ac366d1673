package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/task"
	"github.com/arclane/conduit/pkg/tool"
)

// TaskDecomposeSystemPrefix instructs the model to emit its subtask
// breakdown as a JSON array the agent can parse deterministically,
// immediately preceded by a human-readable planning paragraph.
const TaskDecomposeSystemPrefix = `You break the current goal into an ordered list of concrete subtasks.
Write one short paragraph explaining your breakdown in plain language, then
on its own line emit a JSON array named exactly as shown, nothing after it:

[{"description": "...", "depends_on": [0, 1], "hard": false}, ...]

"depends_on" lists the zero-based indices of subtasks (within this same
array) that must finish first. Omit "depends_on" or "hard" when not needed.`

// TaskDecompose produces an ordered subtask list with dependencies,
// writes them into the task manager, and records the parsed result
// under audit_status["task_decomposition_results"] (§4.5).
type TaskDecompose struct {
	BaseAgent
	NoOpHooks
}

func NewTaskDecompose(cfg Config) *TaskDecompose {
	if cfg.Name == "" {
		cfg.Name = "task_decompose"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = TaskDecomposeSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "planning"
	}
	return &TaskDecompose{BaseAgent: NewBase(cfg)}
}

func (a *TaskDecompose) ChunkType() chunk.Type { return chunk.TypePlanning }
func (a *TaskDecompose) AdvertiseTools() bool   { return false }
func (a *TaskDecompose) ExecuteTools() bool     { return false }

type decomposedSubtask struct {
	Description string `json:"description"`
	DependsOn   []int  `json:"depends_on"`
	Hard        bool   `json:"hard"`
}

func (a *TaskDecompose) OnFinal(_ context.Context, sess *session.Context, text string, _ []chunk.ToolCallIntent) error {
	subtasks, err := parseSubtasks(text)
	if err != nil {
		return fmt.Errorf("task_decompose: %w", err)
	}

	ids := make([]string, len(subtasks))
	for i, st := range subtasks {
		var deps []task.Dependency
		for _, depIdx := range st.DependsOn {
			if depIdx < 0 || depIdx >= len(ids) || ids[depIdx] == "" {
				continue // forward/out-of-range reference: ignore rather than fail the whole decomposition
			}
			deps = append(deps, task.Dependency{TaskID: ids[depIdx], Hard: st.Hard})
		}
		ids[i] = sess.Tasks.CreateTaskWithDeps(st.Description, deps)
	}

	sess.AuditStatus().Set("task_decomposition_results", map[string]any{
		"task_ids": ids,
		"count":    len(ids),
	})
	return nil
}

// parseSubtasks extracts the trailing JSON array from the model's
// output, tolerating the preceding explanatory paragraph.
func parseSubtasks(text string) ([]decomposedSubtask, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in decomposition output")
	}
	var subtasks []decomposedSubtask
	if err := json.Unmarshal([]byte(text[start:end+1]), &subtasks); err != nil {
		return nil, fmt.Errorf("decode subtask array: %w", err)
	}
	if len(subtasks) == 0 {
		return nil, fmt.Errorf("decomposition produced zero subtasks")
	}
	return subtasks, nil
}

func (a *TaskDecompose) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *TaskDecompose) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
