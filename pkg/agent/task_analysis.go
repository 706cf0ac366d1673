package agent

import (
	"context"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// TaskAnalysisSystemPrefix is the constant system prompt prefix for
// TaskAnalysis (§4.5).
const TaskAnalysisSystemPrefix = "You analyze the user's latest request and produce a structured " +
	"understanding of it: goals, constraints, and success criteria. Do not call tools."

// TaskAnalysis reads the latest user message and produces a structured
// understanding. It never calls tools.
type TaskAnalysis struct {
	BaseAgent
	NoOpHooks
}

// NewTaskAnalysis builds a TaskAnalysis agent. cfg.SystemPrefix and
// cfg.Filter are set to this agent's canonical values if left empty.
func NewTaskAnalysis(cfg Config) *TaskAnalysis {
	if cfg.Name == "" {
		cfg.Name = "task_analysis"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = TaskAnalysisSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "task_analysis"
	}
	return &TaskAnalysis{BaseAgent: NewBase(cfg)}
}

func (a *TaskAnalysis) ChunkType() chunk.Type { return chunk.TypeTaskAnalysis }
func (a *TaskAnalysis) AdvertiseTools() bool   { return false }
func (a *TaskAnalysis) ExecuteTools() bool     { return false }

func (a *TaskAnalysis) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *TaskAnalysis) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
