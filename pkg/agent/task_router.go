package agent

import (
	"context"
	"iter"
	"strings"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// TaskRouterSystemPrefix instructs the model to answer with exactly one
// mode name.
const TaskRouterSystemPrefix = `You classify the user's latest request into exactly one of these modes
and respond with ONLY that single word, nothing else:

deep     - the request needs multi-step decomposition and planning
standard - the request needs some tool use but is not deeply multi-step
rapid    - the request is simple enough for a single direct response`

// RouterModes are the valid outputs TaskRouter is constrained to.
var RouterModes = map[string]bool{"deep": true, "standard": true, "rapid": true}

// TaskRouter classifies the request and records the chosen downstream
// mode under audit_status["routed_mode"] (§4.5).
type TaskRouter struct {
	BaseAgent
	NoOpHooks
}

func NewTaskRouter(cfg Config) *TaskRouter {
	if cfg.Name == "" {
		cfg.Name = "task_router"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = TaskRouterSystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "task_analysis"
	}
	return &TaskRouter{BaseAgent: NewBase(cfg)}
}

func (a *TaskRouter) ChunkType() chunk.Type { return chunk.TypeNormal }
func (a *TaskRouter) AdvertiseTools() bool   { return false }
func (a *TaskRouter) ExecuteTools() bool     { return false }

func (a *TaskRouter) OnFinal(_ context.Context, sess *session.Context, text string, _ []chunk.ToolCallIntent) error {
	mode := strings.ToLower(strings.TrimSpace(text))
	if !RouterModes[mode] {
		mode = "standard" // unparseable classification defaults to the balanced mode
	}
	sess.AuditStatus().Set("routed_mode", mode)
	return nil
}

func (a *TaskRouter) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *TaskRouter) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
