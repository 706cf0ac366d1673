package agent

import (
	"context"
	"iter"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// SummarySystemPrefix is Summary's constant system prompt prefix.
const SummarySystemPrefix = "You read the full execution history of this request and write one " +
	"final answer for the user, summarizing what was accomplished and noting any unresolved parts."

// Summary reads all execution history and emits one final_answer
// message; the controller may force a Summary stage even on partial
// failure so the user always gets a closing message (§4.5).
type Summary struct {
	BaseAgent
	NoOpHooks
}

func NewSummary(cfg Config) *Summary {
	if cfg.Name == "" {
		cfg.Name = "summary"
	}
	if cfg.SystemPrefix == "" {
		cfg.SystemPrefix = SummarySystemPrefix
	}
	if cfg.Filter == "" {
		cfg.Filter = "summary"
	}
	return &Summary{BaseAgent: NewBase(cfg)}
}

func (a *Summary) ChunkType() chunk.Type { return chunk.TypeFinalAnswer }
func (a *Summary) AdvertiseTools() bool   { return false }
func (a *Summary) ExecuteTools() bool     { return false }

// moreSuggestInstruction is appended to the system prompt when the
// request carried more_suggest, nudging the closing synthesis toward
// proposed follow-up actions rather than a plain report (§6
// "more_suggest").
const moreSuggestInstruction = " In addition to summarizing what was done, suggest one or two concrete " +
	"follow-up actions the user could take next."

// ContextInjection overrides NoOpHooks to read the more_suggest flag
// RunStream stashed in audit_status and fold it into the system prompt.
func (a *Summary) ContextInjection(sess *session.Context) string {
	more, _ := sess.AuditStatus().Get("more_suggest")
	if suggest, ok := more.(bool); ok && suggest {
		return moreSuggestInstruction
	}
	return ""
}

func (a *Summary) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return a.stream(ctx, sess, a)
}

func (a *Summary) ToTool(parent *session.Context) tool.Callable { return wrapAsTool(a, parent) }
