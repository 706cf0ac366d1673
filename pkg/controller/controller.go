// Package controller implements the top-level entry point of the
// engine: mode selection, per-session locking, stage sequencing, and
// cancellation propagation (§4.6 "Agent Controller").
package controller

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arclane/conduit/pkg/agent"
	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/llm"
	"github.com/arclane/conduit/pkg/observability"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// Deps are the shared, session-independent collaborators every mode's
// agents are built from (§4.6 "Session isolation": "share only the tool
// manager and LLM client").
type Deps struct {
	Provider llm.Provider
	Model    llm.ModelConfig
	Tools    *tool.Manager

	// Obs is optional; a nil Obs degrades every span/metric call in this
	// package to a no-op (§9 "Observability hooks").
	Obs *observability.Provider

	// DefaultMaxLoopCount overrides DefaultMaxLoopCount for deep mode
	// when Options.MaxLoopCount is unset; 0 falls back to the package
	// constant. Set from config so max_loop_count's default can change
	// via UpdateDeps without a process restart (§9 "Configuration
	// hot-reload").
	DefaultMaxLoopCount int
}

// DefaultMaxLoopCount is used when Options.MaxLoopCount and
// Deps.DefaultMaxLoopCount are both unset.
const DefaultMaxLoopCount = 10

// MaxLoopCountCeiling is the upper bound Options.MaxLoopCount is clamped
// to (§4.6 "configurable 1-50").
const MaxLoopCountCeiling = 50

// Options configures one RunStream call.
type Options struct {
	Mode          string
	MaxLoopCount  int // controller-level re-plan loop count; 0 uses DefaultMaxLoopCount
	ForceSummary  bool
	Flow          *AgentFlow // required when Mode == "custom"
	WorkspaceRoot string
	ContextBudget int

	// AvailableTools narrows every stage agent's visible tool set to this
	// allow-list for the duration of the run; empty means every
	// registered tool stays visible (§6 "available_tools").
	AvailableTools []string

	// MoreSuggest hints that the Summary agent's closing synthesis should
	// lean toward proposing follow-up actions rather than just reporting
	// what happened (§6 "more_suggest", §9).
	MoreSuggest bool
}

func (o Options) maxLoop(configuredDefault int) int {
	def := configuredDefault
	if def <= 0 {
		def = DefaultMaxLoopCount
	}
	switch {
	case o.MaxLoopCount <= 0:
		return def
	case o.MaxLoopCount > MaxLoopCountCeiling:
		return MaxLoopCountCeiling
	default:
		return o.MaxLoopCount
	}
}

// ModeRunner drives one full mode's stage sequence for one session,
// yielding the chunks the controller forwards to its caller.
type ModeRunner func(ctx context.Context, sess *session.Context, opts Options) iter.Seq2[chunk.MessageChunk, error]

// StageFactory builds a ModeRunner from the controller's shared
// dependencies. Registering a new entry under a new mode name is the
// whole extension point; the controller itself never type-switches on
// mode name (Design Note "dynamic agent dispatch").
type StageFactory func(deps Deps) ModeRunner

var defaultRegistry = map[string]StageFactory{
	"deep":     deepMode,
	"standard": standardMode,
	"rapid":    rapidMode,
	"custom":   customMode,
	"auto":     autoMode,
}

func cloneRegistry(src map[string]StageFactory) map[string]StageFactory {
	out := make(map[string]StageFactory, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// ErrSessionBusy is returned when a second concurrent call targets a
// session_id already mid-request.
type ErrSessionBusy struct{ SessionID string }

func (e *ErrSessionBusy) Error() string {
	return fmt.Sprintf("controller: session %q is busy", e.SessionID)
}

// ErrUnknownSession is returned by Cancel for a session_id the
// controller has never seen.
type ErrUnknownSession struct{ SessionID string }

func (e *ErrUnknownSession) Error() string {
	return fmt.Sprintf("controller: unknown session %q", e.SessionID)
}

// ErrUnknownMode is returned when Options.Mode names no registered
// StageFactory.
type ErrUnknownMode struct{ Mode string }

func (e *ErrUnknownMode) Error() string {
	return fmt.Sprintf("controller: unknown mode %q", e.Mode)
}

// AgentController is the top-level entry point of the engine (§4.6).
// One AgentController is shared across every request; it owns the
// session registry and the mode registry.
type AgentController struct {
	deps Deps
	log  *slog.Logger

	mu       sync.Mutex
	registry map[string]StageFactory
	sessions map[string]*session.Context
}

// NewController builds a controller wired to deps, with the five
// built-in modes (deep, standard, rapid, custom, auto) registered.
func NewController(deps Deps, log *slog.Logger) *AgentController {
	if log == nil {
		log = slog.Default()
	}
	return &AgentController{
		deps:     deps,
		log:      log,
		registry: cloneRegistry(defaultRegistry),
		sessions: make(map[string]*session.Context),
	}
}

// RegisterMode adds or overrides one mode's StageFactory, letting a
// caller supply a test-only registry or an additional mode without
// modifying this package.
func (c *AgentController) RegisterMode(name string, factory StageFactory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registry[name] = factory
}

// UpdateDeps swaps the shared Deps every subsequent RunStream call
// builds its stages from (§9 "Configuration hot-reload"): an
// already-running RunStream finishes against the Deps it started
// with, since factory(deps) is called once per request.
func (c *AgentController) UpdateDeps(deps Deps) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deps = deps
}

func (c *AgentController) currentDeps() Deps {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deps
}

// Deps returns the currently-active Deps, letting a caller (e.g. a
// config hot-reload callback) read the shared *tool.Manager and
// *observability.Provider back out so UpdateDeps can be called with
// them carried forward unchanged.
func (c *AgentController) Deps() Deps {
	return c.currentDeps()
}

func (c *AgentController) lookupMode(mode string) (StageFactory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.registry[mode]
	return f, ok
}

func (c *AgentController) getOrCreateSession(sessionID string, opts Options) *session.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sess, ok := c.sessions[sessionID]; ok {
		return sess
	}
	sess := session.New(context.Background(), session.Config{
		SessionID:     sessionID,
		WorkspaceRoot: opts.WorkspaceRoot,
		ContextBudget: opts.ContextBudget,
		Model:         c.deps.Model.Model,
	})
	c.sessions[sessionID] = sess
	return sess
}

// RunStream is the controller's top-level operation (§4.6 algorithm
// steps 1-5). ctx governs this one call's lifetime; the session's own
// cancellation (set by Cancel) is what LLM streams and tool calls
// actually observe, so ctx cancellation is mirrored onto the session
// rather than passed straight through.
func (c *AgentController) RunStream(ctx context.Context, inputMessages []string, sessionID string, opts Options) iter.Seq2[chunk.MessageChunk, error] {
	return func(yield func(chunk.MessageChunk, error) bool) {
		sess := c.getOrCreateSession(sessionID, opts)

		if !sess.TryLock() {
			errChunk := chunk.NewError(sessionID, uuid.NewString(), chunk.ErrSessionBusy, fmt.Sprintf("session %q is busy", sessionID), true)
			yield(*errChunk, nil)
			return
		}
		defer sess.Unlock()
		sess.Touch()

		watchDone := make(chan struct{})
		defer close(watchDone)
		go func() {
			select {
			case <-ctx.Done():
				sess.Cancel("request context cancelled")
			case <-sess.Context().Done():
			case <-watchDone:
			}
		}()

		for _, m := range inputMessages {
			sess.SeedUserMessage(m)
		}
		sess.AuditStatus().Set("more_suggest", opts.MoreSuggest)

		factory, ok := c.lookupMode(opts.Mode)
		if !ok {
			err := &ErrUnknownMode{Mode: opts.Mode}
			errChunk := chunk.NewError(sessionID, uuid.NewString(), chunk.ErrInvalidArgument, err.Error(), false)
			sess.Messages.Merge(errChunk)
			yield(*errChunk, nil)
			return
		}

		runner := factory(c.currentDeps())
		for ch, err := range runner(ctx, sess, opts) {
			if err != nil {
				if !yield(chunk.MessageChunk{}, err) {
					return
				}
				continue
			}
			if !yield(ch, nil) {
				return
			}
		}

		if err := sess.SaveTasksSnapshot(); err != nil {
			c.log.Warn("failed to persist task snapshot", "session_id", sessionID, "error", err)
		}
	}
}

// Session returns the live session context for sessionID, if the
// controller has created or seen one, for introspection (persistence
// snapshots, transport-layer status endpoints, tests).
func (c *AgentController) Session(sessionID string) (*session.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sess, ok := c.sessions[sessionID]
	return sess, ok
}

// Cancel sets session_id's cancellation flag (§4.6 "Cancellation").
func (c *AgentController) Cancel(sessionID, reason string) error {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return &ErrUnknownSession{SessionID: sessionID}
	}
	sess.Cancel(reason)
	return nil
}

// runStage drives one agent's RunStream to completion inside a span
// (§9 "conduit.agent.<name>"), forwarding every chunk to yield and
// accumulating its usage into total. It returns false the moment yield
// asks to stop, matching the consumer-break contract of every other
// iter.Seq2 in this engine. iteration is the deep-mode re-plan loop
// counter, 0 for every other mode's single-pass stages.
func runStage(obs *observability.Provider, sess *session.Context, a agent.Agent, iteration int, yield func(chunk.MessageChunk, error) bool, total *chunk.UsageStats) bool {
	spanCtx, span := obs.StartAgentSpan(sess.Context(), a.Name(), sess.ID(), iteration)

	var stageErr error
	before := total.InputTokens + total.OutputTokens
	ok := true
	for c, err := range a.RunStream(spanCtx, sess) {
		if err != nil {
			stageErr = err
			if !yield(chunk.MessageChunk{}, err) {
				ok = false
				break
			}
			continue
		}
		if c.Usage != nil {
			total.Add(*c.Usage)
		}
		if !yield(c, nil) {
			ok = false
			break
		}
	}

	after := total.InputTokens + total.OutputTokens
	observability.EndSpan(span, after-before, stageErr)
	return ok
}

// emitFinalAnswer yields the synthetic terminal chunk carrying the
// aggregate token usage across every stage of the run (§4.6 step 5).
func emitFinalAnswer(sess *session.Context, yield func(chunk.MessageChunk, error) bool, total chunk.UsageStats) {
	final := chunk.MessageChunk{
		MessageID: uuid.NewString(),
		Role:      chunk.RoleAssistant,
		Type:      chunk.TypeFinalAnswer,
		SessionID: sess.ID(),
		IsFinal:   true,
		Usage:     &total,
		Timestamp: time.Now(),
		Metadata:  map[string]any{"aggregate": true},
	}
	sess.Messages.Merge(&final)
	yield(final, nil)
}
