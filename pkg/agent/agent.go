// Package agent implements the specialized production steps of the
// engine (task analysis, decomposition, planning, execution,
// observation, summary, routing, and the single-agent modes) on top of
// one shared streaming-LLM-and-tool-loop core, mirroring the way the
// reasoning package separates the function-calling protocol (handled
// once, centrally) from per-strategy additional processing (§4.5).
package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/llm"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/agenttool"
)

// Agent is the contract every specialized agent and single-agent mode
// satisfies (§4.5).
type Agent interface {
	Name() string
	Description() string
	RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error]
	// ToTool exposes this agent as a callable tool whose invocations
	// spawn a transient sub-session of parent (§4.5 "to_tool()").
	ToTool(parent *session.Context) tool.Callable
}

// Hooks is implemented by each specialized agent to supply the
// processing a generic streaming-LLM-and-tool-loop core cannot know on
// its own: what chunk type to stamp, whether to advertise/execute
// tools, extra prompt context, and what to do with the finished turn.
// This is the same split as the teacher's ReasoningStrategy: the core
// protocol lives once in BaseAgent, strategy-specific behavior is a
// small interface implemented per agent.
type Hooks interface {
	ChunkType() chunk.Type
	AdvertiseTools() bool
	ExecuteTools() bool
	ContextInjection(sess *session.Context) string
	OnFinal(ctx context.Context, sess *session.Context, text string, toolCalls []chunk.ToolCallIntent) error
}

// NoOpHooks provides empty implementations of the optional parts of
// Hooks; specialized agents embed it and override only what they need.
type NoOpHooks struct{}

func (NoOpHooks) ContextInjection(*session.Context) string { return "" }
func (NoOpHooks) OnFinal(context.Context, *session.Context, string, []chunk.ToolCallIntent) error {
	return nil
}

// Config configures a BaseAgent.
type Config struct {
	Name         string
	Description  string
	SystemPrefix string
	Filter       string // message.Manager filter-strategy name (§4.3)
	Provider     llm.Provider
	Model        llm.ModelConfig
	Tools        *tool.Manager
	ToolFilter   tool.Filter   // which registered tools this agent may call/advertise
	MaxLoopCount int           // 0 uses DefaultMaxLoopCount
}

// DefaultMaxLoopCount is used when Config.MaxLoopCount is unset (§4.6
// "max_loop_count (default 10, configurable 1-50)").
const DefaultMaxLoopCount = 10

// BaseAgent implements the streaming LLM helper and tool-execution loop
// common to every specialized agent (§4.5).
type BaseAgent struct {
	name         string
	description  string
	systemPrefix string
	filter       string
	provider     llm.Provider
	model        llm.ModelConfig
	tools        *tool.Manager
	toolFilter   tool.Filter
	maxLoopCount int
}

// NewBase constructs the shared core; specialized agents embed the
// result and add their own Hooks implementation.
func NewBase(cfg Config) BaseAgent {
	maxLoop := cfg.MaxLoopCount
	if maxLoop <= 0 {
		maxLoop = DefaultMaxLoopCount
	}
	filter := cfg.Filter
	if filter == "" {
		filter = "default"
	}
	return BaseAgent{
		name:         cfg.Name,
		description:  cfg.Description,
		systemPrefix: cfg.SystemPrefix,
		filter:       filter,
		provider:     cfg.Provider,
		model:        cfg.Model,
		tools:        cfg.Tools,
		toolFilter:   cfg.ToolFilter,
		maxLoopCount: maxLoop,
	}
}

func (b *BaseAgent) Name() string        { return b.name }
func (b *BaseAgent) Description() string { return b.description }

// toolDefs resolves the agent's visible tools into the LLM wire shape.
func (b *BaseAgent) toolDefs() []llm.ToolDefinition {
	if b.tools == nil {
		return nil
	}
	defs := b.tools.ListTools(b.toolFilter)
	out := make([]llm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

func (b *BaseAgent) buildPrompt(sess *session.Context, hooks Hooks) []llm.Message {
	history := sess.Messages.ForLLM(b.filter, sess.ContextBudget())

	system := b.systemPrefix
	if extra := hooks.ContextInjection(sess); extra != "" {
		system = strings.TrimSpace(system + "\n\n" + extra)
	}

	out := make([]llm.Message, 0, len(history)+1)
	if system != "" {
		out = append(out, llm.Message{Role: chunk.RoleSystem, Content: system})
	}
	for _, m := range history {
		out = append(out, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

// toolCallAccumulator assembles streamed argument fragments for one
// tool-call index into a whole call (§4.1: "the caller is responsible
// for assembling tool-call deltas into whole calls by Index").
type toolCallAccumulator struct {
	id   string
	name string
	args strings.Builder
}

// stream runs one agent turn (possibly several LLM calls if the tool
// loop iterates), yielding MessageChunks and merging each into the
// session's message manager as it is produced.
func (b *BaseAgent) stream(ctx context.Context, sess *session.Context, hooks Hooks) iter.Seq2[chunk.MessageChunk, error] {
	return func(yield func(chunk.MessageChunk, error) bool) {
		cfg := b.model
		if hooks.AdvertiseTools() {
			cfg.Tools = b.toolDefs()
		}

		for iteration := 0; ; iteration++ {
			if sess.Cancelled() {
				c := chunk.Cancelled(sess.ID(), uuid.NewString())
				sess.Messages.Merge(c)
				yield(*c, nil)
				return
			}

			messages := b.buildPrompt(sess, hooks)
			messageID := uuid.NewString()

			var content strings.Builder
			accumulators := make(map[int]*toolCallAccumulator)
			var order []int
			var usage *chunk.UsageStats
			var streamErr error

			for delta, err := range b.provider.StreamChat(ctx, messages, cfg, b.name, sess.ID()) {
				if err != nil {
					streamErr = err
					break
				}
				switch delta.Type {
				case llm.DeltaContent:
					if delta.Content == "" {
						continue
					}
					content.WriteString(delta.Content)
					c := chunk.MessageChunk{
						MessageID: messageID,
						Role:      chunk.RoleAssistant,
						Type:      hooks.ChunkType(),
						Content:   delta.Content,
						SessionID: sess.ID(),
						IsChunk:   true,
						Timestamp: time.Now(),
					}
					sess.Messages.Merge(&c)
					if !yield(c, nil) {
						return
					}
				case llm.DeltaToolCall:
					if delta.ToolCall == nil {
						continue
					}
					acc, ok := accumulators[delta.ToolCall.Index]
					if !ok {
						acc = &toolCallAccumulator{}
						accumulators[delta.ToolCall.Index] = acc
						order = append(order, delta.ToolCall.Index)
					}
					if delta.ToolCall.ID != "" {
						acc.id = delta.ToolCall.ID
					}
					if delta.ToolCall.Name != "" {
						acc.name = delta.ToolCall.Name
					}
					acc.args.WriteString(delta.ToolCall.ArgumentsFragment)
				case llm.DeltaFinish:
					usage = delta.Usage
				case llm.DeltaError:
					streamErr = delta.Err
				}
			}

			if streamErr != nil {
				if sess.Cancelled() || errors.Is(streamErr, context.Canceled) {
					c := chunk.Cancelled(sess.ID(), messageID)
					sess.Messages.Merge(c)
					yield(*c, nil)
					return
				}
				errChunk := chunk.NewError(sess.ID(), messageID, chunk.ErrLLMTransport, streamErr.Error(), true)
				sess.Messages.Merge(errChunk)
				yield(*errChunk, nil)
				return
			}

			toolCalls := assembleToolCalls(order, accumulators)

			final := chunk.MessageChunk{
				MessageID: messageID,
				Role:      chunk.RoleAssistant,
				Type:      hooks.ChunkType(),
				ToolCalls: toolCalls,
				SessionID: sess.ID(),
				IsFinal:   true,
				Usage:     usage,
				Timestamp: time.Now(),
			}
			sess.Messages.Merge(&final)
			if !yield(final, nil) {
				return
			}

			if !hooks.ExecuteTools() || len(toolCalls) == 0 {
				if err := hooks.OnFinal(ctx, sess, content.String(), toolCalls); err != nil {
					errChunk := chunk.NewError(sess.ID(), uuid.NewString(), chunk.ErrToolFailed, err.Error(), false)
					sess.Messages.Merge(errChunk)
					yield(*errChunk, nil)
				}
				return
			}

			if iteration >= b.maxLoopCount {
				errChunk := chunk.NewError(sess.ID(), uuid.NewString(), chunk.ErrLoopExhausted, "max loop count reached without convergence", false)
				sess.Messages.Merge(errChunk)
				yield(*errChunk, nil)
				return
			}

			if !b.runToolCalls(ctx, sess, toolCalls, yield) {
				return
			}
		}
	}
}

func assembleToolCalls(order []int, accumulators map[int]*toolCallAccumulator) []chunk.ToolCallIntent {
	out := make([]chunk.ToolCallIntent, 0, len(order))
	for _, idx := range order {
		acc := accumulators[idx]
		args, err := tool.NormalizeArguments(acc.args.String())
		if err != nil {
			args = map[string]any{}
		}
		out = append(out, chunk.ToolCallIntent{ID: acc.id, Index: idx, Name: acc.name, Arguments: args})
	}
	return out
}

// runToolCalls executes toolCalls and merges/yields one final tool-result
// chunk per call, in original call order regardless of completion order
// (§5). Calls whose tool implements Streaming run through the manager's
// run_tool_stream path instead of RunParallel, since intermediate
// results need to reach the caller as they arrive rather than in a
// single post-completion batch (§4.2); everything else still runs
// concurrently via RunParallel.
func (b *BaseAgent) runToolCalls(ctx context.Context, sess *session.Context, toolCalls []chunk.ToolCallIntent, yield func(chunk.MessageChunk, error) bool) bool {
	var parallelCalls []tool.Call
	parallelOrigIndex := make([]int, 0, len(toolCalls))
	for i, tc := range toolCalls {
		if b.tools.IsStreaming(tc.Name) {
			continue
		}
		parallelCalls = append(parallelCalls, tool.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
		parallelOrigIndex = append(parallelOrigIndex, i)
	}

	results, errs := b.tools.RunParallel(ctx, parallelCalls)
	resultByIndex := make(map[int]tool.Result, len(results))
	errByIndex := make(map[int]error, len(errs))
	for pos, origIndex := range parallelOrigIndex {
		resultByIndex[origIndex] = results[pos]
		errByIndex[origIndex] = errs[pos]
	}

	for i, tc := range toolCalls {
		if b.tools.IsStreaming(tc.Name) {
			if !b.runStreamingToolCall(ctx, sess, tc, yield) {
				return false
			}
			continue
		}

		content := resultByIndex[i].Content
		isError := resultByIndex[i].IsError
		err := errByIndex[i]
		if err != nil {
			isError = true
			content = classifyToolError(err, tc.Name)
		}

		trChunk := chunk.MessageChunk{
			MessageID:  uuid.NewString(),
			Role:       chunk.RoleTool,
			Type:       chunk.TypeToolResult,
			Content:    content,
			ToolCallID: tc.ID,
			SessionID:  sess.ID(),
			IsFinal:    true,
			Timestamp:  time.Now(),
		}
		if isError {
			trChunk.Error = &chunk.ChunkError{Kind: toolErrorKind(err), Message: content, Retryable: false}
		}
		sess.Messages.Merge(&trChunk)
		if !yield(trChunk, nil) {
			return false
		}
	}
	return true
}

// runStreamingToolCall drives one call through run_tool_stream, merging
// and yielding each intermediate Result as an IsChunk=true tool-result
// chunk before the final, IsFinal=true one carrying the accumulated
// content. Every chunk for this call shares one MessageID, since
// Message.Merge replaces (rather than appends) a tool-result's content
// on every merge, so the session always holds the latest fragment.
func (b *BaseAgent) runStreamingToolCall(ctx context.Context, sess *session.Context, tc chunk.ToolCallIntent, yield func(chunk.MessageChunk, error) bool) bool {
	messageID := uuid.NewString()

	var last tool.Result
	var callErr error
	for result, err := range b.tools.RunStream(ctx, tc.Name, tc.Arguments) {
		if err != nil {
			callErr = err
			break
		}
		last = result

		c := chunk.MessageChunk{
			MessageID:  messageID,
			Role:       chunk.RoleTool,
			Type:       chunk.TypeToolResult,
			Content:    result.Content,
			ToolCallID: tc.ID,
			SessionID:  sess.ID(),
			IsChunk:    true,
			Timestamp:  time.Now(),
		}
		sess.Messages.Merge(&c)
		if !yield(c, nil) {
			return false
		}
	}

	content := last.Content
	isError := last.IsError
	if callErr != nil {
		isError = true
		content = classifyToolError(callErr, tc.Name)
	}

	trChunk := chunk.MessageChunk{
		MessageID:  messageID,
		Role:       chunk.RoleTool,
		Type:       chunk.TypeToolResult,
		Content:    content,
		ToolCallID: tc.ID,
		SessionID:  sess.ID(),
		IsFinal:    true,
		Timestamp:  time.Now(),
	}
	if isError {
		trChunk.Error = &chunk.ChunkError{Kind: toolErrorKind(callErr), Message: content, Retryable: false}
	}
	sess.Messages.Merge(&trChunk)
	return yield(trChunk, nil)
}

func classifyToolError(err error, name string) string {
	var notFound *tool.ErrToolNotFound
	if errors.As(err, &notFound) {
		return fmt.Sprintf("tool %q is not registered", name)
	}
	return err.Error()
}

// toolErrorKind classifies a tool-call failure. err is nil when the
// failure was reported via Result.IsError rather than a Go error (a
// tool's own Call can fail that way without the manager ever seeing an
// error) — that case is always ErrToolFailed since there's nothing
// further to classify.
func toolErrorKind(err error) chunk.ErrorKind {
	if err == nil {
		return chunk.ErrToolFailed
	}
	var notFound *tool.ErrToolNotFound
	if errors.As(err, &notFound) {
		return chunk.ErrToolNotFound
	}
	var invalidArg *tool.ErrInvalidArgument
	if errors.As(err, &invalidArg) {
		return chunk.ErrInvalidArgument
	}
	if strings.Contains(err.Error(), "tool_timeout") {
		return chunk.ErrToolTimeout
	}
	return chunk.ErrToolFailed
}

// wrapAsTool exposes a as a callable tool via the agenttool adapter
// (§4.5 "to_tool()"); every specialized agent's ToTool method is a
// one-line call to this.
func wrapAsTool(a Agent, parent *session.Context) tool.Callable {
	return agenttool.New(agentRunnable{a}, parent, agenttool.Config{})
}

type agentRunnable struct{ Agent }

func (r agentRunnable) RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error] {
	return r.Agent.RunStream(ctx, sess)
}
