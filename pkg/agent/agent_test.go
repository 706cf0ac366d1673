package agent_test

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/agent"
	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/llm"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/functiontool"
)

// ctxCanceledMidStreamSeq mimics a provider observing context
// cancellation partway through a token stream: it emits one content
// delta, then surfaces ctx.Err() as the delta error, the way
// pkg/llm/openai.go does when the request context is cancelled.
func ctxCanceledMidStreamSeq() func() iter.Seq2[llm.ChatDelta, error] {
	return func() iter.Seq2[llm.ChatDelta, error] {
		return func(yield func(llm.ChatDelta, error) bool) {
			if !yield(llm.ChatDelta{Type: llm.DeltaContent, Content: "partial"}, nil) {
				return
			}
			yield(llm.ChatDelta{}, context.Canceled)
		}
	}
}

// scriptedProvider returns one canned delta sequence per call, holding
// on the last script once exhausted so a runaway loop still gets
// deterministic output instead of a nil-pointer panic.
type scriptedProvider struct {
	scripts []func() iter.Seq2[llm.ChatDelta, error]
	calls   int
}

func (p *scriptedProvider) StreamChat(_ context.Context, _ []llm.Message, _ llm.ModelConfig, _, _ string) iter.Seq2[llm.ChatDelta, error] {
	idx := p.calls
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	p.calls++
	return p.scripts[idx]()
}

func textSeq(text string) func() iter.Seq2[llm.ChatDelta, error] {
	return func() iter.Seq2[llm.ChatDelta, error] {
		return func(yield func(llm.ChatDelta, error) bool) {
			if !yield(llm.ChatDelta{Type: llm.DeltaContent, Content: text}, nil) {
				return
			}
			yield(llm.ChatDelta{Type: llm.DeltaFinish, FinishedBy: "stop"}, nil)
		}
	}
}

func toolCallSeq(id, name, argsJSON string) func() iter.Seq2[llm.ChatDelta, error] {
	return func() iter.Seq2[llm.ChatDelta, error] {
		return func(yield func(llm.ChatDelta, error) bool) {
			d := llm.ChatDelta{Type: llm.DeltaToolCall, ToolCall: &llm.ToolCallDelta{Index: 0, ID: id, Name: name, ArgumentsFragment: argsJSON}}
			if !yield(d, nil) {
				return
			}
			yield(llm.ChatDelta{Type: llm.DeltaFinish, FinishedBy: "tool_calls"}, nil)
		}
	}
}

func newTestSession(t *testing.T) *session.Context {
	t.Helper()
	return session.New(context.Background(), session.Config{SessionID: "sess-1", UserID: "u1"})
}

type echoArgs struct {
	Text string `json:"text" jsonschema:"required"`
}

func newEchoManager(t *testing.T) *tool.Manager {
	t.Helper()
	m := tool.NewManager(nil)
	echo, err := functiontool.New(functiontool.Config{Name: "echo", Description: "echoes input"}, func(_ context.Context, a echoArgs) (map[string]any, error) {
		return map[string]any{"echoed": a.Text}, nil
	})
	require.NoError(t, err)
	m.RegisterTool(echo)
	return m
}

func TestSimpleAgentEchoesFinalAnswer(t *testing.T) {
	sess := newTestSession(t)
	sess.SeedUserMessage("hello there")

	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("hi!")}}
	a := agent.NewSimpleAgent(agent.Config{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}})

	var final chunk.MessageChunk
	for c, err := range a.RunStream(context.Background(), sess) {
		require.NoError(t, err)
		if c.IsFinal {
			final = c
		}
	}

	assert.Equal(t, chunk.TypeNormal, final.Type)
	msg, ok := sess.Messages.Get(final.MessageID)
	require.True(t, ok)
	assert.Equal(t, "hi!", msg.Content)
}

func TestCommonAgentRunsSingleToolThenAnswers(t *testing.T) {
	sess := newTestSession(t)
	sess.SeedUserMessage("please echo foo")

	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		toolCallSeq("call_1", "echo", `{"text":"foo"}`),
		textSeq("the tool echoed foo"),
	}}
	a := agent.NewCommonAgent(agent.Config{
		Provider: provider,
		Model:    llm.ModelConfig{Model: "gpt-4o-mini"},
		Tools:    newEchoManager(t),
	})

	var sawToolResult bool
	var lastAssistantFinal chunk.MessageChunk
	for c, err := range a.RunStream(context.Background(), sess) {
		require.NoError(t, err)
		if c.Role == chunk.RoleTool {
			sawToolResult = true
			assert.Equal(t, "call_1", c.ToolCallID)
		}
		if c.IsFinal && c.Role == chunk.RoleAssistant {
			lastAssistantFinal = c
		}
	}

	assert.True(t, sawToolResult)
	msg, ok := sess.Messages.Get(lastAssistantFinal.MessageID)
	require.True(t, ok)
	assert.Equal(t, "the tool echoed foo", msg.Content)
}

func TestExecutorExhaustsLoopOnNonConvergence(t *testing.T) {
	sess := newTestSession(t)
	sess.SeedUserMessage("loop forever")

	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		toolCallSeq("call_1", "echo", `{"text":"x"}`),
	}}
	a := agent.NewExecutor(agent.Config{
		Provider:     provider,
		Model:        llm.ModelConfig{Model: "gpt-4o-mini"},
		Tools:        newEchoManager(t),
		MaxLoopCount: 2,
	})

	var lastErrChunk chunk.MessageChunk
	for c, err := range a.RunStream(context.Background(), sess) {
		require.NoError(t, err)
		if c.Error != nil {
			lastErrChunk = c
		}
	}

	require.NotNil(t, lastErrChunk.Error)
	assert.Equal(t, chunk.ErrLoopExhausted, lastErrChunk.Error.Kind)
}

func TestCancelledSessionYieldsSingleTerminalChunk(t *testing.T) {
	sess := newTestSession(t)
	sess.SeedUserMessage("hello")
	sess.Cancel("test")

	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("unreachable")}}
	a := agent.NewSimpleAgent(agent.Config{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}})

	var count int
	var last chunk.MessageChunk
	for c, err := range a.RunStream(context.Background(), sess) {
		require.NoError(t, err)
		count++
		last = c
	}

	assert.Equal(t, 1, count)
	assert.Equal(t, chunk.ErrCancelled, last.Error.Kind)
	assert.True(t, last.IsFinal)
}

func TestStreamErrorDuringTokenStreamClassifiedAsCancelled(t *testing.T) {
	sess := newTestSession(t)
	sess.SeedUserMessage("hello")

	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{ctxCanceledMidStreamSeq()}}
	a := agent.NewSimpleAgent(agent.Config{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}})

	var last chunk.MessageChunk
	for c, err := range a.RunStream(context.Background(), sess) {
		require.NoError(t, err)
		last = c
	}

	require.NotNil(t, last.Error)
	assert.Equal(t, chunk.ErrCancelled, last.Error.Kind)
	assert.True(t, last.IsFinal)
}
