package controller_test

import (
	"context"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/agent"
	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/controller"
	"github.com/arclane/conduit/pkg/llm"
	"github.com/arclane/conduit/pkg/task"
	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/functiontool"
)

// scriptedProvider returns one canned delta sequence per call, holding
// on the last script once exhausted so a runaway loop still produces
// deterministic output instead of panicking.
type scriptedProvider struct {
	scripts   []func() iter.Seq2[llm.ChatDelta, error]
	calls     int
	seenTools [][]llm.ToolDefinition
}

func (p *scriptedProvider) StreamChat(_ context.Context, _ []llm.Message, cfg llm.ModelConfig, _, _ string) iter.Seq2[llm.ChatDelta, error] {
	idx := p.calls
	if idx >= len(p.scripts) {
		idx = len(p.scripts) - 1
	}
	p.calls++
	p.seenTools = append(p.seenTools, cfg.Tools)
	return p.scripts[idx]()
}

func textSeq(text string, usage *chunk.UsageStats) func() iter.Seq2[llm.ChatDelta, error] {
	return func() iter.Seq2[llm.ChatDelta, error] {
		return func(yield func(llm.ChatDelta, error) bool) {
			if !yield(llm.ChatDelta{Type: llm.DeltaContent, Content: text}, nil) {
				return
			}
			yield(llm.ChatDelta{Type: llm.DeltaFinish, FinishedBy: "stop", Usage: usage}, nil)
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

func drain(t *testing.T, seq iter.Seq2[chunk.MessageChunk, error]) []chunk.MessageChunk {
	t.Helper()
	var out []chunk.MessageChunk
	for c, err := range seq {
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestRapidModeSimpleAgentEmitsFinalAnswerWithUsage(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		textSeq("hi there", &chunk.UsageStats{InputTokens: 10, OutputTokens: 4}),
	}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)

	chunks := drain(t, c.RunStream(context.Background(), []string{"hello"}, "sess-1", controller.Options{Mode: "rapid"}))

	require.NotEmpty(t, chunks)
	last := chunks[len(chunks)-1]
	assert.Equal(t, chunk.TypeFinalAnswer, last.Type)
	require.NotNil(t, last.Usage)
	assert.Equal(t, 10, last.Usage.InputTokens)
	assert.Equal(t, 4, last.Usage.OutputTokens)
}

func TestRapidModeChoosesCommonAgentWhenToolsRegistered(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		toolCallSeq("call_1", "echo", `{"text":"foo"}`),
		textSeq("the tool echoed foo", nil),
	}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}, Tools: newEchoManager(t)}, nil)

	chunks := drain(t, c.RunStream(context.Background(), []string{"please echo foo"}, "sess-2", controller.Options{Mode: "rapid"}))

	var sawToolResult bool
	for _, ch := range chunks {
		if ch.Role == chunk.RoleTool {
			sawToolResult = true
		}
	}
	assert.True(t, sawToolResult)
	assert.Equal(t, chunk.TypeFinalAnswer, chunks[len(chunks)-1].Type)
}

func TestStandardModeCreatesAndCompletesWholeRequestTask(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		textSeq("analysis", nil),
		textSeq("ok, I will handle it", nil),
		textSeq("done", nil),
		textSeq("summary", nil),
	}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)

	drain(t, c.RunStream(context.Background(), []string{"do the thing"}, "sess-3", controller.Options{Mode: "standard"}))

	sess, ok := c.Session("sess-3")
	require.True(t, ok)
	tasks := sess.Tasks.All()
	require.Len(t, tasks, 1)
	assert.Equal(t, task.StatusCompleted, tasks[0].Status)
	require.NotNil(t, tasks[0].StartTime)
	require.NotNil(t, tasks[0].EndTime)
	assert.False(t, tasks[0].EndTime.Before(*tasks[0].StartTime))
}

func TestUnknownModeYieldsInvalidArgumentError(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("unused", nil)}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)

	chunks := drain(t, c.RunStream(context.Background(), []string{"hi"}, "sess-4", controller.Options{Mode: "nonexistent"}))

	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Error)
	assert.Equal(t, chunk.ErrInvalidArgument, chunks[0].Error.Kind)
}

func TestConcurrentCallOnBusySessionReturnsSessionBusy(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("hi", nil)}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)

	// Pre-create the session and hold its lock, simulating a second
	// request arriving while the first is still in flight.
	_ = drain(t, c.RunStream(context.Background(), []string{"hi"}, "sess-5", controller.Options{Mode: "rapid"}))
	sess, ok := c.Session("sess-5")
	require.True(t, ok)
	require.True(t, sess.TryLock())
	defer sess.Unlock()

	chunks := drain(t, c.RunStream(context.Background(), []string{"hi again"}, "sess-5", controller.Options{Mode: "rapid"}))

	require.Len(t, chunks, 1)
	require.NotNil(t, chunks[0].Error)
	assert.Equal(t, chunk.ErrSessionBusy, chunks[0].Error.Kind)
}

func newBlockingManager(t *testing.T) *tool.Manager {
	t.Helper()
	m := tool.NewManager(nil)
	block, err := functiontool.New(functiontool.Config{Name: "echo", Description: "blocks until its context is cancelled"}, func(ctx context.Context, _ echoArgs) (map[string]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	m.RegisterTool(block)
	return m
}

func TestCancelStopsDeepModeBeforeSummary(t *testing.T) {
	// TaskAnalysis and TaskDecompose produce one subtask; Executor's
	// first tool call blocks on its context, giving a deterministic
	// point at which Cancel must unblock the run and produce a
	// terminal cancellation chunk rather than a summary.
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		textSeq("analysis", nil),
		textSeq(`[{"description":"do the one thing"}]`, nil),
		textSeq("planning the task", nil),
		toolCallSeq("call_1", "echo", `{"text":"x"}`),
	}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}, Tools: newBlockingManager(t)}, nil)

	done := make(chan []chunk.MessageChunk, 1)
	go func() {
		done <- drain(t, c.RunStream(context.Background(), []string{"do work"}, "sess-6", controller.Options{Mode: "deep", MaxLoopCount: 50}))
	}()

	// Give the run a moment to reach the Executor's blocked tool call,
	// then cancel; the tool call's context is derived from the
	// session's, so it unblocks immediately on Cancel regardless of
	// exactly how long this sleep turns out to be.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, c.Cancel("sess-6", "test cancel"))

	select {
	case chunks := <-done:
		require.NotEmpty(t, chunks)
		last := chunks[len(chunks)-1]
		require.NotNil(t, last.Error)
		assert.Equal(t, chunk.ErrCancelled, last.Error.Kind)
		assert.True(t, last.IsFinal)
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not produce a terminal chunk within 2s")
	}
}

func TestAutoModeRoutesToRapidAndRuns(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		textSeq("rapid", nil),
		textSeq("quick answer", nil),
	}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)

	chunks := drain(t, c.RunStream(context.Background(), []string{"what's 2+2?"}, "sess-9", controller.Options{Mode: "auto"}))

	sess, ok := c.Session("sess-9")
	require.True(t, ok)
	routed, ok := sess.AuditStatus().Get("routed_mode")
	require.True(t, ok)
	assert.Equal(t, "rapid", routed)
	assert.Equal(t, chunk.TypeFinalAnswer, chunks[len(chunks)-1].Type)
}

func TestCustomModeRequiresAgentFlow(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("unused", nil)}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)

	chunks := drain(t, c.RunStream(context.Background(), []string{"hi"}, "sess-7", controller.Options{Mode: "custom"}))

	require.Len(t, chunks, 1)
	assert.Equal(t, chunk.ErrInvalidArgument, chunks[0].Error.Kind)
}

func TestCustomModeRunsSuppliedFlowInOrder(t *testing.T) {
	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{
		textSeq("first", nil),
		textSeq("second", nil),
	}}
	first := agent.NewSimpleAgent(agent.Config{Name: "first", Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}})
	second := agent.NewSimpleAgent(agent.Config{Name: "second", Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}})
	flow := controller.NewAgentFlow(first, second)

	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}}, nil)
	chunks := drain(t, c.RunStream(context.Background(), []string{"hi"}, "sess-8", controller.Options{Mode: "custom", Flow: flow}))

	require.NotEmpty(t, chunks)
	assert.Equal(t, chunk.TypeFinalAnswer, chunks[len(chunks)-1].Type)
}

func TestAvailableToolsNarrowsAdvertisedToolSet(t *testing.T) {
	m := newEchoManager(t)
	other, err := functiontool.New(functiontool.Config{Name: "other", Description: "a second tool"}, func(_ context.Context, a echoArgs) (map[string]any, error) {
		return map[string]any{"echoed": a.Text}, nil
	})
	require.NoError(t, err)
	m.RegisterTool(other)

	provider := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("hi", nil)}}
	c := controller.NewController(controller.Deps{Provider: provider, Model: llm.ModelConfig{Model: "gpt-4o-mini"}, Tools: m}, nil)

	drain(t, c.RunStream(context.Background(), []string{"hi"}, "sess-11", controller.Options{Mode: "rapid", AvailableTools: []string{"echo"}}))

	require.NotEmpty(t, provider.seenTools)
	var names []string
	for _, td := range provider.seenTools[0] {
		names = append(names, td.Name)
	}
	assert.Equal(t, []string{"echo"}, names)
}

func TestUpdateDepsAppliesToSubsequentRunsOnly(t *testing.T) {
	providerA := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("from a", nil)}}
	providerB := &scriptedProvider{scripts: []func() iter.Seq2[llm.ChatDelta, error]{textSeq("from b", nil)}}

	c := controller.NewController(controller.Deps{Provider: providerA, Model: llm.ModelConfig{Model: "model-a"}}, nil)
	assert.Equal(t, "model-a", c.Deps().Model.Model)

	c.UpdateDeps(controller.Deps{Provider: providerB, Model: llm.ModelConfig{Model: "model-b"}})
	assert.Equal(t, "model-b", c.Deps().Model.Model)

	chunks := drain(t, c.RunStream(context.Background(), []string{"hi"}, "sess-10", controller.Options{Mode: "rapid"}))
	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, providerA.calls)
	assert.Equal(t, 1, providerB.calls)
}
