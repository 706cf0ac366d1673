package tool_test

import (
	"context"
	"errors"
	"iter"
	"path/filepath"
	"testing"
	"time"

	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/functiontool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStreamTool yields one Result per count, satisfying
// tool.Streaming in addition to tool.Callable so RunStream has a real
// streaming path to exercise (Call is never invoked by these tests).
type countingStreamTool struct{ count int }

func (c *countingStreamTool) Definition() tool.Definition {
	return tool.Definition{Name: "counter", Description: "counts", Parameters: map[string]any{"type": "object"}}
}
func (c *countingStreamTool) IsLongRunning() bool { return true }
func (c *countingStreamTool) Call(context.Context, map[string]any) (tool.Result, error) {
	return tool.Result{Content: "done"}, nil
}
func (c *countingStreamTool) CallStreaming(context.Context, map[string]any) iter.Seq2[tool.Result, error] {
	return func(yield func(tool.Result, error) bool) {
		for i := 1; i <= c.count; i++ {
			if !yield(tool.Result{Content: "tick"}, nil) {
				return
			}
		}
		yield(tool.Result{Content: "done"}, nil)
	}
}

type calcArgs struct {
	Op string  `json:"op" jsonschema:"required"`
	A  float64 `json:"a" jsonschema:"required"`
	B  float64 `json:"b" jsonschema:"required"`
}

func newCalcManager(t *testing.T) *tool.Manager {
	t.Helper()
	m := tool.NewManager(nil)
	calc, err := functiontool.New(functiontool.Config{Name: "calc", Description: "calculator"}, func(_ context.Context, args calcArgs) (map[string]any, error) {
		var result float64
		switch args.Op {
		case "*":
			result = args.A * args.B
		case "+":
			result = args.A + args.B
		case "err":
			return nil, errors.New("calc: forced failure")
		}
		return map[string]any{"result": result}, nil
	})
	require.NoError(t, err)
	m.RegisterTool(calc)
	return m
}

func TestRunAcceptsObjectArguments(t *testing.T) {
	m := newCalcManager(t)
	result, err := m.Run(context.Background(), "calc", map[string]any{"op": "*", "a": 6.0, "b": 7.0})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, 42.0, result.Metadata["result"])
}

func TestRunAcceptsJSONStringArguments(t *testing.T) {
	m := newCalcManager(t)
	result, err := m.Run(context.Background(), "calc", `{"op":"*","a":6,"b":7}`)
	require.NoError(t, err)
	assert.Equal(t, 42.0, result.Metadata["result"])
}

func TestRunRejectsMissingRequiredArgument(t *testing.T) {
	m := newCalcManager(t)
	_, err := m.Run(context.Background(), "calc", map[string]any{"op": "*", "a": 6.0})
	require.Error(t, err)
	var invalidArg *tool.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalidArg)
}

func TestRunUnknownToolReturnsNotFound(t *testing.T) {
	m := newCalcManager(t)
	_, err := m.Run(context.Background(), "nope", map[string]any{})
	var notFound *tool.ErrToolNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRunParallelPreservesOrder(t *testing.T) {
	m := newCalcManager(t)
	calls := []tool.Call{
		{Name: "calc", Arguments: map[string]any{"op": "+", "a": 1.0, "b": 1.0}},
		{Name: "calc", Arguments: map[string]any{"op": "*", "a": 2.0, "b": 2.0}},
	}
	results, errs := m.RunParallel(context.Background(), calls)
	require.Len(t, results, 2)
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 2.0, results[0].Metadata["result"])
	assert.Equal(t, 4.0, results[1].Metadata["result"])
}

type recordingObserver struct {
	name    string
	isError bool
	called  bool
}

func (r *recordingObserver) ObserveToolCall(_ context.Context, name string, _ time.Duration, isError bool) {
	r.called = true
	r.name = name
	r.isError = isError
}

func TestRunNotifiesObserverOnSuccess(t *testing.T) {
	m := newCalcManager(t)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	_, err := m.Run(context.Background(), "calc", map[string]any{"op": "*", "a": 3.0, "b": 3.0})
	require.NoError(t, err)
	require.True(t, obs.called)
	assert.Equal(t, "calc", obs.name)
	assert.False(t, obs.isError)
}

func TestRunNotifiesObserverOnError(t *testing.T) {
	m := newCalcManager(t)
	obs := &recordingObserver{}
	m.SetObserver(obs)

	result, err := m.Run(context.Background(), "calc", map[string]any{"op": "err", "a": 1.0, "b": 1.0})
	require.NoError(t, err)
	require.True(t, result.IsError)
	require.True(t, obs.called)
	assert.True(t, obs.isError)
}

type pathArgs struct {
	Path string `json:"path" jsonschema:"required,format=path"`
}

func newPathEchoManager(t *testing.T, workspaceRoot string) *tool.Manager {
	t.Helper()
	m := tool.NewManager(nil)
	m.SetWorkspaceRoot(workspaceRoot)
	echo, err := functiontool.New(functiontool.Config{Name: "echo_path", Description: "echoes its resolved path"}, func(_ context.Context, args pathArgs) (map[string]any, error) {
		return map[string]any{"resolved": args.Path}, nil
	})
	require.NoError(t, err)
	m.RegisterTool(echo)
	return m
}

func TestRunResolvesPathTaggedArguments(t *testing.T) {
	root := t.TempDir()
	m := newPathEchoManager(t, root)

	result, err := m.Run(context.Background(), "echo_path", map[string]any{"path": "sub/file.txt"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.txt"), result.Metadata["resolved"])
}

func TestRunRejectsPathEscapingWorkspaceRoot(t *testing.T) {
	root := t.TempDir()
	m := newPathEchoManager(t, root)

	_, err := m.Run(context.Background(), "echo_path", map[string]any{"path": "../../etc/passwd"})
	require.Error(t, err)
	var invalidArg *tool.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalidArg)
}

func TestRunRejectsPathArgumentWithoutConfiguredWorkspaceRoot(t *testing.T) {
	m := newPathEchoManager(t, "")

	_, err := m.Run(context.Background(), "echo_path", map[string]any{"path": "file.txt"})
	require.Error(t, err)
	var invalidArg *tool.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalidArg)
}

func TestIsStreamingReflectsRegisteredToolType(t *testing.T) {
	m := newCalcManager(t)
	m.RegisterTool(&countingStreamTool{count: 2})

	assert.False(t, m.IsStreaming("calc"))
	assert.True(t, m.IsStreaming("counter"))
	assert.False(t, m.IsStreaming("nope"))
}

func TestRunStreamYieldsIntermediateResultsThenFinal(t *testing.T) {
	m := tool.NewManager(nil)
	m.RegisterTool(&countingStreamTool{count: 2})

	var contents []string
	for r, err := range m.RunStream(context.Background(), "counter", map[string]any{}) {
		require.NoError(t, err)
		contents = append(contents, r.Content)
	}

	assert.Equal(t, []string{"tick", "tick", "done"}, contents)
}

func TestRunStreamFallsBackToCallForNonStreamingTool(t *testing.T) {
	m := newCalcManager(t)

	var results []tool.Result
	for r, err := range m.RunStream(context.Background(), "calc", map[string]any{"op": "+", "a": 1.0, "b": 2.0}) {
		require.NoError(t, err)
		results = append(results, r)
	}

	require.Len(t, results, 1)
	assert.Equal(t, 3.0, results[0].Metadata["result"])
}
