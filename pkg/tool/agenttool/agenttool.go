// Package agenttool exposes any agent as a tool.Callable, letting one
// agent delegate a sub-task to another by creating an isolated
// sub-session rather than sharing its own conversation state (§4.5
// "to_tool()", Design Note "Agent-as-tool recursion").
package agenttool

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/arclane/conduit/pkg/chunk"
	"github.com/arclane/conduit/pkg/session"
	"github.com/arclane/conduit/pkg/tool"
)

// Runnable is the minimal agent contract this package depends on,
// avoiding an import cycle with pkg/agent (which itself imports
// agenttool for ToTool()).
type Runnable interface {
	Name() string
	Description() string
	RunStream(ctx context.Context, sess *session.Context) iter.Seq2[chunk.MessageChunk, error]
}

// Config adjusts the generated tool's behavior.
type Config struct {
	SkipSummarization bool
}

type agentTool struct {
	agent  Runnable
	parent *session.Context
	cfg    Config
}

// New builds a tool.Callable that runs agent to completion in an
// isolated sub-session of parent on every call.
func New(agent Runnable, parent *session.Context, cfg Config) tool.Callable {
	return &agentTool{agent: agent, parent: parent, cfg: cfg}
}

func (t *agentTool) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.agent.Name(),
		Description: t.agent.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"request": map[string]any{
					"type":        "string",
					"description": fmt.Sprintf("the task or request for the %s agent", t.agent.Name()),
				},
			},
			"required": []string{"request"},
		},
		Source: tool.SourceInProcess,
	}
}

func (t *agentTool) IsLongRunning() bool { return true }

func (t *agentTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	request, err := requestArg(args, t.agent.Name())
	if err != nil {
		return tool.Result{}, err
	}

	child, err := t.newChildSession(request)
	if err != nil {
		return tool.Result{}, err
	}

	var output strings.Builder
	var eventCount int
	for c, err := range t.agent.RunStream(ctx, child) {
		if err != nil {
			return tool.Result{}, fmt.Errorf("agenttool: %s execution error: %w", t.agent.Name(), err)
		}
		if !c.IsChunk {
			eventCount++
		}
		if c.Type != chunk.TypeToolResult && c.Content != "" {
			output.WriteString(c.Content)
		}
	}

	return t.finalResult(output.String(), eventCount, child), nil
}

// CallStreaming runs the wrapped agent the same way Call does, but
// yields an intermediate Result per content fragment as it streams
// rather than blocking until the agent's whole turn completes (§4.2
// "run_tool_stream"), followed by one final Result carrying the full
// accumulated message, matching what Call returns for the same input.
func (t *agentTool) CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[tool.Result, error] {
	return func(yield func(tool.Result, error) bool) {
		request, err := requestArg(args, t.agent.Name())
		if err != nil {
			yield(tool.Result{}, err)
			return
		}

		child, err := t.newChildSession(request)
		if err != nil {
			yield(tool.Result{}, err)
			return
		}

		var output strings.Builder
		var eventCount int
		for c, err := range t.agent.RunStream(ctx, child) {
			if err != nil {
				yield(tool.Result{}, fmt.Errorf("agenttool: %s execution error: %w", t.agent.Name(), err))
				return
			}
			if !c.IsChunk {
				eventCount++
			}
			if c.Type == chunk.TypeToolResult || c.Content == "" {
				continue
			}
			output.WriteString(c.Content)
			if !yield(tool.Result{Content: c.Content}, nil) {
				return
			}
		}

		yield(t.finalResult(output.String(), eventCount, child), nil)
	}
}

func requestArg(args map[string]any, agentName string) (string, error) {
	request, _ := args["request"].(string)
	if request == "" {
		return "", fmt.Errorf("agenttool: %s requires a non-empty request", agentName)
	}
	return request, nil
}

func (t *agentTool) newChildSession(request string) (*session.Context, error) {
	child, err := t.parent.NewSubSession(t.agent.Name())
	if err != nil {
		return nil, fmt.Errorf("agenttool: create sub-session: %w", err)
	}
	if t.cfg.SkipSummarization {
		child.AuditStatus().Set("skip_summarization", true)
	}
	child.SeedUserMessage(request)
	return child, nil
}

func (t *agentTool) finalResult(content string, eventCount int, child *session.Context) tool.Result {
	return tool.Result{
		Content: content,
		Metadata: map[string]any{
			"agent_name":     t.agent.Name(),
			"event_count":    eventCount,
			"sub_session_id": child.ID(),
		},
	}
}
