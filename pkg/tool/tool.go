// Package tool defines the contract every callable tool satisfies,
// regardless of whether it runs in-process, as an MCP subprocess, or as
// a remote HTTP service (§4.2).
package tool

import (
	"context"
	"encoding/json"
	"iter"
)

// Source names where a tool was registered from.
type Source string

const (
	SourceInProcess Source = "in_process"
	SourceSubprocess Source = "subprocess"
	SourceRemote    Source = "remote"
)

// Definition is the introspectable metadata a caller (or an LLM) uses
// to decide whether and how to call a tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
	Source      Source         `json:"source"`
}

// Call is one invocation request: Arguments is already a decoded
// object by the time a Tool sees it (the manager normalizes a
// JSON-encoded string form before dispatch, per Design Note "Tool
// arguments").
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Result is what a tool invocation produces.
type Result struct {
	Content  string
	IsError  bool
	Metadata map[string]any
}

// Tool is the minimal contract: every tool can describe itself.
type Tool interface {
	Definition() Definition
	IsLongRunning() bool
}

// Callable is a tool invoked synchronously to completion.
type Callable interface {
	Tool
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// Streaming is a tool that can additionally yield intermediate results
// (run_tool_stream, §4.2).
type Streaming interface {
	Tool
	CallStreaming(ctx context.Context, args map[string]any) iter.Seq2[Result, error]
}

// Toolset is a lazily-resolved group of tools from one source (an MCP
// subprocess or remote endpoint), as opposed to one statically
// registered in-process tool.
type Toolset interface {
	Name() string
	Tools(ctx context.Context) ([]Callable, error)
}

// NormalizeArguments accepts either a decoded object or a JSON-encoded
// string for a tool's arguments and returns the decoded object,
// satisfying "the tool manager must accept both" (Design Note).
func NormalizeArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return map[string]any{}, nil
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var decoded map[string]any
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil, err
		}
		return decoded, nil
	}
}
