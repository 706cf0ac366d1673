// Package functiontool wraps a typed Go function as an in-process
// tool.Callable, deriving its parameter schema from struct tags via
// reflection. This is the "typed function registered at startup" source
// named in §4.2 point 1.
package functiontool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/arclane/conduit/pkg/tool"
)

// Config describes a function tool's metadata.
type Config struct {
	Name          string
	Description   string
	LongRunning   bool
}

// Func is the shape every wrapped function must have: typed arguments
// in, a result map or an error out.
type Func[Args any] func(ctx context.Context, args Args) (map[string]any, error)

type functionTool[Args any] struct {
	cfg    Config
	fn     Func[Args]
	schema map[string]any
}

// New wraps fn as a tool.Callable, deriving its JSON Schema from Args'
// struct tags.
func New[Args any](cfg Config, fn Func[Args]) (tool.Callable, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("functiontool: name is required")
	}
	schema, err := generateSchema[Args]()
	if err != nil {
		return nil, fmt.Errorf("functiontool: generate schema for %s: %w", cfg.Name, err)
	}
	return &functionTool[Args]{cfg: cfg, fn: fn, schema: schema}, nil
}

func (t *functionTool[Args]) Definition() tool.Definition {
	return tool.Definition{
		Name:        t.cfg.Name,
		Description: t.cfg.Description,
		Parameters:  t.schema,
		Source:      tool.SourceInProcess,
	}
}

func (t *functionTool[Args]) IsLongRunning() bool { return t.cfg.LongRunning }

func (t *functionTool[Args]) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	var typed Args
	if err := mapToStruct(args, &typed); err != nil {
		return tool.Result{}, fmt.Errorf("invalid arguments for %s: %w", t.cfg.Name, err)
	}
	out, err := t.fn(ctx, typed)
	if err != nil {
		return tool.Result{IsError: true, Content: err.Error()}, nil
	}
	content, err := json.Marshal(out)
	if err != nil {
		return tool.Result{}, fmt.Errorf("marshal result for %s: %w", t.cfg.Name, err)
	}
	return tool.Result{Content: string(content), Metadata: out}, nil
}
