// Package mcp implements the subprocess and remote tool sources of
// §4.2: both speak the Model Context Protocol's initialize/tools-list/
// tools-call method set, one over stdio, the other over HTTP+SSE. Both
// share one lazily-connected Toolset so a hanging subprocess never
// blocks a remote source from registering its tools (§4.2 "Discovery
// policy").
package mcp

import (
	"context"
	"fmt"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/arclane/conduit/pkg/tool"
)

// Transport selects how a Toolset reaches its tool source.
type Transport string

const (
	TransportStdio           Transport = "stdio"
	TransportSSE             Transport = "sse"
	TransportStreamableHTTP  Transport = "streamable-http"
)

// DefaultSSEResponseTimeout is the value New fills into an unset
// Config.SSETimeout. Toolset does not apply SSETimeout to any call;
// calls are bounded only by the manager's per-tool timeout.
const DefaultSSEResponseTimeout = 5 * time.Minute

// Config describes one MCP tool source.
type Config struct {
	Name      string
	Transport Transport

	// stdio
	Command string
	Args    []string
	Env     []string

	// sse / streamable-http
	URL    string
	APIKey string

	Filter     []string // allow-list of tool names; empty means all
	MaxRetries int
	SSETimeout time.Duration
}

// Toolset lazily connects to one configured MCP source on first Tools()
// call and caches the resulting tool.Callable list.
type Toolset struct {
	cfg       Config
	filterSet map[string]bool

	mu        sync.Mutex
	client    *mcpclient.Client
	connected bool
	tools     []tool.Callable
}

// New validates cfg and returns an unconnected Toolset.
func New(cfg Config) (*Toolset, error) {
	if cfg.Transport == TransportStdio && cfg.Command == "" {
		return nil, fmt.Errorf("mcp: stdio transport requires Command")
	}
	if cfg.Transport != TransportStdio && cfg.URL == "" {
		return nil, fmt.Errorf("mcp: %s transport requires URL", cfg.Transport)
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.SSETimeout == 0 {
		cfg.SSETimeout = DefaultSSEResponseTimeout
	}

	var filterSet map[string]bool
	if len(cfg.Filter) > 0 {
		filterSet = make(map[string]bool, len(cfg.Filter))
		for _, name := range cfg.Filter {
			filterSet[name] = true
		}
	}

	return &Toolset{cfg: cfg, filterSet: filterSet}, nil
}

func (t *Toolset) Name() string { return t.cfg.Name }

// Tools connects (on first call only) and returns the discovered,
// filtered tool list.
func (t *Toolset) Tools(ctx context.Context) ([]tool.Callable, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.connected {
		return t.tools, nil
	}

	if err := t.connectLocked(ctx); err != nil {
		return nil, fmt.Errorf("mcp %s: connect: %w", t.cfg.Name, err)
	}

	listResult, err := t.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp %s: tools/list: %w", t.cfg.Name, err)
	}

	var tools []tool.Callable
	for _, td := range listResult.Tools {
		if t.filterSet != nil && !t.filterSet[td.Name] {
			continue
		}
		tools = append(tools, &mcpTool{
			toolset: t,
			name:    td.Name,
			desc:    td.Description,
			schema:  schemaToMap(td.InputSchema),
		})
	}

	t.tools = tools
	t.connected = true
	return tools, nil
}

func (t *Toolset) connectLocked(ctx context.Context) error {
	var c *mcpclient.Client
	var err error

	switch t.cfg.Transport {
	case TransportStdio:
		c, err = mcpclient.NewStdioMCPClient(t.cfg.Command, t.cfg.Env, t.cfg.Args...)
	case TransportSSE:
		c, err = mcpclient.NewSSEMCPClient(t.cfg.URL, sseHeaders(t.cfg.APIKey))
	case TransportStreamableHTTP:
		c, err = mcpclient.NewStreamableHttpClient(t.cfg.URL, streamableOpts(t.cfg.APIKey)...)
	default:
		return fmt.Errorf("unsupported transport %q", t.cfg.Transport)
	}
	if err != nil {
		return err
	}

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{}); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	t.client = c
	return nil
}

func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": schema.Properties,
		"required":   schema.Required,
	}
}

type mcpTool struct {
	toolset *Toolset
	name    string
	desc    string
	schema  map[string]any
}

func (t *mcpTool) Definition() tool.Definition {
	source := tool.SourceSubprocess
	if t.toolset.cfg.Transport != TransportStdio {
		source = tool.SourceRemote
	}
	return tool.Definition{Name: t.name, Description: t.desc, Parameters: t.schema, Source: source}
}

func (t *mcpTool) IsLongRunning() bool { return false }

func (t *mcpTool) Call(ctx context.Context, args map[string]any) (tool.Result, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = t.name
	req.Params.Arguments = args

	result, err := t.toolset.client.CallTool(ctx, req)
	if err != nil {
		return tool.Result{}, fmt.Errorf("tools/call %s: %w", t.name, err)
	}

	var content string
	for _, c := range result.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			content += tc.Text
		}
	}

	return tool.Result{Content: content, IsError: result.IsError}, nil
}
