package tool

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout is the per-tool call timeout used when a registration
// does not override it (§4.2 "run_tool... enforces a per-tool timeout
// (default 120 s)").
const DefaultTimeout = 120 * time.Second

type registration struct {
	tool      Callable
	source    Source
	timeout   time.Duration
	mu        sync.Mutex
	lastOK    bool
	lastError error
}

// Observer receives the outcome of every dispatched tool call, letting
// a caller record tracing spans and metrics without this package
// depending on any particular observability backend (§9 "Observability
// hooks").
type Observer interface {
	ObserveToolCall(ctx context.Context, name string, duration time.Duration, isError bool)
}

// Manager registers tools from all three sources and is the sole
// dispatch point for run_tool / run_tool_stream (§4.2). It is shared,
// immutable-after-discovery state across sessions (§5 "Shared state").
type Manager struct {
	mu            sync.RWMutex
	tools         map[string]*registration
	log           *slog.Logger
	obs           Observer
	workspaceRoot string
}

// SetWorkspaceRoot installs the root every format:"path" argument is
// sandboxed against (§4.2 "Security"). Left empty, any tool whose
// schema carries a path-tagged argument fails with ErrInvalidArgument
// rather than silently running unsandboxed.
func (m *Manager) SetWorkspaceRoot(root string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaceRoot = root
}

// NewManager returns an empty Manager.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{tools: make(map[string]*registration), log: log}
}

// SetObserver installs o as the receiver of every subsequent Run's
// outcome. Passing nil (the default) disables observation entirely.
func (m *Manager) SetObserver(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.obs = o
}

// RegisterTool adds t under its own name; last registration wins but a
// warning is logged on conflict (§4.2 "register_tool").
func (m *Manager) RegisterTool(t Callable) {
	def := t.Definition()
	timeout := DefaultTimeout

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tools[def.Name]; exists {
		m.log.Warn("tool name conflict, last registration wins", "name", def.Name)
	}
	m.tools[def.Name] = &registration{tool: t, source: def.Source, timeout: timeout}
}

// SetTimeout overrides a registered tool's per-call timeout; a no-op
// if name is not registered. Lets a config entry's Timeout field
// override DefaultTimeout for one tool without touching the others.
func (m *Manager) SetTimeout(name string, timeout time.Duration) {
	m.mu.RLock()
	reg, ok := m.tools[name]
	m.mu.RUnlock()
	if !ok || timeout <= 0 {
		return
	}
	reg.mu.Lock()
	reg.timeout = timeout
	reg.mu.Unlock()
}

// DiscoverToolsets runs Tools(ctx) concurrently across every toolset,
// registering whatever each returns; a failing toolset is logged and
// skipped rather than aborting discovery for the rest (§4.2 "Discovery
// policy": "a failing source must not block others").
func (m *Manager) DiscoverToolsets(ctx context.Context, toolsets []Toolset) {
	var wg sync.WaitGroup
	for _, ts := range toolsets {
		wg.Add(1)
		go func(ts Toolset) {
			defer wg.Done()
			tools, err := ts.Tools(ctx)
			if err != nil {
				m.log.Warn("toolset discovery failed", "toolset", ts.Name(), "error", err)
				return
			}
			for _, t := range tools {
				m.RegisterTool(t)
			}
		}(ts)
	}
	wg.Wait()
}

// Filter is an allow-list on tool names, carried on a session to scope
// which tools an agent may see (§4.2 "list_tools(filter?)").
type Filter func(name string) bool

// AllowAll permits every registered tool.
func AllowAll(string) bool { return true }

// AllowList permits only the named tools.
func AllowList(names ...string) Filter {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(name string) bool { return set[name] }
}

// ListTools returns every registered tool's Definition that passes
// filter.
func (m *Manager) ListTools(filter Filter) []Definition {
	if filter == nil {
		filter = AllowAll
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]Definition, 0, len(m.tools))
	for name, reg := range m.tools {
		if filter(name) {
			defs = append(defs, reg.tool.Definition())
		}
	}
	return defs
}

// ErrToolNotFound is returned by Run when name is not registered.
type ErrToolNotFound struct{ Name string }

func (e *ErrToolNotFound) Error() string { return fmt.Sprintf("tool not found: %s", e.Name) }

// ErrInvalidArgument is returned by Run on schema or decode failure.
type ErrInvalidArgument struct {
	Name   string
	Reason string
}

func (e *ErrInvalidArgument) Error() string {
	return fmt.Sprintf("invalid argument for %s: %s", e.Name, e.Reason)
}

// prepareCall resolves, normalizes, and sandboxes one call, shared by
// Run and RunStream so both dispatch paths validate identically.
func (m *Manager) prepareCall(name string, rawArgs any) (*registration, map[string]any, error) {
	m.mu.RLock()
	reg, ok := m.tools[name]
	workspaceRoot := m.workspaceRoot
	m.mu.RUnlock()
	if !ok {
		return nil, nil, &ErrToolNotFound{Name: name}
	}

	args, err := NormalizeArguments(rawArgs)
	if err != nil {
		return nil, nil, &ErrInvalidArgument{Name: name, Reason: err.Error()}
	}
	if err := validateAgainstSchema(reg.tool.Definition().Parameters, args); err != nil {
		return nil, nil, &ErrInvalidArgument{Name: name, Reason: err.Error()}
	}
	if err := sandboxPathArgs(reg.tool.Definition().Parameters, args, workspaceRoot); err != nil {
		return nil, nil, &ErrInvalidArgument{Name: name, Reason: err.Error()}
	}
	return reg, args, nil
}

// Run validates, normalizes, and invokes one tool call, enforcing its
// timeout and a single transparent retry on a transient failure (§4.2
// "run_tool").
func (m *Manager) Run(ctx context.Context, name string, rawArgs any) (Result, error) {
	reg, args, err := m.prepareCall(name, rawArgs)
	if err != nil {
		return Result{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, reg.timeout)
	defer cancel()

	start := time.Now()
	result, err := reg.tool.Call(callCtx, args)
	if err != nil && isTemporary(err) {
		result, err = reg.tool.Call(callCtx, args) // single transparent retry
	}
	duration := time.Since(start)

	reg.mu.Lock()
	reg.lastError = err
	reg.lastOK = err == nil
	reg.mu.Unlock()

	m.mu.RLock()
	obs := m.obs
	m.mu.RUnlock()
	if obs != nil {
		obs.ObserveToolCall(ctx, name, duration, err != nil || result.IsError)
	}

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return Result{}, fmt.Errorf("tool_timeout: %s: %w", name, err)
		}
		return Result{}, fmt.Errorf("tool_failed: %s: %w", name, err)
	}
	return result, nil
}

// IsStreaming reports whether name is registered and implements
// Streaming, letting a caller decide whether to dispatch through Run or
// RunStream without a failed type assertion of its own.
func (m *Manager) IsStreaming(name string) bool {
	m.mu.RLock()
	reg, ok := m.tools[name]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	_, ok = reg.tool.(Streaming)
	return ok
}

// RunStream dispatches one call through its tool's CallStreaming method
// when it implements Streaming (§4.2 "run_tool_stream... additionally
// streams intermediate MessageChunks" — intermediate Results here, which
// the agent layer turns into chunks), falling back to a single Run-style
// invocation yielding its one Result otherwise. Validation, sandboxing,
// the per-tool timeout, and observer notification all match Run; the
// transparent single-retry-on-temporary-failure does not apply here,
// since a partially-streamed call cannot be safely replayed from the
// start.
func (m *Manager) RunStream(ctx context.Context, name string, rawArgs any) iter.Seq2[Result, error] {
	return func(yield func(Result, error) bool) {
		reg, args, err := m.prepareCall(name, rawArgs)
		if err != nil {
			yield(Result{}, err)
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, reg.timeout)
		defer cancel()

		start := time.Now()
		streaming, ok := reg.tool.(Streaming)
		if !ok {
			result, callErr := reg.tool.Call(callCtx, args)
			m.finishCall(ctx, name, reg, start, callErr, result.IsError)
			if callErr != nil {
				yield(Result{}, m.classifyCallErr(name, callCtx, callErr))
				return
			}
			yield(result, nil)
			return
		}

		var lastErr error
		var lastIsError bool
		for result, callErr := range streaming.CallStreaming(callCtx, args) {
			lastErr = callErr
			lastIsError = result.IsError
			if callErr != nil {
				if !yield(Result{}, m.classifyCallErr(name, callCtx, callErr)) {
					break
				}
				continue
			}
			if !yield(result, nil) {
				break
			}
		}
		m.finishCall(ctx, name, reg, start, lastErr, lastIsError)
	}
}

func (m *Manager) classifyCallErr(name string, callCtx context.Context, err error) error {
	if callCtx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("tool_timeout: %s: %w", name, err)
	}
	return fmt.Errorf("tool_failed: %s: %w", name, err)
}

// finishCall records a dispatched call's outcome the same way Run does,
// shared by RunStream's two branches.
func (m *Manager) finishCall(ctx context.Context, name string, reg *registration, start time.Time, err error, isError bool) {
	duration := time.Since(start)

	reg.mu.Lock()
	reg.lastError = err
	reg.lastOK = err == nil
	reg.mu.Unlock()

	m.mu.RLock()
	obs := m.obs
	m.mu.RUnlock()
	if obs != nil {
		obs.ObserveToolCall(ctx, name, duration, err != nil || isError)
	}
}

// RunParallel runs many calls concurrently via errgroup, preserving
// input order in the returned slice regardless of completion order
// (§5 "the agent must attach each result to its tool_call_id before the
// next LLM turn").
func (m *Manager) RunParallel(ctx context.Context, calls []Call) ([]Result, []error) {
	results := make([]Result, len(calls))
	errs := make([]error, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		i, call := i, call
		g.Go(func() error {
			r, err := m.Run(gctx, call.Name, call.Arguments)
			results[i] = r
			errs[i] = err
			return nil // per-call errors are surfaced via errs, not the group
		})
	}
	_ = g.Wait()

	return results, errs
}

// temporary is the marker interface a tool's returned error may satisfy
// to opt into Run's single transparent retry.
type temporary interface{ Temporary() bool }

func isTemporary(err error) bool {
	t, ok := err.(temporary)
	return ok && t.Temporary()
}
