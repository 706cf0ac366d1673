package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arclane/conduit/pkg/config"
	"github.com/arclane/conduit/pkg/controller"
	"github.com/arclane/conduit/pkg/llm"
	"github.com/arclane/conduit/pkg/logger"
	"github.com/arclane/conduit/pkg/observability"
	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/builtin"
	"github.com/arclane/conduit/pkg/tool/mcp"
	"github.com/arclane/conduit/pkg/transport"
)

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Watch bool `help:"Watch the config source for changes and hot-swap the LLM provider and tool registry."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	sourceType, err := config.ParseSourceType(cli.ConfigSource)
	if err != nil {
		return err
	}

	log := logger.New(config.LoggerConfig{Level: cli.LogLevel, Format: cli.LogFormat})

	ctl, err := newController(ctx, config.LoaderOptions{Type: sourceType, Path: cli.Config, Watch: c.Watch}, log)
	if err != nil {
		return err
	}

	srv := transport.New(transport.Config{
		Controller: ctl.controller,
		Obs:        ctl.obs,
		Log:        log,
	})

	httpServer := &http.Server{
		Addr:         ctl.cfg.Server.Address,
		Handler:      srv,
		ReadTimeout:  ctl.cfg.Server.ReadTimeout,
		WriteTimeout: ctl.cfg.Server.WriteTimeout,
	}

	if addr := ctl.cfg.Observability.PrometheusAddress; addr != "" {
		go serveMetrics(addr, ctl.obs, log)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown did not complete cleanly", "error", err)
	}
	if ctl.obs != nil {
		if err := ctl.obs.Shutdown(shutdownCtx); err != nil {
			log.Warn("observability shutdown failed", "error", err)
		}
	}
	return nil
}

// shutdownGrace bounds how long a graceful shutdown waits for
// in-flight NDJSON streams to finish before the process exits anyway.
const shutdownGrace = 10 * time.Second

// servingController bundles the pieces newController assembles, kept
// together so ServeCmd.Run can read them without a long parameter list.
type servingController struct {
	cfg        *config.Config
	controller *controller.AgentController
	obs        *observability.Provider
}

func buildDeps(cfg *config.Config, tools *tool.Manager, obs *observability.Provider) controller.Deps {
	return controller.Deps{
		Provider: llm.NewOpenAIProvider(llm.OpenAIConfig{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			MaxRetries: cfg.LLM.MaxRetries,
			BaseDelay:  cfg.LLM.BaseDelay,
			MaxDelay:   cfg.LLM.MaxDelay,
		}),
		Model: llm.ModelConfig{
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		Tools:               tools,
		Obs:                 obs,
		DefaultMaxLoopCount: cfg.Controller.MaxLoopCount,
	}
}

// newController builds the full request-serving chain from one config
// load. When opts.Watch is set, an OnChange callback re-registers any
// newly-configured tools and pushes a fresh Deps onto the controller
// on every reload, so the LLM model/credentials, tool timeouts, and
// max_loop_count default all pick up a changed document without a
// restart (§9 "Configuration hot-reload"). The tool Manager and
// observability Provider themselves are built once and reused across
// reloads: swapping those out mid-flight would orphan in-flight tool
// calls and spans.
func newController(ctx context.Context, opts config.LoaderOptions, log *slog.Logger) (*servingController, error) {
	var ctl *controller.AgentController
	opts.OnChange = func(cfg *config.Config) error {
		if ctl == nil {
			return nil
		}
		deps := ctl.Deps()
		if err := registerTools(ctx, deps.Tools, cfg, log); err != nil {
			return err
		}
		ctl.UpdateDeps(buildDeps(cfg, deps.Tools, deps.Obs))
		log.Info("applied reloaded configuration")
		return nil
	}

	loader, err := config.NewLoader(opts, log)
	if err != nil {
		return nil, fmt.Errorf("build config loader: %w", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	obs, err := observability.New(ctx, cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("build observability provider: %w", err)
	}

	tools := tool.NewManager(log)
	tools.SetObserver(obs)
	tools.SetWorkspaceRoot(cfg.Controller.WorkspaceRoot)
	if err := registerTools(ctx, tools, cfg, log); err != nil {
		return nil, err
	}

	ctl = controller.NewController(buildDeps(cfg, tools, obs), log)

	return &servingController{cfg: cfg, controller: ctl, obs: obs}, nil
}

// registerTools builds every entry of cfg.Tools: function entries name
// one of the built-in filesystem tools, MCP entries build a
// pkg/tool/mcp.Toolset. Agent-as-tool is not registered here or by
// pkg/controller: an agent becomes a tool.Callable only through its
// own ToTool(parent), and nothing registers that with the Manager.
func registerTools(ctx context.Context, tools *tool.Manager, cfg *config.Config, log *slog.Logger) error {
	builtinFactories := map[string]func() (tool.Callable, error){
		"read_file":  builtin.NewReadFile,
		"write_file": builtin.NewWriteFile,
		"list_dir":   builtin.NewListDir,
	}

	var toolsets []tool.Toolset
	for name, tc := range cfg.Tools {
		switch tc.Type {
		case config.ToolTypeFunction, "":
			factory, ok := builtinFactories[name]
			if !ok {
				return fmt.Errorf("config: tool %q: no built-in function tool by that name", name)
			}
			t, err := factory()
			if err != nil {
				return fmt.Errorf("config: tool %q: %w", name, err)
			}
			tools.RegisterTool(t)
			tools.SetTimeout(name, tc.Timeout)

		case config.ToolTypeMCP:
			ts, err := mcp.New(mcp.Config{
				Name:       name,
				Transport:  mcp.Transport(tc.Transport),
				Command:    tc.Command,
				Args:       tc.Args,
				Env:        tc.Env,
				URL:        tc.URL,
				APIKey:     tc.APIKey,
				Filter:     tc.Filter,
				MaxRetries: tc.MaxRetries,
			})
			if err != nil {
				return fmt.Errorf("config: tool %q: %w", name, err)
			}
			toolsets = append(toolsets, ts)

		default:
			return fmt.Errorf("config: tool %q: unknown type %q", name, tc.Type)
		}
	}

	if len(toolsets) > 0 {
		tools.DiscoverToolsets(ctx, toolsets)
	}
	return nil
}

func serveMetrics(addr string, obs *observability.Provider, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.MetricsHandler())
	log.Info("serving prometheus metrics", "address", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn("metrics listener stopped", "error", err)
	}
}
