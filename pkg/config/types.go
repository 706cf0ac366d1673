// Package config loads this engine's configuration from a file, Consul
// KV, or etcd source via koanf, with an optional watch mode (§9
// "Configuration hot-reload").
package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is the root configuration document.
type Config struct {
	Version string `yaml:"version,omitempty"`
	Name    string `yaml:"name,omitempty"`

	LLM        LLMConfig            `yaml:"llm,omitempty"`
	Tools      map[string]ToolConfig `yaml:"tools,omitempty"`
	Controller ControllerConfig     `yaml:"controller,omitempty"`
	Server     ServerConfig         `yaml:"server,omitempty"`
	Logger     LoggerConfig         `yaml:"logger,omitempty"`
	Observability ObservabilityConfig `yaml:"observability,omitempty"`
}

// LLMConfig configures the OpenAI-compatible provider (§4.1).
type LLMConfig struct {
	BaseURL     string        `yaml:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	Temperature float64       `yaml:"temperature,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	MaxRetries  int           `yaml:"max_retries,omitempty"`
	BaseDelay   time.Duration `yaml:"base_delay,omitempty"`
	MaxDelay    time.Duration `yaml:"max_delay,omitempty"`
}

// ToolType identifies how a configured tool is sourced (§4.2).
type ToolType string

const (
	ToolTypeFunction ToolType = "function"
	ToolTypeMCP      ToolType = "mcp"
)

// ToolConfig configures one entry of Config.Tools. Function tools are
// registered in code and only take a timeout override here; MCP tools
// are fully described so a Toolset can be built from config alone.
type ToolConfig struct {
	Type    ToolType      `yaml:"type,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`

	// MCP-specific (Type == ToolTypeMCP, §4.2 "three tool sources").
	Transport  string   `yaml:"transport,omitempty"` // stdio, sse, streamable-http
	Command    string   `yaml:"command,omitempty"`
	Args       []string `yaml:"args,omitempty"`
	Env        []string `yaml:"env,omitempty"`
	URL        string   `yaml:"url,omitempty"`
	APIKey     string   `yaml:"api_key,omitempty"`
	Filter     []string `yaml:"filter,omitempty"`
	MaxRetries int      `yaml:"max_retries,omitempty"`
}

// ControllerConfig configures the AgentController's defaults (§4.6).
type ControllerConfig struct {
	DefaultMode   string `yaml:"default_mode,omitempty"`
	MaxLoopCount  int    `yaml:"max_loop_count,omitempty"`
	ContextBudget int    `yaml:"context_budget,omitempty"`
	WorkspaceRoot string `yaml:"workspace_root,omitempty"`
}

// ServerConfig configures the NDJSON transport adapter (§6).
type ServerConfig struct {
	Address      string        `yaml:"address,omitempty"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty"`
}

// LoggerConfig configures the slog handler (pkg/logger).
type LoggerConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"` // text, json
}

// ObservabilityConfig configures tracing and metrics (§9 "Observability
// hooks").
type ObservabilityConfig struct {
	Enabled           bool   `yaml:"enabled,omitempty"`
	ServiceName       string `yaml:"service_name,omitempty"`
	PrometheusAddress string `yaml:"prometheus_address,omitempty"`
}

// SetDefaults fills in the zero-value fields every deployment needs a
// sane value for, mirroring the teacher's layered "zero-config still
// runs" philosophy without its LLM/RAG/database surface.
func (c *Config) SetDefaults() {
	if c.Tools == nil {
		c.Tools = make(map[string]ToolConfig)
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.Controller.DefaultMode == "" {
		c.Controller.DefaultMode = "standard"
	}
	if c.Controller.MaxLoopCount <= 0 {
		c.Controller.MaxLoopCount = 10
	}
	if c.Controller.ContextBudget <= 0 {
		c.Controller.ContextBudget = 32000
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 0 // streaming responses must not be capped
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "conduit"
	}
}

// DecodeToolConfig decodes a raw map (e.g. from an admin API's JSON
// body, or a Consul KV entry scoped to a single tool rather than the
// whole document) into a ToolConfig. Used where a single tool's
// settings arrive outside the main Loader document, so they still go
// through the same yaml-tagged struct rather than ad hoc field lookups.
func DecodeToolConfig(raw map[string]any) (ToolConfig, error) {
	var tc ToolConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &tc,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return tc, fmt.Errorf("config: build tool decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return tc, fmt.Errorf("config: decode tool config: %w", err)
	}
	return tc, nil
}
