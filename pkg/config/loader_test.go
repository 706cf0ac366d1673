package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/config"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "conduit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadFileAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, `
name: my-deployment
llm:
  model: gpt-4o
`)

	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: path}, nil)
	require.NoError(t, err)

	require.Equal(t, "my-deployment", cfg.Name)
	require.Equal(t, "gpt-4o", cfg.LLM.Model)
	require.Equal(t, "https://api.openai.com/v1", cfg.LLM.BaseURL)
	require.Equal(t, "standard", cfg.Controller.DefaultMode)
	require.Equal(t, 10, cfg.Controller.MaxLoopCount)
	require.Equal(t, 32000, cfg.Controller.ContextBudget)
	require.Equal(t, ":8080", cfg.Server.Address)
}

func TestLoadExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("CONDUIT_API_KEY", "sk-test-123")

	path := writeTempConfig(t, `
llm:
  api_key: ${CONDUIT_API_KEY}
  model: ${CONDUIT_MODEL:-gpt-4o-mini}
`)

	cfg, err := config.Load(config.LoaderOptions{Type: config.SourceFile, Path: path}, nil)
	require.NoError(t, err)

	require.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	require.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
}

func TestLoadRejectsMissingPath(t *testing.T) {
	_, err := config.Load(config.LoaderOptions{Type: config.SourceFile}, nil)
	require.Error(t, err)
}

func TestParseSourceType(t *testing.T) {
	cases := map[string]config.SourceType{
		"file":   config.SourceFile,
		"":       config.SourceFile,
		"Consul": config.SourceConsul,
		"ETCD":   config.SourceEtcd,
	}
	for in, want := range cases {
		got, err := config.ParseSourceType(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := config.ParseSourceType("zookeeper")
	require.Error(t, err)
}

func TestDecodeToolConfig(t *testing.T) {
	tc, err := config.DecodeToolConfig(map[string]any{
		"type":    "mcp",
		"timeout": 30 * time.Second,
		"url":     "https://tools.example.com/mcp",
		"filter":  []string{"search", "fetch"},
	})
	require.NoError(t, err)
	require.Equal(t, config.ToolTypeMCP, tc.Type)
	require.Equal(t, 30*time.Second, tc.Timeout)
	require.Equal(t, "https://tools.example.com/mcp", tc.URL)
	require.Equal(t, []string{"search", "fetch"}, tc.Filter)
}
