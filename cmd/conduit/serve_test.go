package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/config"
	"github.com/arclane/conduit/pkg/tool"
)

func TestRegisterToolsRegistersBuiltinFunctionTools(t *testing.T) {
	tools := tool.NewManager(nil)
	tools.SetWorkspaceRoot(t.TempDir())

	cfg := &config.Config{Tools: map[string]config.ToolConfig{
		"read_file": {Type: config.ToolTypeFunction},
	}}

	require.NoError(t, registerTools(context.Background(), tools, cfg, nil))

	defs := tools.ListTools(nil)
	require.Len(t, defs, 1)
	assert.Equal(t, "read_file", defs[0].Name)
}

func TestRegisterToolsRejectsUnknownFunctionName(t *testing.T) {
	tools := tool.NewManager(nil)
	cfg := &config.Config{Tools: map[string]config.ToolConfig{
		"does_not_exist": {Type: config.ToolTypeFunction},
	}}

	err := registerTools(context.Background(), tools, cfg, nil)
	require.Error(t, err)
}

func TestRegisterToolsRejectsUnknownType(t *testing.T) {
	tools := tool.NewManager(nil)
	cfg := &config.Config{Tools: map[string]config.ToolConfig{
		"weird": {Type: "bogus"},
	}}

	err := registerTools(context.Background(), tools, cfg, nil)
	require.Error(t, err)
}
