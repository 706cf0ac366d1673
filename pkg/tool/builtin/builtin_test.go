package builtin_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/builtin"
)

func newWorkspaceManager(t *testing.T) (*tool.Manager, string) {
	t.Helper()
	root := t.TempDir()
	m := tool.NewManager(nil)
	m.SetWorkspaceRoot(root)
	require.NoError(t, builtin.Register(m))
	return m, root
}

func TestWriteThenReadFileRoundTrips(t *testing.T) {
	m, _ := newWorkspaceManager(t)

	_, err := m.Run(context.Background(), "write_file", map[string]any{
		"path":    "notes/todo.txt",
		"content": "buy milk",
	})
	require.NoError(t, err)

	result, err := m.Run(context.Background(), "read_file", map[string]any{"path": "notes/todo.txt"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "buy milk", result.Metadata["content"])
}

func TestReadFileRejectsEscapingPath(t *testing.T) {
	m, _ := newWorkspaceManager(t)

	_, err := m.Run(context.Background(), "read_file", map[string]any{"path": "../outside.txt"})
	require.Error(t, err)
	var invalidArg *tool.ErrInvalidArgument
	assert.ErrorAs(t, err, &invalidArg)
}

func TestListDirReturnsSortedEntries(t *testing.T) {
	m, root := newWorkspaceManager(t)

	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	result, err := m.Run(context.Background(), "list_dir", map[string]any{"path": "."})
	require.NoError(t, err)
	entries, ok := result.Metadata["entries"].([]string)
	require.True(t, ok, "expected entries to be the []string built by list_dir")
	assert.Equal(t, []string{"a.txt", "b.txt", "sub/"}, entries)
}
