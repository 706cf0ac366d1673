// Package builtin provides the filesystem-oriented in-process tools
// §4.2 names as the function-registered source: read_file, write_file,
// and list_dir. Their path arguments are tagged format:"path" so the
// manager's workspace-root sandbox rewrites them before Call ever
// runs, which is why each tool trusts its Path field outright rather
// than re-validating it.
package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/arclane/conduit/pkg/tool"
	"github.com/arclane/conduit/pkg/tool/functiontool"
)

// ReadFileArgs is read_file's parameter schema.
type ReadFileArgs struct {
	Path string `json:"path" jsonschema:"required,format=path,description=Workspace-relative path of the file to read"`
}

// NewReadFile returns the read_file tool: the content of one file
// under the sandboxed workspace root.
func NewReadFile() (tool.Callable, error) {
	return functiontool.New(functiontool.Config{
		Name:        "read_file",
		Description: "Read the contents of a file within the workspace.",
	}, func(_ context.Context, args ReadFileArgs) (map[string]any, error) {
		data, err := os.ReadFile(args.Path)
		if err != nil {
			return nil, fmt.Errorf("read_file: %w", err)
		}
		return map[string]any{"content": string(data)}, nil
	})
}

// WriteFileArgs is write_file's parameter schema.
type WriteFileArgs struct {
	Path    string `json:"path" jsonschema:"required,format=path,description=Workspace-relative path of the file to write"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

// NewWriteFile returns the write_file tool: creates or overwrites one
// file under the sandboxed workspace root, creating parent
// directories as needed.
func NewWriteFile() (tool.Callable, error) {
	return functiontool.New(functiontool.Config{
		Name:        "write_file",
		Description: "Write content to a file within the workspace, creating parent directories as needed.",
	}, func(_ context.Context, args WriteFileArgs) (map[string]any, error) {
		if err := os.MkdirAll(filepath.Dir(args.Path), 0o755); err != nil {
			return nil, fmt.Errorf("write_file: %w", err)
		}
		if err := os.WriteFile(args.Path, []byte(args.Content), 0o644); err != nil {
			return nil, fmt.Errorf("write_file: %w", err)
		}
		return map[string]any{"bytes_written": len(args.Content)}, nil
	})
}

// ListDirArgs is list_dir's parameter schema.
type ListDirArgs struct {
	Path string `json:"path" jsonschema:"required,format=path,description=Workspace-relative directory to list"`
}

// NewListDir returns the list_dir tool: the sorted entry names of one
// directory under the sandboxed workspace root.
func NewListDir() (tool.Callable, error) {
	return functiontool.New(functiontool.Config{
		Name:        "list_dir",
		Description: "List the entries of a directory within the workspace.",
	}, func(_ context.Context, args ListDirArgs) (map[string]any, error) {
		entries, err := os.ReadDir(args.Path)
		if err != nil {
			return nil, fmt.Errorf("list_dir: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
		sort.Strings(names)
		return map[string]any{"entries": names}, nil
	})
}

// Register builds and registers read_file, write_file, and list_dir
// onto m. Called once at startup; m.SetWorkspaceRoot must be called
// with a non-empty root for these tools to be callable at all, since
// an empty root fails every path argument's sandbox resolution.
func Register(m *tool.Manager) error {
	factories := []func() (tool.Callable, error){NewReadFile, NewWriteFile, NewListDir}
	for _, factory := range factories {
		t, err := factory()
		if err != nil {
			return err
		}
		m.RegisterTool(t)
	}
	return nil
}
