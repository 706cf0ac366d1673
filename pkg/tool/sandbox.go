package tool

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolvePath resolves a path argument against workspaceRoot and
// rejects it if it escapes the sandbox via parent-traversal components
// or by resolving outside the root (§4.2 "Security").
func ResolvePath(workspaceRoot, path string) (string, error) {
	if workspaceRoot == "" {
		return "", fmt.Errorf("sandbox: workspace_root is not configured")
	}

	cleanRoot, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return "", fmt.Errorf("sandbox: resolve workspace root: %w", err)
	}

	joined := filepath.Join(cleanRoot, path)
	resolved := filepath.Clean(joined)

	rel, err := filepath.Rel(cleanRoot, resolved)
	if err != nil {
		return "", fmt.Errorf("sandbox: resolve relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("sandbox: path %q escapes workspace root", path)
	}

	return resolved, nil
}

// isPathSchema reports whether a JSON-Schema property is tagged as a
// workspace path via the conduit-specific "format":"path" extension
// (§4.2 EXPANDED).
func isPathSchema(prop map[string]any) bool {
	format, _ := prop["format"].(string)
	return format == "path"
}

// sandboxPathArgs rewrites every string argument whose schema property
// is tagged format:"path" into its resolved, workspace-root-relative
// absolute form, so that any registered tool accepting a path argument
// is sandboxed the same way regardless of its source (in-process,
// MCP) without each tool implementation having to call ResolvePath
// itself. A schema with no path-tagged properties is a no-op.
func sandboxPathArgs(schema map[string]any, args map[string]any, workspaceRoot string) error {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]any)
	for name, raw := range props {
		prop, ok := raw.(map[string]any)
		if !ok || !isPathSchema(prop) {
			continue
		}
		val, ok := args[name].(string)
		if !ok {
			continue
		}
		resolved, err := ResolvePath(workspaceRoot, val)
		if err != nil {
			return err
		}
		args[name] = resolved
	}
	return nil
}
