package tool

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/agentd/internal/security"
)

// maxReadBytes caps file reads so a tool result cannot blow up a
// conversation turn.
const maxReadBytes = 256 * 1024

// resolveWorkspacePath applies the full path gauntlet: string-level checks,
// anchoring relative paths under the workspace, then symlink resolution back
// under the canonical root.
func resolveWorkspacePath(policy *security.Policy, raw string) (string, error) {
	if !policy.IsPathAllowed(raw) {
		return "", fmt.Errorf("path not allowed by security policy: %s", raw)
	}

	path := raw
	if !filepath.IsAbs(path) {
		path = filepath.Join(policy.WorkspaceDir, path)
	}

	// Resolve the deepest existing ancestor so paths being created are still
	// checked against symlink escapes.
	resolved, err := resolveExisting(path)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !policy.IsResolvedPathAllowed(resolved) {
		return "", fmt.Errorf("resolved path escapes workspace: %s", raw)
	}
	return path, nil
}

func resolveExisting(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}
	dir, base := filepath.Split(filepath.Clean(path))
	if dir == "" || dir == string(filepath.Separator) {
		return filepath.Clean(path), nil
	}
	parent, err := resolveExisting(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(parent, base), nil
}

// ReadFileTool reads a file from the workspace.
type ReadFileTool struct {
	policy *security.Policy
}

func NewReadFileTool(policy *security.Policy) *ReadFileTool {
	return &ReadFileTool{policy: policy}
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file inside the workspace"
}

func (t *ReadFileTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path relative to the workspace root",
			},
		},
		"required": []any{"path"},
	}
}

func (t *ReadFileTool) Execute(_ context.Context, args map[string]any) (*Result, error) {
	raw, err := StringArg(args, "path")
	if err != nil {
		return Fail(err.Error()), nil
	}
	path, err := resolveWorkspacePath(t.policy, raw)
	if err != nil {
		return Fail(err.Error()), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Fail(fmt.Sprintf("read %s: %v", raw, err)), nil
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return Ok(string(data)), nil
}

// WriteFileTool writes a file inside the workspace. Side-effecting: records
// an action against the rate window before touching the filesystem.
type WriteFileTool struct {
	policy *security.Policy
}

func NewWriteFileTool(policy *security.Policy) *WriteFileTool {
	return &WriteFileTool{policy: policy}
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file inside the workspace, creating parent directories as needed"
}

func (t *WriteFileTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "File path relative to the workspace root",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "Content to write",
			},
		},
		"required": []any{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(_ context.Context, args map[string]any) (*Result, error) {
	if !t.policy.RecordAction() {
		return Fail("rate limit exceeded"), nil
	}
	if !t.policy.CanAct() {
		return Fail("write_file is not permitted in read-only mode"), nil
	}

	raw, err := StringArg(args, "path")
	if err != nil {
		return Fail(err.Error()), nil
	}
	content, err := StringArg(args, "content")
	if err != nil {
		return Fail(err.Error()), nil
	}
	path, err := resolveWorkspacePath(t.policy, raw)
	if err != nil {
		return Fail(err.Error()), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Fail(fmt.Sprintf("create parent directory: %v", err)), nil
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return Fail(fmt.Sprintf("write %s: %v", raw, err)), nil
	}
	return Ok(fmt.Sprintf("wrote %d bytes to %s", len(content), raw)), nil
}

// ListDirTool lists a workspace directory.
type ListDirTool struct {
	policy *security.Policy
}

func NewListDirTool(policy *security.Policy) *ListDirTool {
	return &ListDirTool{policy: policy}
}

func (t *ListDirTool) Name() string { return "list_dir" }

func (t *ListDirTool) Description() string {
	return "List the entries of a directory inside the workspace"
}

func (t *ListDirTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "Directory path relative to the workspace root; defaults to the root",
			},
		},
	}
}

func (t *ListDirTool) Execute(_ context.Context, args map[string]any) (*Result, error) {
	raw := "."
	if v, ok := args["path"]; ok {
		s, ok := v.(string)
		if !ok {
			return Fail("argument path must be a string"), nil
		}
		raw = s
	}
	path, err := resolveWorkspacePath(t.policy, raw)
	if err != nil {
		return Fail(err.Error()), nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return Fail(fmt.Sprintf("list %s: %v", raw, err)), nil
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
	return Ok(strings.Join(names, "\n")), nil
}
