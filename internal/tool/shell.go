package tool

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentd/internal/security"
)

// shellTimeout bounds a single command execution.
const shellTimeout = 60 * time.Second

// ShellTool runs an allow-listed shell command inside the workspace.
type ShellTool struct {
	policy *security.Policy
}

// NewShellTool creates the shell execution tool gated by the given policy.
func NewShellTool(policy *security.Policy) *ShellTool {
	return &ShellTool{policy: policy}
}

func (t *ShellTool) Name() string { return "shell_exec" }

func (t *ShellTool) Description() string {
	return "Run a shell command from the allowed command list inside the workspace"
}

func (t *ShellTool) ParametersSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to run",
			},
		},
		"required": []any{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	if !t.policy.RecordAction() {
		return Fail("rate limit exceeded"), nil
	}

	command, err := StringArg(args, "command")
	if err != nil {
		return Fail(err.Error()), nil
	}
	if !t.policy.IsCommandAllowed(command) {
		return Fail("command not allowed by security policy: " + command), nil
	}

	runCtx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = t.policy.WorkspaceDir
	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\n")
	if err != nil {
		if output == "" {
			output = err.Error()
		}
		return &Result{Success: false, Output: output, Error: err.Error()}, nil
	}
	return Ok(output), nil
}
