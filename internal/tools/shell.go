package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// DefaultDenyPatterns match shell commands the exec tool refuses outright.
var DefaultDenyPatterns = []string{
	`\brm\s+-[rf]{1,2}\b`,
	`\bdel\s+/[fq]\b`,
	`\brmdir\s+/s\b`,
	`\b(format|mkfs|diskpart)\b`,
	`\bdd\s+if=`,
	`>\s*/dev/sd`,
	`\b(shutdown|reboot|poweroff)\b`,
	`:\(\)\s*\{.*\};\s*:`,
}

const maxExecOutput = 10000

// ExecTool executes shell commands under a wall-clock timeout with
// deny/allow pattern guards. Timeouts kill the process and come back as
// tool output, never as a turn failure.
type ExecTool struct {
	Timeout             time.Duration
	WorkingDir          string
	DenyPatterns        []string
	AllowPatterns       []string
	RestrictToWorkspace bool
}

// NewExecTool creates an ExecTool with default safety patterns.
func NewExecTool() *ExecTool {
	return &ExecTool{
		Timeout:      60 * time.Second,
		DenyPatterns: DefaultDenyPatterns,
	}
}

func (t *ExecTool) Name() string        { return "exec" }
func (t *ExecTool) Description() string { return "Execute a shell command and return its output." }
func (t *ExecTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command":     map[string]any{"type": "string", "description": "The shell command to execute"},
			"working_dir": map[string]any{"type": "string", "description": "Optional working directory"},
		},
		"required": []string{"command"},
	}
}

func (t *ExecTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, _ := args["command"].(string)
	if strings.TrimSpace(command) == "" {
		return "Error: command is empty", nil
	}

	cwd, _ := args["working_dir"].(string)
	if cwd == "" {
		cwd = t.WorkingDir
	}

	if blocked := t.guardCommand(command); blocked != "" {
		return blocked, nil
	}

	timeout := t.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	var parts []string
	if stdout.Len() > 0 {
		parts = append(parts, stdout.String())
	}
	if s := strings.TrimSpace(stderr.String()); s != "" {
		parts = append(parts, "STDERR:\n"+s)
	}
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Sprintf("Error: command timed out after %v", timeout), nil
		}
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			parts = append(parts, fmt.Sprintf("\nExit code: %d", exitErr.ExitCode()))
		}
	}

	result := "(no output)"
	if len(parts) > 0 {
		result = strings.Join(parts, "\n")
	}
	if len(result) > maxExecOutput {
		result = result[:maxExecOutput] + fmt.Sprintf("\n... (truncated, %d more chars)", len(result)-maxExecOutput)
	}
	return result, nil
}

// guardCommand returns a non-empty refusal when the command trips a guard.
func (t *ExecTool) guardCommand(command string) string {
	lower := strings.ToLower(strings.TrimSpace(command))

	for _, pattern := range t.DenyPatterns {
		if matched, _ := regexp.MatchString(pattern, lower); matched {
			return "Error: command blocked by safety guard (dangerous pattern detected)"
		}
	}

	if len(t.AllowPatterns) > 0 {
		allowed := false
		for _, p := range t.AllowPatterns {
			if matched, _ := regexp.MatchString(p, lower); matched {
				allowed = true
				break
			}
		}
		if !allowed {
			return "Error: command blocked by safety guard (not in allowlist)"
		}
	}

	if t.RestrictToWorkspace {
		if strings.Contains(command, "../") || strings.Contains(command, `..\`) {
			return "Error: command blocked by safety guard (path traversal detected)"
		}
	}

	return ""
}
