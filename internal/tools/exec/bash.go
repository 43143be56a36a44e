// Package exec provides the bash tool for running shell commands.
package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/loom/internal/agent"
)

// BashTool runs shell commands synchronously with output caps and an
// optional timeout. The permission layer decides whether a given command
// needs confirmation; this tool just runs what it is handed.
type BashTool struct {
	maxOutput      int
	defaultTimeout time.Duration
}

// NewBashTool creates a bash tool. maxOutput caps combined captured
// output per stream; zero means the 64KB default.
func NewBashTool(maxOutput int, defaultTimeout time.Duration) *BashTool {
	if maxOutput <= 0 {
		maxOutput = 64000
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 2 * time.Minute
	}
	return &BashTool{maxOutput: maxOutput, defaultTimeout: defaultTimeout}
}

func (t *BashTool) Name() string { return "bash" }

func (t *BashTool) Description() string {
	return "Run a shell command and capture its output."
}

func (t *BashTool) Schema() json.RawMessage {
	schema := map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "Shell command to execute.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory for the command.",
			},
			"env": map[string]interface{}{
				"type":        "object",
				"description": "Environment overrides (string values).",
			},
			"timeout_seconds": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds (0 = tool default).",
				"minimum":     0,
			},
		},
		"required": []string{"command"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

// Result summarizes a completed command.
type Result struct {
	Command    string `json:"command"`
	Cwd        string `json:"cwd"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (t *BashTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Command        string            `json:"command"`
		Cwd            string            `json:"cwd"`
		Env            map[string]string `json:"env"`
		TimeoutSeconds int               `json:"timeout_seconds"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return toolError("command is required"), nil
	}

	timeout := t.defaultTimeout
	if input.TimeoutSeconds > 0 {
		timeout = time.Duration(input.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dir := strings.TrimSpace(input.Cwd)
	if dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return toolError(fmt.Sprintf("resolve cwd: %v", err)), nil
		}
		dir = abs
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	if dir != "" {
		cmd.Dir = dir
	}
	if len(input.Env) > 0 {
		base := os.Environ()
		for k, v := range input.Env {
			base = append(base, k+"="+v)
		}
		cmd.Env = base
	}

	stdout := newLimitedBuffer(t.maxOutput)
	stderr := newLimitedBuffer(t.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()

	result := Result{
		Command:    command,
		Cwd:        cmd.Dir,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		ExitCode:   exitCode(err),
		DurationMS: time.Since(start).Milliseconds(),
		TimedOut:   runCtx.Err() == context.DeadlineExceeded,
	}
	if err != nil {
		result.Error = err.Error()
	}

	payload, marshalErr := json.MarshalIndent(result, "", "  ")
	if marshalErr != nil {
		return toolError(fmt.Sprintf("encode result: %v", marshalErr)), nil
	}
	return &agent.ToolOutput{Content: string(payload), IsError: err != nil}, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func toolError(message string) *agent.ToolOutput {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &agent.ToolOutput{Content: string(payload), IsError: true}
}

// limitedBuffer caps captured output so a chatty command cannot flood
// the transcript.
type limitedBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 && len(b.buf) >= b.max {
		return len(p), nil
	}
	remaining := b.max - len(b.buf)
	if b.max > 0 && len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
