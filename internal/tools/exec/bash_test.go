package exec

import (
	"context"
	"encoding/json"
	"runtime"
	"strings"
	"testing"
	"time"
)

func runBash(t *testing.T, tool *BashTool, args map[string]interface{}) Result {
	t.Helper()
	payload, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tool.Execute(context.Background(), payload)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	var result Result
	if err := json.Unmarshal([]byte(out.Content), &result); err != nil {
		t.Fatalf("result not JSON: %v (%q)", err, out.Content)
	}
	return result
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

func TestBashToolEcho(t *testing.T) {
	skipWithoutShell(t)
	tool := NewBashTool(0, 0)

	result := runBash(t, tool, map[string]interface{}{"command": "echo hello"})
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d (%s)", result.ExitCode, result.Error)
	}
	if strings.TrimSpace(result.Stdout) != "hello" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestBashToolExitCode(t *testing.T) {
	skipWithoutShell(t)
	tool := NewBashTool(0, 0)

	result := runBash(t, tool, map[string]interface{}{"command": "exit 3"})
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d", result.ExitCode)
	}
}

func TestBashToolCwd(t *testing.T) {
	skipWithoutShell(t)
	tool := NewBashTool(0, 0)
	dir := t.TempDir()

	result := runBash(t, tool, map[string]interface{}{"command": "pwd", "cwd": dir})
	if got := strings.TrimSpace(result.Stdout); got != dir {
		// TempDir may resolve through symlinks on some systems.
		if !strings.HasSuffix(got, "/"+lastSegment(dir)) {
			t.Errorf("pwd = %q, want %q", got, dir)
		}
	}
}

func TestBashToolEnv(t *testing.T) {
	skipWithoutShell(t)
	tool := NewBashTool(0, 0)

	result := runBash(t, tool, map[string]interface{}{
		"command": "echo $LOOM_TEST_VAR",
		"env":     map[string]string{"LOOM_TEST_VAR": "wired"},
	})
	if strings.TrimSpace(result.Stdout) != "wired" {
		t.Errorf("stdout = %q", result.Stdout)
	}
}

func TestBashToolTimeout(t *testing.T) {
	skipWithoutShell(t)
	tool := NewBashTool(0, 50*time.Millisecond)

	start := time.Now()
	result := runBash(t, tool, map[string]interface{}{"command": "sleep 5"})
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("timeout not enforced, took %s", elapsed)
	}
	if !result.TimedOut {
		t.Error("result should be marked timed out")
	}
	if result.ExitCode == 0 {
		t.Error("timed-out command should not report success")
	}
}

func TestBashToolOutputCap(t *testing.T) {
	skipWithoutShell(t)
	tool := NewBashTool(100, 0)

	result := runBash(t, tool, map[string]interface{}{
		"command": "yes x | head -c 10000",
	})
	if len(result.Stdout) > 100 {
		t.Errorf("stdout length = %d, cap is 100", len(result.Stdout))
	}
}

func TestBashToolMissingCommand(t *testing.T) {
	tool := NewBashTool(0, 0)
	payload, _ := json.Marshal(map[string]interface{}{"command": "   "})
	out, err := tool.Execute(context.Background(), payload)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !out.IsError {
		t.Fatal("empty command should produce an error result")
	}
}

func lastSegment(path string) string {
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	return parts[len(parts)-1]
}
