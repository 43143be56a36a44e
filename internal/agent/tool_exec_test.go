package agent

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// fakeTool is a scriptable tool for coordinator tests.
type fakeTool struct {
	name    string
	schema  string
	execute func(ctx context.Context, params json.RawMessage) (*ToolOutput, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }

func (f *fakeTool) Schema() json.RawMessage {
	if f.schema == "" {
		return json.RawMessage(`{"type":"object"}`)
	}
	return json.RawMessage(f.schema)
}

func (f *fakeTool) Execute(ctx context.Context, params json.RawMessage) (*ToolOutput, error) {
	if f.execute == nil {
		return &ToolOutput{Content: "ok"}, nil
	}
	return f.execute(ctx, params)
}

func newTestCoordinator(t *testing.T, tools ...Tool) *Coordinator {
	t.Helper()
	registry := NewToolRegistry()
	for _, tool := range tools {
		registry.Register(tool)
	}
	return NewCoordinator(registry, &CoordinatorConfig{
		MaxConcurrency: 3,
		DefaultTimeout: 2 * time.Second,
	}, testLogger(), nil)
}

func TestExecuteUnknownTool(t *testing.T) {
	coord := newTestCoordinator(t)

	result := coord.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "nope"})
	if !result.IsError {
		t.Fatal("unknown tool should produce a failure result")
	}
	if result.Content != "Unknown tool: nope" {
		t.Errorf("unexpected content: %q", result.Content)
	}
	if result.ToolCallID != "c1" {
		t.Errorf("result should carry the call id, got %q", result.ToolCallID)
	}
}

func TestExecutePlanModeGate(t *testing.T) {
	coord := newTestCoordinator(t, &fakeTool{name: "write"}, &fakeTool{name: "read"})
	coord.SetPlanMode(func() bool { return true })

	result := coord.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "write", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatal("write in plan mode should fail")
	}
	if !strings.Contains(result.Content, "exit_plan_mode") {
		t.Errorf("plan-mode failure should mention exit_plan_mode: %q", result.Content)
	}

	result = coord.Execute(context.Background(), models.ToolCall{ID: "c2", Name: "read", Input: json.RawMessage(`{}`)})
	if result.IsError {
		t.Errorf("read in plan mode should succeed: %q", result.Content)
	}
}

func TestExecuteSchemaValidation(t *testing.T) {
	tool := &fakeTool{
		name:   "typed",
		schema: `{"type":"object","properties":{"count":{"type":"integer"}},"required":["count"]}`,
	}
	coord := newTestCoordinator(t, tool)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid", `{"count": 3}`, false},
		{"missing required", `{}`, true},
		{"wrong type", `{"count": "three"}`, true},
		{"invalid json", `{count:}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := coord.Execute(context.Background(), models.ToolCall{
				ID: "c1", Name: "typed", Input: json.RawMessage(tt.input),
			})
			if result.IsError != tt.wantErr {
				t.Errorf("IsError = %v, want %v (content: %q)", result.IsError, tt.wantErr, result.Content)
			}
			if tt.wantErr && !strings.Contains(result.Content, "Invalid input") {
				t.Errorf("schema failure should say Invalid input: %q", result.Content)
			}
		})
	}
}

func TestExecuteBrokenSchemaDoesNotBlock(t *testing.T) {
	tool := &fakeTool{name: "broken", schema: `{"type": not-json`}
	coord := newTestCoordinator(t, tool)

	result := coord.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "broken", Input: json.RawMessage(`{}`)})
	if result.IsError {
		t.Errorf("broken schema should not block execution: %q", result.Content)
	}
}

func TestExecutePanicRecovery(t *testing.T) {
	tool := &fakeTool{
		name: "boom",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolOutput, error) {
			panic("kaboom")
		},
	}
	coord := newTestCoordinator(t, tool)

	result := coord.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "boom", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatal("panicking tool should produce a failure result")
	}
	if !strings.Contains(result.Content, "panic") {
		t.Errorf("failure should mention the panic: %q", result.Content)
	}
}

func TestExecuteTimeout(t *testing.T) {
	tool := &fakeTool{
		name: "slow",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolOutput, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	registry := NewToolRegistry()
	registry.Register(tool)
	coord := NewCoordinator(registry, &CoordinatorConfig{
		MaxConcurrency: 1,
		DefaultTimeout: 50 * time.Millisecond,
	}, testLogger(), nil)

	start := time.Now()
	result := coord.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "slow", Input: json.RawMessage(`{}`)})
	if !result.IsError {
		t.Fatal("timed-out tool should produce a failure result")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
	if !strings.Contains(result.Content, "timed out") {
		t.Errorf("failure should mention the timeout: %q", result.Content)
	}
}

func TestExecuteWorkDirInjection(t *testing.T) {
	var gotParams json.RawMessage
	var mu sync.Mutex
	tool := &fakeTool{
		name: "read",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolOutput, error) {
			mu.Lock()
			gotParams = params
			mu.Unlock()
			return &ToolOutput{Content: "ok"}, nil
		},
	}
	coord := newTestCoordinator(t, tool)
	coord.SetWorkDir(func() string { return "/work" })

	coord.Execute(context.Background(), models.ToolCall{
		ID: "c1", Name: "read", Input: json.RawMessage(`{"path":"a.txt"}`),
	})

	var args map[string]any
	if err := json.Unmarshal(gotParams, &args); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if args["cwd"] != "/work" {
		t.Errorf("cwd not injected, got %v", args["cwd"])
	}

	// An explicit cwd from the model wins.
	coord.Execute(context.Background(), models.ToolCall{
		ID: "c2", Name: "read", Input: json.RawMessage(`{"path":"a.txt","cwd":"/other"}`),
	})
	if err := json.Unmarshal(gotParams, &args); err != nil {
		t.Fatalf("unmarshal params: %v", err)
	}
	if args["cwd"] != "/other" {
		t.Errorf("explicit cwd overridden, got %v", args["cwd"])
	}
}

func TestExecuteAllPreservesOrder(t *testing.T) {
	tool := &fakeTool{
		name: "echo",
		execute: func(ctx context.Context, params json.RawMessage) (*ToolOutput, error) {
			var input struct {
				Value string `json:"value"`
				Delay int    `json:"delay"`
			}
			if err := json.Unmarshal(params, &input); err != nil {
				return nil, err
			}
			time.Sleep(time.Duration(input.Delay) * time.Millisecond)
			return &ToolOutput{Content: input.Value}, nil
		},
	}
	coord := newTestCoordinator(t, tool)

	// The first call finishes last; results must still come back in
	// proposal order.
	calls := []models.ToolCall{
		{ID: "c1", Name: "echo", Input: json.RawMessage(`{"value":"first","delay":80}`)},
		{ID: "c2", Name: "echo", Input: json.RawMessage(`{"value":"second","delay":10}`)},
		{ID: "c3", Name: "echo", Input: json.RawMessage(`{"value":"third","delay":1}`)},
	}

	results := coord.ExecuteAll(context.Background(), calls, NoopHandler{})
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"first", "second", "third"} {
		if results[i].Content != want {
			t.Errorf("result %d = %q, want %q", i, results[i].Content, want)
		}
		if results[i].ToolCallID != calls[i].ID {
			t.Errorf("result %d call id = %q, want %q", i, results[i].ToolCallID, calls[i].ID)
		}
	}
}

func TestExecuteAllEmpty(t *testing.T) {
	coord := newTestCoordinator(t)
	if results := coord.ExecuteAll(context.Background(), nil, NoopHandler{}); results != nil {
		t.Errorf("expected nil results for no calls, got %v", results)
	}
}
