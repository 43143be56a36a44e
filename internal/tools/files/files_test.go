package files

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func params(t *testing.T, args map[string]interface{}) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(args)
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func decodeResult(t *testing.T, content string) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		t.Fatalf("result is not JSON: %v (%q)", err, content)
	}
	return out
}

func TestReadTool(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadTool(0)
	out, err := tool.Execute(context.Background(), params(t, map[string]interface{}{
		"path": "hello.txt",
		"cwd":  dir,
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error result: %s", out.Content)
	}

	result := decodeResult(t, out.Content)
	if result["content"] != "hello world" {
		t.Errorf("content = %v", result["content"])
	}
	if result["truncated"] != false {
		t.Errorf("truncated = %v", result["truncated"])
	}
}

func TestReadToolOffsetAndLimit(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "data.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewReadTool(0)
	out, err := tool.Execute(context.Background(), params(t, map[string]interface{}{
		"path":      "data.txt",
		"cwd":       dir,
		"offset":    2,
		"max_bytes": 4,
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	result := decodeResult(t, out.Content)
	if result["content"] != "2345" {
		t.Errorf("content = %v", result["content"])
	}
	if result["truncated"] != true {
		t.Errorf("truncated = %v", result["truncated"])
	}
}

func TestReadToolMissingFile(t *testing.T) {
	tool := NewReadTool(0)
	out, err := tool.Execute(context.Background(), params(t, map[string]interface{}{
		"path": "nope.txt",
		"cwd":  t.TempDir(),
	}))
	if err != nil {
		t.Fatalf("tool errors must be results, not Go errors: %v", err)
	}
	if !out.IsError {
		t.Fatal("expected an error result for a missing file")
	}
}

func TestWriteToolCreatesParents(t *testing.T) {
	dir := t.TempDir()

	tool := NewWriteTool()
	out, err := tool.Execute(context.Background(), params(t, map[string]interface{}{
		"path":    "nested/deep/file.txt",
		"content": "payload",
		"cwd":     dir,
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error result: %s", out.Content)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nested", "deep", "file.txt"))
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if string(data) != "payload" {
		t.Errorf("file content = %q", data)
	}

	result := decodeResult(t, out.Content)
	if result["created"] != true {
		t.Errorf("created = %v", result["created"])
	}
}

func TestWriteToolOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewWriteTool()
	out, err := tool.Execute(context.Background(), params(t, map[string]interface{}{
		"path":    path,
		"content": "new",
	}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	result := decodeResult(t, out.Content)
	if result["created"] != false {
		t.Errorf("created = %v for an existing file", result["created"])
	}
	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("file content = %q", data)
	}
}

func TestEditTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "code.go")
	if err := os.WriteFile(path, []byte("alpha beta alpha"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewEditTool()

	tests := []struct {
		name        string
		args        map[string]interface{}
		wantErr     bool
		wantContent string
	}{
		{
			name: "ambiguous match",
			args: map[string]interface{}{
				"path": path, "old_string": "alpha", "new_string": "gamma",
			},
			wantErr:     true,
			wantContent: "alpha beta alpha",
		},
		{
			name: "replace all",
			args: map[string]interface{}{
				"path": path, "old_string": "alpha", "new_string": "gamma", "replace_all": true,
			},
			wantContent: "gamma beta gamma",
		},
		{
			name: "unique replace",
			args: map[string]interface{}{
				"path": path, "old_string": "beta", "new_string": "delta",
			},
			wantContent: "gamma delta gamma",
		},
		{
			name: "not found",
			args: map[string]interface{}{
				"path": path, "old_string": "omega", "new_string": "x",
			},
			wantErr:     true,
			wantContent: "gamma delta gamma",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := tool.Execute(context.Background(), params(t, tt.args))
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.IsError != tt.wantErr {
				t.Errorf("IsError = %v, want %v (%s)", out.IsError, tt.wantErr, out.Content)
			}
			data, _ := os.ReadFile(path)
			if string(data) != tt.wantContent {
				t.Errorf("file = %q, want %q", data, tt.wantContent)
			}
		})
	}
}

func TestLsTool(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("bb"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := NewLsTool()
	out, err := tool.Execute(context.Background(), params(t, map[string]interface{}{"cwd": dir}))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.IsError {
		t.Fatalf("unexpected error result: %s", out.Content)
	}

	var result struct {
		Entries []lsEntry `json:"entries"`
	}
	if err := json.Unmarshal([]byte(out.Content), &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(result.Entries))
	}
	// Directories first, then files sorted by name.
	if !result.Entries[0].IsDir || result.Entries[0].Name != "sub" {
		t.Errorf("first entry = %+v", result.Entries[0])
	}
	if result.Entries[1].Name != "a.txt" || result.Entries[2].Name != "b.txt" {
		t.Errorf("file order: %+v", result.Entries[1:])
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name    string
		cwd     string
		path    string
		wantErr bool
		check   func(string) bool
	}{
		{
			name: "absolute untouched",
			path: "/etc/hosts",
			check: func(got string) bool {
				return got == "/etc/hosts"
			},
		},
		{
			name: "relative joined to cwd",
			cwd:  "/work",
			path: "src/main.go",
			check: func(got string) bool {
				return got == "/work/src/main.go"
			},
		},
		{
			name:    "empty path rejected",
			path:    "  ",
			wantErr: true,
		},
		{
			name: "cleans dot segments",
			path: "/work/./src/../main.go",
			check: func(got string) bool {
				return got == "/work/main.go"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolvePath(tt.cwd, tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolvePath: %v", err)
			}
			if !tt.check(got) {
				t.Errorf("resolvePath = %q", got)
			}
		})
	}
}

func TestToolErrorPayload(t *testing.T) {
	out := toolError("boom")
	if !out.IsError {
		t.Fatal("toolError must mark the result as an error")
	}
	if !strings.Contains(out.Content, "boom") {
		t.Errorf("content = %q", out.Content)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(out.Content), &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["error"] != "boom" {
		t.Errorf("payload = %v", payload)
	}
}
