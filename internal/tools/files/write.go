package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/loom/internal/agent"
)

// WriteTool creates or overwrites files. It is a sensitive tool: the
// permission layer requires confirmation or a standing path grant before
// it runs.
type WriteTool struct{}

// NewWriteTool creates a write tool.
func NewWriteTool() *WriteTool {
	return &WriteTool{}
}

// Name returns the tool name.
func (t *WriteTool) Name() string {
	return "write"
}

// Description returns the tool description.
func (t *WriteTool) Description() string {
	return "Write content to a file, creating it (and parent directories) if needed."
}

// Schema returns the JSON schema for the tool parameters.
func (t *WriteTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file (absolute, or relative to the working directory).",
			},
			"content": map[string]interface{}{
				"type":        "string",
				"description": "Full content to write.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory for relative paths.",
			},
		},
		"required": []string{"path", "content"},
	})
}

// Execute writes the file, creating parent directories as needed.
func (t *WriteTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Cwd     string `json:"cwd"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}

	resolved, err := resolvePath(input.Cwd, input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	existed := false
	if _, statErr := os.Stat(resolved); statErr == nil {
		existed = true
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return toolError(fmt.Sprintf("create parent directories: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(input.Content), 0o644); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	result := map[string]interface{}{
		"path":    input.Path,
		"bytes":   len(input.Content),
		"created": !existed,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolOutput{Content: string(payload)}, nil
}
