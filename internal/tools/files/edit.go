package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/loom/internal/agent"
)

// EditTool performs exact string replacement in an existing file. Like
// write, it is a sensitive tool and goes through the permission layer.
type EditTool struct{}

// NewEditTool creates an edit tool.
func NewEditTool() *EditTool {
	return &EditTool{}
}

// Name returns the tool name.
func (t *EditTool) Name() string {
	return "edit"
}

// Description returns the tool description.
func (t *EditTool) Description() string {
	return "Replace an exact string in a file. The old string must match exactly once unless replace_all is set."
}

// Schema returns the JSON schema for the tool parameters.
func (t *EditTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Path to the file (absolute, or relative to the working directory).",
			},
			"old_string": map[string]interface{}{
				"type":        "string",
				"description": "Exact text to replace.",
			},
			"new_string": map[string]interface{}{
				"type":        "string",
				"description": "Replacement text.",
			},
			"replace_all": map[string]interface{}{
				"type":        "boolean",
				"description": "Replace every occurrence instead of requiring a unique match.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory for relative paths.",
			},
		},
		"required": []string{"path", "old_string", "new_string"},
	})
}

// Execute applies the replacement.
func (t *EditTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Path       string `json:"path"`
		OldString  string `json:"old_string"`
		NewString  string `json:"new_string"`
		ReplaceAll bool   `json:"replace_all"`
		Cwd        string `json:"cwd"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if input.OldString == "" {
		return toolError("old_string must not be empty"), nil
	}
	if input.OldString == input.NewString {
		return toolError("old_string and new_string are identical"), nil
	}

	resolved, err := resolvePath(input.Cwd, input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read file: %v", err)), nil
	}
	content := string(data)

	count := strings.Count(content, input.OldString)
	if count == 0 {
		return toolError("old_string not found in file"), nil
	}
	if count > 1 && !input.ReplaceAll {
		return toolError(fmt.Sprintf("old_string matches %d times; provide more context or set replace_all", count)), nil
	}

	var updated string
	replaced := count
	if input.ReplaceAll {
		updated = strings.ReplaceAll(content, input.OldString, input.NewString)
	} else {
		updated = strings.Replace(content, input.OldString, input.NewString, 1)
		replaced = 1
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("stat file: %v", err)), nil
	}
	if err := os.WriteFile(resolved, []byte(updated), info.Mode().Perm()); err != nil {
		return toolError(fmt.Sprintf("write file: %v", err)), nil
	}

	result := map[string]interface{}{
		"path":     input.Path,
		"replaced": replaced,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolOutput{Content: string(payload)}, nil
}
