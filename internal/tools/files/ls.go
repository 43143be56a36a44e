package files

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/haasonsaas/loom/internal/agent"
)

// maxListEntries caps a single directory listing. Deep trees go through
// the glob tool instead.
const maxListEntries = 500

// LsTool lists directory entries.
type LsTool struct{}

// NewLsTool creates an ls tool.
func NewLsTool() *LsTool {
	return &LsTool{}
}

// Name returns the tool name.
func (t *LsTool) Name() string {
	return "ls"
}

// Description returns the tool description.
func (t *LsTool) Description() string {
	return "List the entries of a directory."
}

// Schema returns the JSON schema for the tool parameters.
func (t *LsTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to list (absolute, or relative to the working directory). Defaults to the working directory.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory for relative paths.",
			},
		},
	})
}

type lsEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size,omitempty"`
}

// Execute lists the directory, files sorted after a directory-first split.
func (t *LsTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Path string `json:"path"`
		Cwd  string `json:"cwd"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if input.Path == "" {
		input.Path = "."
	}

	resolved, err := resolvePath(input.Cwd, input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return toolError(fmt.Sprintf("read directory: %v", err)), nil
	}

	listed := make([]lsEntry, 0, len(entries))
	truncated := false
	for _, entry := range entries {
		if len(listed) >= maxListEntries {
			truncated = true
			break
		}
		item := lsEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if !entry.IsDir() {
			if info, infoErr := entry.Info(); infoErr == nil {
				item.Size = info.Size()
			}
		}
		listed = append(listed, item)
	}

	sort.Slice(listed, func(i, j int) bool {
		if listed[i].IsDir != listed[j].IsDir {
			return listed[i].IsDir
		}
		return listed[i].Name < listed[j].Name
	})

	result := map[string]interface{}{
		"path":      input.Path,
		"entries":   listed,
		"truncated": truncated,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}

	return &agent.ToolOutput{Content: string(payload)}, nil
}
