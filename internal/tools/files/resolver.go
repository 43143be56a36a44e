// Package files provides the filesystem tools: read, write, edit, and ls.
package files

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/haasonsaas/loom/internal/agent"
)

// resolvePath resolves a possibly-relative path against the conversation
// working directory injected into the call arguments.
func resolvePath(cwd, path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsAbs(clean) {
		return filepath.Clean(clean), nil
	}
	base := strings.TrimSpace(cwd)
	if base == "" {
		base = "."
	}
	abs, err := filepath.Abs(filepath.Join(base, clean))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	return abs, nil
}

func toolError(message string) *agent.ToolOutput {
	payload, err := json.Marshal(map[string]string{"error": message})
	if err != nil {
		return &agent.ToolOutput{Content: message, IsError: true}
	}
	return &agent.ToolOutput{Content: string(payload), IsError: true}
}

func mustSchema(schema map[string]interface{}) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
