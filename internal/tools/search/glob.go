// Package search provides the glob and grep tools.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/haasonsaas/loom/internal/agent"
)

// maxGlobMatches caps a single glob result set.
const maxGlobMatches = 500

// GlobTool matches files against a glob pattern, with ** support.
type GlobTool struct{}

// NewGlobTool creates a glob tool.
func NewGlobTool() *GlobTool {
	return &GlobTool{}
}

func (t *GlobTool) Name() string { return "glob" }

func (t *GlobTool) Description() string {
	return "Find files matching a glob pattern (supports ** for recursive matching)."
}

func (t *GlobTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Glob pattern, e.g. **/*.go or src/**/test_*.py.",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "Directory to search in. Defaults to the working directory.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory for relative paths.",
			},
		},
		"required": []string{"pattern"},
	})
}

func (t *GlobTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
		Cwd     string `json:"cwd"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	pattern := strings.TrimSpace(input.Pattern)
	if pattern == "" {
		return toolError("pattern is required"), nil
	}
	if !doublestar.ValidatePattern(pattern) {
		return toolError(fmt.Sprintf("invalid glob pattern: %s", pattern)), nil
	}

	root, err := resolveDir(input.Cwd, input.Path)
	if err != nil {
		return toolError(err.Error()), nil
	}

	matches := make([]string, 0)
	truncated := false
	walkErr := doublestar.GlobWalk(os.DirFS(root), pattern, func(path string, d fs.DirEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if len(matches) >= maxGlobMatches {
			truncated = true
			return fs.SkipAll
		}
		matches = append(matches, path)
		return nil
	})
	if walkErr != nil && walkErr != fs.SkipAll {
		if ctx.Err() != nil {
			return toolError(fmt.Sprintf("search cancelled: %v", ctx.Err())), nil
		}
		return toolError(fmt.Sprintf("glob walk: %v", walkErr)), nil
	}

	sort.Strings(matches)

	result := map[string]interface{}{
		"pattern":   pattern,
		"root":      root,
		"matches":   matches,
		"count":     len(matches),
		"truncated": truncated,
	}
	payload, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return toolError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &agent.ToolOutput{Content: string(payload)}, nil
}

// resolveDir resolves the search root from the optional path and the
// injected working directory.
func resolveDir(cwd, path string) (string, error) {
	dir := strings.TrimSpace(path)
	base := strings.TrimSpace(cwd)
	if base == "" {
		base = "."
	}
	if dir == "" {
		dir = base
	} else if !filepath.IsAbs(dir) {
		dir = filepath.Join(base, dir)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

func toolError(message string) *agent.ToolOutput {
	payload, _ := json.Marshal(map[string]string{"error": message})
	return &agent.ToolOutput{Content: string(payload), IsError: true}
}

func mustSchema(schema map[string]interface{}) json.RawMessage {
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}
