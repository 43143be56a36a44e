package search

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/haasonsaas/loom/internal/agent"
)

const (
	// maxGrepMatches caps the number of matching lines returned.
	maxGrepMatches = 200
	// maxGrepLineLen skips binary-looking or pathological lines.
	maxGrepLineLen = 2000
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct{}

// NewGrepTool creates a grep tool.
func NewGrepTool() *GrepTool {
	return &GrepTool{}
}

func (t *GrepTool) Name() string { return "grep" }

func (t *GrepTool) Description() string {
	return "Search file contents with a regular expression."
}

func (t *GrepTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"pattern": map[string]interface{}{
				"type":        "string",
				"description": "Regular expression to search for (Go regexp syntax).",
			},
			"path": map[string]interface{}{
				"type":        "string",
				"description": "File or directory to search. Defaults to the working directory.",
			},
			"include": map[string]interface{}{
				"type":        "string",
				"description": "Filename glob to restrict the search, e.g. *.go.",
			},
			"case_insensitive": map[string]interface{}{
				"type":        "boolean",
				"description": "Match case-insensitively.",
			},
			"cwd": map[string]interface{}{
				"type":        "string",
				"description": "Working directory for relative paths.",
			},
		},
		"required": []string{"pattern"},
	})
}

type grepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (t *GrepTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Pattern         string `json:"pattern"`
		Path            string `json:"path"`
		Include         string `json:"include"`
		CaseInsensitive bool   `json:"case_insensitive"`
		Cwd             string `json:"cwd"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Pattern) == "" {
		return toolError("pattern is required"), nil
	}

	expr := input.Pattern
	if input.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return toolError(fmt.Sprintf("invalid pattern: %v", err)), nil
	}

	target := strings.TrimSpace(input.Path)
	base := strings.TrimSpace(input.Cwd)
	if base == "" {
		base = "."
	}
	if target == "" {
		target = base
	} else if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		return toolError(fmt.Sprintf("resolve path: %v", err)), nil
	}

	info, err := os.Stat(abs)
	if err != nil {
		return toolError(fmt.Sprintf("stat path: %v", err)), nil
	}

	matches := make([]grepMatch, 0)
	truncated := false

	scanFile := func(path, display string) error {
		file, err := os.Open(path)
		if err != nil {
			return nil
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if len(line) > maxGrepLineLen {
				continue
			}
			if re.MatchString(line) {
				if len(matches) >= maxGrepMatches {
					truncated = true
					return fs.SkipAll
				}
				matches = append(matches, grepMatch{Path: display, Line: lineNo, Text: line})
			}
		}
		return nil
	}

	if info.IsDir() {
		walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			name := d.Name()
			if d.IsDir() {
				if name == ".git" || name == "node_modules" {
					return filepath.SkipDir
				}
				return nil
			}
			if input.Include != "" {
				ok, matchErr := filepath.Match(input.Include, name)
				if matchErr != nil || !ok {
					return nil
				}
			}
			rel, relErr := filepath.Rel(abs, path)
			if relErr != nil {
				rel = path
			}
			return scanFile(path, rel)
		})
		if walkErr != nil && walkErr != fs.SkipAll {
			if ctx.Err() != nil {
				return toolError(fmt.Sprintf("search cancelled: %v", ctx.Err())), nil
			}
			return toolError(fmt.Sprintf("walk directory: %v", walkErr)), nil
		}
	} else {
		if err := scanFile(abs, abs); err != nil && err != fs.SkipAll {
			return toolError(fmt.Sprintf("scan file: %v", err)), nil
		}
	}

	result := map[string]interface{}{
		"pattern":   input.Pattern,
		"path":      abs,
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
