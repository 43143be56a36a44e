// Package projectctx inspects a working directory and describes the project
// it contains, so the system prompt can tell the model what it is editing.
package projectctx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Info describes a detected project.
type Info struct {
	Language string `json:"language,omitempty"`
	Name     string `json:"name,omitempty"`
	HasGit   bool   `json:"has_git,omitempty"`
}

// Detect inspects dir for well-known project markers. An unrecognized or
// unreadable directory yields an empty Info, never an error; missing project
// context should not block a conversation.
func Detect(dir string) Info {
	var info Info
	if dir == "" {
		return info
	}

	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		info.HasGit = true
	}

	if data, err := os.ReadFile(filepath.Join(dir, "go.mod")); err == nil {
		info.Language = "Go"
		info.Name = goModuleName(string(data))
		return info
	}

	if data, err := os.ReadFile(filepath.Join(dir, "package.json")); err == nil {
		info.Language = "JavaScript/TypeScript"
		var pkg struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(data, &pkg) == nil {
			info.Name = pkg.Name
		}
		return info
	}

	if data, err := os.ReadFile(filepath.Join(dir, "Cargo.toml")); err == nil {
		info.Language = "Rust"
		info.Name = tomlName(string(data))
		return info
	}

	if _, err := os.Stat(filepath.Join(dir, "pyproject.toml")); err == nil {
		info.Language = "Python"
		return info
	}
	if _, err := os.Stat(filepath.Join(dir, "requirements.txt")); err == nil {
		info.Language = "Python"
		return info
	}

	return info
}

// Describe renders the info as a single prompt-ready line, or "" when
// nothing was detected.
func (i Info) Describe() string {
	if i.Language == "" && !i.HasGit {
		return ""
	}
	parts := make([]string, 0, 3)
	if i.Language != "" {
		parts = append(parts, i.Language+" project")
	}
	if i.Name != "" {
		parts = append(parts, fmt.Sprintf("(%s)", i.Name))
	}
	if i.HasGit {
		parts = append(parts, "under git version control")
	}
	return strings.Join(parts, " ")
}

func goModuleName(gomod string) string {
	for _, line := range strings.Split(gomod, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "module ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "module "))
		}
	}
	return ""
}

func tomlName(cargo string) string {
	for _, line := range strings.Split(cargo, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "name") {
			if _, value, found := strings.Cut(line, "="); found {
				return strings.Trim(strings.TrimSpace(value), `"`)
			}
		}
	}
	return ""
}
