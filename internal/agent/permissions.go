package agent

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/haasonsaas/loom/pkg/models"
)

// safeBashPrefixes lists command prefixes that never require confirmation.
// Matching is on a token boundary: "git status --short" matches "git status",
// "git statusx" does not.
var safeBashPrefixes = []string{
	"git status",
	"git diff",
	"git log",
	"ls",
	"pwd",
	"cat",
	"grep",
	"find",
	"echo",
	"which",
	"head",
	"tail",
	"wc",
	"npm test",
	"npm run",
	"go test",
	"go build",
	"go vet",
}

// sensitiveTools require either explicit confirmation or a semantic grant
// whose pattern matches the call's path argument.
var sensitiveTools = map[string]bool{
	"write": true,
	"edit":  true,
}

// readOnlyTools never require confirmation.
var readOnlyTools = map[string]bool{
	"read":       true,
	"glob":       true,
	"grep":       true,
	"ls":         true,
	"git_status": true,
	"git_diff":   true,
	"git_log":    true,
	"read_plan":  true,
	"todo_write": true,
	"ask_user":   true,
}

// PermissionEngine decides which tool calls may run without user
// confirmation. It holds the per-session always-allow set and the
// pattern-scoped grants for sensitive tools. Safe for concurrent use.
type PermissionEngine struct {
	mu          sync.RWMutex
	alwaysAllow map[string]bool
	grants      []models.SemanticPermission
	logger      *slog.Logger
	now         func() time.Time
}

// NewPermissionEngine creates an engine with empty state.
func NewPermissionEngine(logger *slog.Logger) *PermissionEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionEngine{
		alwaysAllow: make(map[string]bool),
		logger:      logger.With("component", "permissions"),
		now:         time.Now,
	}
}

// NeedsConfirmation reports whether the call must be confirmed by the user
// before executing. Expired grants encountered during the check are pruned.
func (p *PermissionEngine) NeedsConfirmation(call models.ToolCall) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.alwaysAllow[call.Name] {
		return false
	}
	if readOnlyTools[call.Name] {
		return false
	}

	if call.Name == "bash" {
		cmd, _ := call.Argument("command")
		if isSafeBashCommand(cmd) {
			return false
		}
		return !p.matchGrantLocked("bash", cmd)
	}

	if sensitiveTools[call.Name] {
		path, _ := call.Argument("path")
		return !p.matchGrantLocked(call.Name, path)
	}

	// Any other tool name runs without a prompt; gating is opt-in via the
	// sensitive set and the bash heuristics above.
	return false
}

// AllowAlways adds a tool to the always-allow set for the session.
func (p *PermissionEngine) AllowAlways(tool string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alwaysAllow[tool] = true
}

// Grant records a pattern-scoped approval for a sensitive tool. Missing IDs
// and timestamps are filled in.
func (p *PermissionEngine) Grant(perm models.SemanticPermission) {
	if perm.ID == "" {
		perm.ID = uuid.New().String()
	}
	if perm.GrantedAt.IsZero() {
		perm.GrantedAt = p.now()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.grants = append(p.grants, perm)
	p.logger.Info("semantic permission granted",
		"tool", perm.Tool,
		"pattern", perm.Pattern,
	)
}

// Has reports whether a standing permission covers the action: either the
// tool is always-allowed, or a non-expired grant matches (a path for
// write/edit, a command string for bash).
func (p *PermissionEngine) Has(tool, action string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.alwaysAllow[tool] {
		return true
	}
	return p.matchGrantLocked(tool, action)
}

// RevokeAll clears every semantic grant. The always-allow set is untouched;
// it resets only with the session.
func (p *PermissionEngine) RevokeAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.grants) > 0 {
		p.logger.Info("all semantic permissions revoked", "count", len(p.grants))
	}
	p.grants = p.grants[:0]
}

// Grants returns the unexpired grants, pruning expired ones.
func (p *PermissionEngine) Grants() []models.SemanticPermission {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pruneExpiredLocked()
	out := make([]models.SemanticPermission, len(p.grants))
	copy(out, p.grants)
	return out
}

// AlwaysAllowed returns the always-allow set as a sorted-stable slice
// (insertion order is not preserved; callers should not depend on order).
func (p *PermissionEngine) AlwaysAllowed() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.alwaysAllow))
	for name := range p.alwaysAllow {
		out = append(out, name)
	}
	return out
}

// Restore replaces the engine's state, used when resuming from a snapshot.
// Expired grants in the snapshot are dropped.
func (p *PermissionEngine) Restore(alwaysAllow []string, grants []models.SemanticPermission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alwaysAllow = make(map[string]bool, len(alwaysAllow))
	for _, name := range alwaysAllow {
		p.alwaysAllow[name] = true
	}
	p.grants = p.grants[:0]
	now := p.now()
	for _, g := range grants {
		if g.Expired(now) {
			continue
		}
		p.grants = append(p.grants, g)
	}
}

func (p *PermissionEngine) matchGrantLocked(tool, path string) bool {
	p.pruneExpiredLocked()
	for _, g := range p.grants {
		if g.Tool != tool {
			continue
		}
		if matchesGrantPattern(g.Pattern, path) {
			return true
		}
	}
	return false
}

func (p *PermissionEngine) pruneExpiredLocked() {
	now := p.now()
	kept := p.grants[:0]
	for _, g := range p.grants {
		if g.Expired(now) {
			p.logger.Debug("semantic permission expired",
				"tool", g.Tool,
				"pattern", g.Pattern,
			)
			continue
		}
		kept = append(kept, g)
	}
	p.grants = kept
}

// matchesGrantPattern matches a grant pattern against a path argument.
// Patterns are doublestar globs ("src/**"); a pattern with no glob
// metacharacters matches exactly or as a directory prefix.
func matchesGrantPattern(pattern, path string) bool {
	if pattern == "" || path == "" {
		return false
	}
	if ok, err := doublestar.Match(pattern, path); err == nil && ok {
		return true
	}
	if !strings.ContainsAny(pattern, "*?[{") {
		return path == pattern || strings.HasPrefix(path, strings.TrimSuffix(pattern, "/")+"/")
	}
	return false
}

// isSafeBashCommand reports whether the command starts with a safe prefix on
// a token boundary.
func isSafeBashCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if cmd == "" {
		return false
	}
	for _, prefix := range safeBashPrefixes {
		if cmd == prefix || strings.HasPrefix(cmd, prefix+" ") || strings.HasPrefix(cmd, prefix+"\t") {
			return true
		}
	}
	return false
}
