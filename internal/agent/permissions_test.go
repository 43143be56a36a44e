package agent

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func callWith(name string, args map[string]string) models.ToolCall {
	payload, _ := json.Marshal(args)
	return models.ToolCall{ID: "call-1", Name: name, Input: payload}
}

func TestNeedsConfirmationReadOnlyTools(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	for _, name := range []string{"read", "glob", "grep", "ls", "git_status", "git_diff", "git_log"} {
		if engine.NeedsConfirmation(callWith(name, nil)) {
			t.Errorf("read-only tool %s should not need confirmation", name)
		}
	}
}

func TestNeedsConfirmationBashPrefixes(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	tests := []struct {
		name    string
		command string
		want    bool
	}{
		{"exact safe prefix", "git status", false},
		{"safe prefix with args", "git status --short", false},
		{"safe single word", "ls -la", false},
		{"token boundary not substring", "git statusx", true},
		{"lsblk is not ls", "lsblk", true},
		{"go test with path", "go test ./...", false},
		{"destructive command", "rm -rf /tmp/x", true},
		{"empty command", "", true},
		{"whitespace only", "   ", true},
		{"npm run build", "npm run build", false},
		{"npm install", "npm install leftpad", true},
		{"tab boundary", "git status\t--short", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.NeedsConfirmation(callWith("bash", map[string]string{"command": tt.command}))
			if got != tt.want {
				t.Errorf("NeedsConfirmation(bash %q) = %v, want %v", tt.command, got, tt.want)
			}
		})
	}
}

func TestNeedsConfirmationBashGrants(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	call := callWith("bash", map[string]string{"command": "npm install left-pad"})
	if !engine.NeedsConfirmation(call) {
		t.Fatal("ungranted npm install should need confirmation")
	}

	// A bash grant is keyed on the command text itself.
	engine.Grant(models.SemanticPermission{Tool: "bash", Pattern: "npm install*"})

	if engine.NeedsConfirmation(call) {
		t.Error("granted npm install should not need confirmation")
	}
	if !engine.NeedsConfirmation(callWith("bash", map[string]string{"command": "rm -rf build"})) {
		t.Error("grant must not cover unrelated commands")
	}
}

func TestNeedsConfirmationUnknownToolsRunFree(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	for _, name := range []string{"fetch", "todo_write", "ask_user"} {
		if engine.NeedsConfirmation(callWith(name, nil)) {
			t.Errorf("tool %s is not gated and should not need confirmation", name)
		}
	}
}

func TestNeedsConfirmationSensitiveGrants(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	if !engine.NeedsConfirmation(callWith("write", map[string]string{"path": "src/main.go"})) {
		t.Fatal("write without a grant should need confirmation")
	}

	engine.Grant(models.SemanticPermission{Tool: "write", Pattern: "src/**"})

	tests := []struct {
		name string
		tool string
		path string
		want bool
	}{
		{"glob match", "write", "src/main.go", false},
		{"glob match nested", "write", "src/internal/util.go", false},
		{"outside pattern", "write", "docs/readme.md", true},
		{"other tool not covered", "edit", "src/main.go", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := engine.NeedsConfirmation(callWith(tt.tool, map[string]string{"path": tt.path}))
			if got != tt.want {
				t.Errorf("NeedsConfirmation(%s %s) = %v, want %v", tt.tool, tt.path, got, tt.want)
			}
		})
	}
}

func TestGrantPatternMatching(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"exact literal", "src/main.go", "src/main.go", true},
		{"literal dir prefix", "src", "src/main.go", true},
		{"literal dir prefix trailing slash", "src/", "src/main.go", true},
		{"literal no match", "src", "srcx/main.go", false},
		{"doublestar", "src/**", "src/a/b/c.go", true},
		{"single star stays in dir", "src/*.go", "src/main.go", true},
		{"empty pattern", "", "src/main.go", false},
		{"empty path", "src/**", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesGrantPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchesGrantPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

func TestGrantExpiryPruning(t *testing.T) {
	engine := NewPermissionEngine(testLogger())
	current := time.Now()
	engine.now = func() time.Time { return current }

	expiry := current.Add(time.Hour)
	engine.Grant(models.SemanticPermission{Tool: "write", Pattern: "src/**", ExpiresAt: &expiry})

	call := callWith("write", map[string]string{"path": "src/main.go"})
	if engine.NeedsConfirmation(call) {
		t.Fatal("unexpired grant should allow the call")
	}

	// Advance past expiry; the next check prunes lazily.
	current = current.Add(2 * time.Hour)
	if !engine.NeedsConfirmation(call) {
		t.Fatal("expired grant should no longer allow the call")
	}
	if got := len(engine.Grants()); got != 0 {
		t.Errorf("expired grant should be pruned, got %d grants", got)
	}
}

func TestAllowAlways(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	call := callWith("bash", map[string]string{"command": "rm -rf build"})
	if !engine.NeedsConfirmation(call) {
		t.Fatal("unsafe bash should need confirmation")
	}

	engine.AllowAlways("bash")
	if engine.NeedsConfirmation(call) {
		t.Fatal("always-allowed tool should not need confirmation")
	}
}

func TestHasAndRevokeAll(t *testing.T) {
	engine := NewPermissionEngine(testLogger())

	engine.AllowAlways("bash")
	engine.Grant(models.SemanticPermission{Tool: "write", Pattern: "src/**"})

	if !engine.Has("bash", "anything at all") {
		t.Error("always-allowed tool should report Has for any action")
	}
	if !engine.Has("write", "src/main.go") {
		t.Error("granted path should report Has")
	}
	if engine.Has("write", "docs/readme.md") {
		t.Error("ungranted path should not report Has")
	}

	engine.RevokeAll()

	if engine.Has("write", "src/main.go") {
		t.Error("grant survived RevokeAll")
	}
	if len(engine.Grants()) != 0 {
		t.Errorf("expected no grants after RevokeAll, got %d", len(engine.Grants()))
	}
	// The always-allow set is session-scoped and untouched by RevokeAll.
	if !engine.Has("bash", "make clean") {
		t.Error("always-allow should survive RevokeAll")
	}
}

func TestRestoreDropsExpiredGrants(t *testing.T) {
	engine := NewPermissionEngine(testLogger())
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	engine.Restore([]string{"bash"}, []models.SemanticPermission{
		{Tool: "write", Pattern: "src/**", ExpiresAt: &past},
		{Tool: "edit", Pattern: "docs/**", ExpiresAt: &future},
		{Tool: "write", Pattern: "cmd/**"},
	})

	grants := engine.Grants()
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants after restore, got %d", len(grants))
	}
	for _, g := range grants {
		if g.Pattern == "src/**" {
			t.Error("expired grant survived restore")
		}
	}
	if engine.NeedsConfirmation(callWith("bash", map[string]string{"command": "make clean"})) {
		t.Error("restored always-allow should cover bash")
	}
}
