// Package plan provides the plan-mode tools: reading and updating the
// session plan document, and exiting plan mode once the plan is approved.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/haasonsaas/loom/internal/agent"
)

// Manager holds the session's plan document. Safe for concurrent use.
type Manager struct {
	mu   sync.RWMutex
	text string
}

// NewManager creates a manager with an empty plan.
func NewManager() *Manager {
	return &Manager{}
}

// Text returns the current plan document.
func (m *Manager) Text() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.text
}

// SetText replaces the plan document.
func (m *Manager) SetText(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
}

// ReadTool returns the current plan document.
type ReadTool struct {
	manager *Manager
}

// NewReadTool creates a read_plan tool over the manager.
func NewReadTool(manager *Manager) *ReadTool {
	return &ReadTool{manager: manager}
}

// Name returns the tool name.
func (t *ReadTool) Name() string {
	return "read_plan"
}

// Description returns the tool description.
func (t *ReadTool) Description() string {
	return "Read the current plan document for this session."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ReadTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	})
}

// Execute returns the plan text, or a note that no plan exists yet.
func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	text := t.manager.Text()
	if strings.TrimSpace(text) == "" {
		return &agent.ToolOutput{Content: "No plan has been written yet."}, nil
	}
	return &agent.ToolOutput{Content: text}, nil
}

// UpdateTool replaces the plan document.
type UpdateTool struct {
	manager *Manager
}

// NewUpdateTool creates an update_plan tool over the manager.
func NewUpdateTool(manager *Manager) *UpdateTool {
	return &UpdateTool{manager: manager}
}

// Name returns the tool name.
func (t *UpdateTool) Name() string {
	return "update_plan"
}

// Description returns the tool description.
func (t *UpdateTool) Description() string {
	return "Replace the plan document with a revised version."
}

// Schema returns the JSON schema for the tool parameters.
func (t *UpdateTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"plan": map[string]interface{}{
				"type":        "string",
				"description": "The full revised plan text.",
			},
		},
		"required": []string{"plan"},
	})
}

// Execute stores the new plan text.
func (t *UpdateTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	var input struct {
		Plan string `json:"plan"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return toolError(fmt.Sprintf("Invalid parameters: %v", err)), nil
	}
	if strings.TrimSpace(input.Plan) == "" {
		return toolError("plan is required"), nil
	}
	t.manager.SetText(input.Plan)
	return &agent.ToolOutput{Content: "Plan updated."}, nil
}

// ExitTool leaves plan mode via the callback supplied at construction.
type ExitTool struct {
	exit func()
}

// NewExitTool creates an exit_plan_mode tool. The exit callback flips the
// session out of plan mode.
func NewExitTool(exit func()) *ExitTool {
	return &ExitTool{exit: exit}
}

// Name returns the tool name.
func (t *ExitTool) Name() string {
	return "exit_plan_mode"
}

// Description returns the tool description.
func (t *ExitTool) Description() string {
	return "Exit plan mode and resume normal tool use. Call this once the user approves the plan."
}

// Schema returns the JSON schema for the tool parameters.
func (t *ExitTool) Schema() json.RawMessage {
	return mustSchema(map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	})
}

// Execute flips plan mode off.
func (t *ExitTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolOutput, error) {
	if t.exit != nil {
		t.exit()
	}
	return &agent.ToolOutput{Content: "Plan mode exited. Editing tools and command execution are available again."}, nil
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
