package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// ContentLabel classifies what kind of content an assistant message carries.
type ContentLabel string

const (
	LabelCode        ContentLabel = "code"
	LabelCommand     ContentLabel = "command"
	LabelExplanation ContentLabel = "explanation"
	LabelQuestion    ContentLabel = "question"
	LabelPlan        ContentLabel = "plan"
)

// Message is a single entry in a conversation transcript.
//
// Assistant messages may carry ToolCalls; each call must be answered by a
// later tool message whose ToolCallID matches. Tool messages carry either
// plain Content or multimodal Parts (when a tool returned an image).
type Message struct {
	ID         string         `json:"id"`
	SessionID  string         `json:"session_id,omitempty"`
	Role       Role           `json:"role"`
	Content    string         `json:"content"`
	Parts      []ContentPart  `json:"parts,omitempty"`
	ToolCalls  []ToolCall     `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	IsError    bool           `json:"is_error,omitempty"`
	Label      ContentLabel   `json:"label,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ContentPart is one block of a multimodal message.
type ContentPart struct {
	Type  string     `json:"type"` // "text" or "image"
	Text  string     `json:"text,omitempty"`
	Image *ImageData `json:"image,omitempty"`
}

// ImageData holds inline image content produced by a tool.
type ImageData struct {
	MediaType string `json:"media_type"` // e.g. "image/png"
	Base64    string `json:"base64"`
}

// ToolCall represents an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// Argument decodes a single named argument from the call input.
// Returns the zero value and false when absent or malformed.
func (tc ToolCall) Argument(name string) (string, bool) {
	var args map[string]any
	if err := json.Unmarshal(tc.Input, &args); err != nil {
		return "", false
	}
	v, ok := args[name].(string)
	return v, ok
}

// ToolResult represents the output of a tool execution.
type ToolResult struct {
	ToolCallID string     `json:"tool_call_id"`
	Content    string     `json:"content"`
	IsError    bool       `json:"is_error,omitempty"`
	Image      *ImageData `json:"image,omitempty"`
}

// Usage accumulates token consumption across a session.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add folds another usage sample into the total.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns combined input and output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}
