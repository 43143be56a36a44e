package agent

import (
	"context"
	"encoding/json"

	"github.com/haasonsaas/loom/pkg/models"
)

// LLMProvider defines the interface for Large Language Model backends.
//
// Implementations handle the specifics of communicating with different LLM
// APIs (Anthropic, OpenAI, etc.) while presenting a unified streaming
// interface to the orchestration loop.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Multiple goroutines may
// call Complete() simultaneously for different requests.
//
// See Also:
//   - providers.AnthropicProvider for Anthropic Claude implementation
//   - providers.OpenAIProvider for OpenAI GPT implementation
type LLMProvider interface {
	// Complete sends a prompt and returns a streaming response.
	Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error)

	// Name returns the provider name.
	Name() string

	// Models returns available models.
	Models() []Model

	// SupportsTools returns whether the provider supports tool use.
	SupportsTools() bool
}

// CompletionRequest contains all parameters for an LLM completion request.
type CompletionRequest struct {
	// Model specifies which LLM model to use (e.g., "claude-sonnet-4-20250514", "gpt-4o").
	// If empty, the provider's default model is used.
	Model string `json:"model"`

	// System is the system prompt that sets the assistant's behavior.
	// This is handled separately from messages in most LLM APIs.
	System string `json:"system,omitempty"`

	// Messages contains the conversation history in chronological order.
	// Must include at least one message (typically the user's query).
	Messages []CompletionMessage `json:"messages"`

	// Tools defines available tools the LLM can request to execute.
	// If empty, no tool calling is available.
	Tools []Tool `json:"tools,omitempty"`

	// MaxTokens limits the maximum length of the generated response.
	// If 0 or negative, the provider's default is used (typically 4096).
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls sampling randomness. Zero means provider default.
	Temperature float32 `json:"temperature,omitempty"`
}

// CompletionMessage represents a single message in a conversation as sent to
// a provider. Role values: "system", "user", "assistant", "tool".
type CompletionMessage struct {
	// Role indicates who sent the message.
	Role string `json:"role"`

	// Content is the text content of the message (may be empty for tool-only messages).
	Content string `json:"content,omitempty"`

	// Parts carries multimodal content (text plus images) when present.
	// When non-empty it takes precedence over Content.
	Parts []models.ContentPart `json:"parts,omitempty"`

	// ToolCalls contains any tool execution requests from the assistant.
	ToolCalls []models.ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the assistant call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// IsError marks a tool message as carrying a failure result.
	IsError bool `json:"is_error,omitempty"`
}

// CompletionChunk represents a single chunk in a streaming LLM response.
//
// Chunks are delivered through channels as the LLM generates its response.
// Each chunk may contain partial text, a complete tool call, a done signal,
// or an error.
type CompletionChunk struct {
	// Text contains partial response text (streamed incrementally).
	Text string `json:"text,omitempty"`

	// ToolCall contains a complete tool execution request.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`

	// Done is true when the stream has completed successfully.
	Done bool `json:"done,omitempty"`

	// Error contains any error that occurred (streaming is terminated).
	Error error `json:"-"`

	// InputTokens contains the number of input tokens consumed by this request.
	// Only populated in the final chunk (when Done is true).
	InputTokens int `json:"input_tokens,omitempty"`

	// OutputTokens contains the number of output tokens generated.
	// Only populated in the final chunk (when Done is true).
	OutputTokens int `json:"output_tokens,omitempty"`
}

// Model describes an available LLM model and its capabilities.
type Model struct {
	// ID is the API identifier for the model (e.g., "claude-sonnet-4-20250514").
	ID string `json:"id"`

	// Name is the human-readable model name.
	Name string `json:"name"`

	// ContextSize is the maximum token context window.
	ContextSize int `json:"context_size"`

	// SupportsVision indicates if the model can process images.
	SupportsVision bool `json:"supports_vision"`
}

// Tool defines the interface for executable agent tools.
//
// Implementing a Tool:
//
//	type Calculator struct{}
//
//	func (c *Calculator) Name() string { return "calculator" }
//
//	func (c *Calculator) Description() string {
//	    return "Performs mathematical calculations"
//	}
//
//	func (c *Calculator) Schema() json.RawMessage {
//	    return json.RawMessage(`{
//	        "type": "object",
//	        "properties": {
//	            "expression": {"type": "string", "description": "Math expression"}
//	        },
//	        "required": ["expression"]
//	    }`)
//	}
//
//	func (c *Calculator) Execute(ctx context.Context, params json.RawMessage) (*ToolOutput, error) {
//	    var input struct{ Expression string `json:"expression"` }
//	    json.Unmarshal(params, &input)
//	    return &ToolOutput{Content: evaluate(input.Expression)}, nil
//	}
type Tool interface {
	// Name returns the tool name for LLM function calling.
	// Must be a valid function name (alphanumeric, underscores).
	Name() string

	// Description returns a natural language description of what the tool does.
	// This helps the LLM decide when to use the tool.
	Description() string

	// Schema returns the JSON Schema defining the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool with the given JSON parameters.
	// The params match the schema returned by Schema().
	Execute(ctx context.Context, params json.RawMessage) (*ToolOutput, error)
}

// ToolPreviewer is implemented by tools that can render a best-effort
// preview of what a call would do (a diff, the command line, the target
// path). Previews feed the confirmation prompt; a preview failure is
// swallowed and confirmation proceeds without one.
type ToolPreviewer interface {
	Preview(ctx context.Context, params json.RawMessage) (string, error)
}

// ToolOutput contains the output from a tool execution.
//
// Errors are also communicated via ToolOutput with IsError=true, allowing
// the LLM to handle failures gracefully.
type ToolOutput struct {
	// Content is the tool's output (text, JSON, etc.).
	Content string `json:"content"`

	// IsError indicates this result represents an error condition.
	IsError bool `json:"is_error,omitempty"`

	// Image contains inline image data produced by the tool, if any.
	// Image results become multimodal tool messages in the transcript.
	Image *models.ImageData `json:"image,omitempty"`
}

// ConfirmOutcome is the user's answer to a tool confirmation prompt.
type ConfirmOutcome int

const (
	// ConfirmApprove allows this single call.
	ConfirmApprove ConfirmOutcome = iota

	// ConfirmApproveAlways allows this call and future calls. For sensitive
	// tools the approval is scoped by Pattern; otherwise the tool name joins
	// the always-allow set.
	ConfirmApproveAlways

	// ConfirmDeny rejects the call and aborts the turn.
	ConfirmDeny
)

// ConfirmDecision carries the outcome of a confirmation prompt plus the
// optional pattern scoping an always-approval of a sensitive tool.
type ConfirmDecision struct {
	Outcome ConfirmOutcome
	Pattern string
}

// EventHandler receives loop progress as it happens. Any method may be left
// nil-equivalent by embedding NoopHandler.
type EventHandler interface {
	// OnText receives streamed assistant text as it arrives.
	OnText(text string)

	// OnToolStart fires when a tool call begins executing.
	OnToolStart(call models.ToolCall)

	// OnToolEnd fires when a tool call finishes.
	OnToolEnd(call models.ToolCall, result models.ToolResult)

	// OnClassified receives labeled spans of streamed assistant text as the
	// classifier resolves them. Handlers that only need raw text can ignore
	// it; OnText always fires first with the same content.
	OnClassified(label models.ContentLabel, text string)

	// Confirm asks the user to approve a tool call. Called serially, in
	// proposal order, only for calls the permission engine flags. The
	// preview is best-effort and may be empty.
	Confirm(ctx context.Context, call models.ToolCall, preview string) ConfirmDecision

	// OnCompression fires before and after history compression with the
	// message counts involved.
	OnCompression(before, after int, done bool)
}

// NoopHandler is an EventHandler that ignores all events. Embed it to
// implement only the methods you care about.
type NoopHandler struct{}

func (NoopHandler) OnText(string)                                {}
func (NoopHandler) OnToolStart(models.ToolCall)                  {}
func (NoopHandler) OnToolEnd(models.ToolCall, models.ToolResult) {}
func (NoopHandler) OnClassified(models.ContentLabel, string)     {}
func (NoopHandler) OnCompression(int, int, bool)                 {}

// Confirm approves. With no prompt surface configured there is nobody to
// ask, and non-interactive embeddings must keep functioning; interactive
// frontends install their own handler.
func (NoopHandler) Confirm(context.Context, models.ToolCall, string) ConfirmDecision {
	return ConfirmDecision{Outcome: ConfirmApprove}
}
