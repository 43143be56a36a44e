// Package providers contains LLMProvider implementations backed by the
// Anthropic and OpenAI APIs.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/loom/internal/agent"
	"github.com/haasonsaas/loom/pkg/models"
)

// OpenAIProvider implements the agent.LLMProvider interface for OpenAI's GPT
// models. It provides streaming completions, tool calling, vision support,
// and automatic retry logic.
//
// OpenAI specifics handled here:
//   - System messages are part of the messages array (not a separate field)
//   - Tool calls stream incrementally and must be accumulated by index
//   - Tool results are separate "tool" role messages, one per call
//   - Image tool results ride along as a follow-up user message, since the
//     tool role only carries text
//
// Thread Safety:
// OpenAIProvider is safe for concurrent use. Each Complete() call creates an
// independent stream and goroutine.
type OpenAIProvider struct {
	client *openai.Client
	apiKey string

	// maxRetries applies to retryable errors: rate limits (429) and
	// server errors (5xx). Default: 3
	maxRetries int

	// retryDelay is the base delay between attempts; actual delay is
	// retryDelay * attempt (linear backoff). Default: 1s
	retryDelay time.Duration
}

// NewOpenAIProvider creates a new OpenAI provider instance.
//
// An empty API key is allowed for delayed configuration; Complete() returns
// an error until a key is set.
func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	p := &OpenAIProvider{
		apiKey:     apiKey,
		maxRetries: 3,
		retryDelay: time.Second,
	}
	if apiKey != "" {
		p.client = openai.NewClient(apiKey)
	}
	return p
}

// Name returns the provider identifier used for routing and logging.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Models returns the list of available GPT models with their capabilities.
//
// OpenAI frequently updates models and deprecates old ones; this list may
// lag the latest availability.
func (p *OpenAIProvider) Models() []agent.Model {
	return []agent.Model{
		{
			ID:             "gpt-4o",
			Name:           "GPT-4o",
			ContextSize:    128000,
			SupportsVision: true,
		},
		{
			ID:             "gpt-4-turbo",
			Name:           "GPT-4 Turbo",
			ContextSize:    128000,
			SupportsVision: true,
		},
		{
			ID:             "gpt-4o-mini",
			Name:           "GPT-4o mini",
			ContextSize:    128000,
			SupportsVision: true,
		},
	}
}

// SupportsTools indicates whether this provider supports tool calling.
// Always true for OpenAI.
func (p *OpenAIProvider) SupportsTools() bool {
	return true
}

// Complete sends a completion request to GPT and returns a streaming
// response channel. The returned error covers only immediate failures;
// streaming errors arrive via chunk.Error.
func (p *OpenAIProvider) Complete(ctx context.Context, req *agent.CompletionRequest) (<-chan *agent.CompletionChunk, error) {
	if p.client == nil {
		return nil, errors.New("OpenAI API key not configured")
	}

	messages, err := p.convertMessages(req.Messages, req.System)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages: %w", err)
	}

	chatReq := openai.ChatCompletionRequest{
		Model:         req.Model,
		Messages:      messages,
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	if chatReq.Model == "" {
		chatReq.Model = "gpt-4o"
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = p.convertTools(req.Tools)
	}

	var stream *openai.ChatCompletionStream
	var lastErr error

	for attempt := 0; attempt < p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay * time.Duration(attempt)):
			}
		}

		stream, lastErr = p.client.CreateChatCompletionStream(ctx, chatReq)
		if lastErr == nil {
			break
		}
		if !isRetryableError(lastErr) {
			return nil, fmt.Errorf("non-retryable error: %w", lastErr)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
	}

	chunks := make(chan *agent.CompletionChunk)
	go p.processStream(ctx, stream, chunks)

	return chunks, nil
}

// processStream consumes the OpenAI stream and converts it to internal
// chunks.
//
// Tool calls arrive incrementally: the first chunk for an index carries the
// ID and function name, later chunks carry argument fragments, and
// FinishReason "tool_calls" signals completion. Multiple calls can be in
// progress at once, tracked by index.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, chunks chan<- *agent.CompletionChunk) {
	defer close(chunks)
	defer stream.Close()

	toolCalls := make(map[int]*models.ToolCall)
	toolOrder := make([]int, 0)

	emitToolCalls := func() {
		for _, idx := range toolOrder {
			tc := toolCalls[idx]
			if tc != nil && tc.ID != "" && tc.Name != "" {
				chunks <- &agent.CompletionChunk{ToolCall: tc}
			}
		}
		toolCalls = make(map[int]*models.ToolCall)
		toolOrder = toolOrder[:0]
	}

	for {
		select {
		case <-ctx.Done():
			chunks <- &agent.CompletionChunk{Error: ctx.Err(), Done: true}
			return
		default:
		}

		response, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				emitToolCalls()
				done := &agent.CompletionChunk{Done: true}
				chunks <- done
				return
			}
			chunks <- &agent.CompletionChunk{Error: err, Done: true}
			return
		}

		if response.Usage != nil {
			chunks <- &agent.CompletionChunk{
				Done:         true,
				InputTokens:  response.Usage.PromptTokens,
				OutputTokens: response.Usage.CompletionTokens,
			}
			continue
		}

		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta

		if delta.Content != "" {
			chunks <- &agent.CompletionChunk{Text: delta.Content}
		}

		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			if toolCalls[index] == nil {
				toolCalls[index] = &models.ToolCall{}
				toolOrder = append(toolOrder, index)
			}
			if tc.ID != "" {
				toolCalls[index].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[index].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				// Argument JSON streams in fragments; append as they come.
				toolCalls[index].Input = json.RawMessage(
					string(toolCalls[index].Input) + tc.Function.Arguments,
				)
			}
		}

		if response.Choices[0].FinishReason == "tool_calls" {
			emitToolCalls()
		}
	}
}

// convertMessages converts internal messages to OpenAI API format. The
// system prompt is injected as the first message.
func (p *OpenAIProvider) convertMessages(messages []agent.CompletionMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)

	if system != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case "assistant":
			oaiMsg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Content,
			}
			if len(msg.ToolCalls) > 0 {
				oaiMsg.ToolCalls = make([]openai.ToolCall, len(msg.ToolCalls))
				for i, tc := range msg.ToolCalls {
					oaiMsg.ToolCalls[i] = openai.ToolCall{
						ID:   tc.ID,
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      tc.Name,
							Arguments: string(tc.Input),
						},
					}
				}
			}
			result = append(result, oaiMsg)

		case "tool":
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    textOfParts(msg),
				ToolCallID: msg.ToolCallID,
			})
			// The tool role only carries text. An image result rides
			// along as a follow-up user message with the inline image.
			if img := imageOfParts(msg.Parts); img != nil {
				result = append(result, openai.ChatCompletionMessage{
					Role: openai.ChatMessageRoleUser,
					MultiContent: []openai.ChatMessagePart{
						{
							Type: openai.ChatMessagePartTypeText,
							Text: "Image produced by the preceding tool call:",
						},
						{
							Type: openai.ChatMessagePartTypeImageURL,
							ImageURL: &openai.ChatMessageImageURL{
								URL:    fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Base64),
								Detail: openai.ImageURLDetailAuto,
							},
						},
					},
				})
			}

		default:
			result = append(result, openai.ChatCompletionMessage{
				Role:    msg.Role,
				Content: msg.Content,
			})
		}
	}

	return result, nil
}

// convertTools converts internal tool definitions to OpenAI function format.
// A tool shipping invalid schema JSON degrades to an empty object schema so
// one bad tool can't break function calling for the rest.
func (p *OpenAIProvider) convertTools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, len(tools))

	for i, tool := range tools {
		var schemaMap map[string]any
		if err := json.Unmarshal(tool.Schema(), &schemaMap); err != nil {
			schemaMap = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  schemaMap,
			},
		}
	}

	return result
}

func textOfParts(msg agent.CompletionMessage) string {
	if len(msg.Parts) == 0 {
		return msg.Content
	}
	var b strings.Builder
	for _, part := range msg.Parts {
		if part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return msg.Content
	}
	return b.String()
}

func imageOfParts(parts []models.ContentPart) *models.ImageData {
	for _, part := range parts {
		if part.Type == "image" && part.Image != nil {
			return part.Image
		}
	}
	return nil
}

// isRetryableError classifies transient failures: rate limits, 5xx server
// errors, and timeouts.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()

	if strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") {
		return true
	}
	if strings.Contains(msg, "500") || strings.Contains(msg, "502") ||
		strings.Contains(msg, "503") || strings.Contains(msg, "504") {
		return true
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return true
	}
	return false
}
