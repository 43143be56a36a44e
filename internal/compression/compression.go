// Package compression shrinks long conversation histories so sessions can
// run indefinitely without exhausting the model's context window.
//
// The compressor keeps system messages and a recent window intact and
// replaces the older span with a single LLM-written summary message.
package compression

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/pkg/models"
)

// Summarizer produces a condensed account of a message span.
// The orchestration loop's provider normally backs this.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*models.Message, prompt string) (string, error)
}

// Config sets the thresholds and retention policy for compression.
type Config struct {
	// MaxMessages triggers compression when the history grows past it.
	MaxMessages int `yaml:"max_messages"`

	// MaxTokens triggers compression when the estimated token count
	// grows past it.
	MaxTokens int `yaml:"max_tokens"`

	// KeepRecent is the number of trailing messages preserved verbatim.
	KeepRecent int `yaml:"keep_recent"`

	// SummaryTargetTokens bounds the requested summary length.
	SummaryTargetTokens int `yaml:"summary_target_tokens"`
}

// DefaultConfig returns the default compression thresholds.
func DefaultConfig() Config {
	return Config{
		MaxMessages:         40,
		MaxTokens:           80000,
		KeepRecent:          12,
		SummaryTargetTokens: 2000,
	}
}

// Compressor decides when a history needs shrinking and performs it.
type Compressor struct {
	config     Config
	summarizer Summarizer
	logger     *slog.Logger
}

// New creates a compressor. A nil summarizer disables Compress (ShouldCompress
// still reports, so callers can surface the condition).
func New(config Config, summarizer Summarizer, logger *slog.Logger) *Compressor {
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultConfig().MaxMessages
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = DefaultConfig().MaxTokens
	}
	if config.KeepRecent <= 0 {
		config.KeepRecent = DefaultConfig().KeepRecent
	}
	if config.SummaryTargetTokens <= 0 {
		config.SummaryTargetTokens = DefaultConfig().SummaryTargetTokens
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Compressor{
		config:     config,
		summarizer: summarizer,
		logger:     logger.With("component", "compression"),
	}
}

// ShouldCompress reports whether the history has crossed a threshold.
func (c *Compressor) ShouldCompress(messages []*models.Message) bool {
	if len(messages) > c.config.MaxMessages {
		return true
	}
	return EstimateTokens(messages) > c.config.MaxTokens
}

// Compress replaces the older span of the history with a summary message,
// preserving system messages and the KeepRecent most recent messages.
// The input is not mutated.
func (c *Compressor) Compress(ctx context.Context, messages []*models.Message) ([]*models.Message, error) {
	if c.summarizer == nil {
		return nil, fmt.Errorf("no summarizer configured")
	}
	if len(messages) <= c.config.KeepRecent {
		return messages, nil
	}

	cut := len(messages) - c.config.KeepRecent
	// Never split a tool run: back the cut up so it lands after a
	// completed exchange, not between an assistant call and its results.
	for cut > 0 && messages[cut].Role == models.RoleTool {
		cut--
	}
	if cut <= 0 {
		return messages, nil
	}

	var system []*models.Message
	var older []*models.Message
	for _, msg := range messages[:cut] {
		if msg.Role == models.RoleSystem {
			system = append(system, msg)
			continue
		}
		older = append(older, msg)
	}
	if len(older) == 0 {
		return messages, nil
	}

	prompt := fmt.Sprintf(
		"Summarize the conversation so far in at most %d tokens. Preserve decisions made, files touched, commands run, and any unresolved tasks. Write in the third person.",
		c.config.SummaryTargetTokens,
	)
	summary, err := c.summarizer.Summarize(ctx, older, prompt)
	if err != nil {
		return nil, fmt.Errorf("summarize history: %w", err)
	}

	compressed := make([]*models.Message, 0, len(system)+1+c.config.KeepRecent)
	compressed = append(compressed, system...)
	compressed = append(compressed, &models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleSystem,
		Content:   "[Conversation summary]\n" + strings.TrimSpace(summary),
		CreatedAt: time.Now(),
	})
	compressed = append(compressed, messages[cut:]...)

	c.logger.Info("history compressed",
		"before", len(messages),
		"after", len(compressed),
	)
	return compressed, nil
}

// EstimateTokens approximates token usage at four characters per token,
// which is close enough for threshold checks.
func EstimateTokens(messages []*models.Message) int {
	chars := 0
	for _, msg := range messages {
		chars += len(msg.Content)
		for _, part := range msg.Parts {
			chars += len(part.Text)
		}
		for _, call := range msg.ToolCalls {
			chars += len(call.Name) + len(call.Input)
		}
	}
	return chars / 4
}
