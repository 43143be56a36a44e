package agent

import (
	"log/slog"
	"time"

	"github.com/haasonsaas/loom/internal/compression"
	"github.com/haasonsaas/loom/internal/observability"
)

// Options configures loop and tool execution behavior.
type Options struct {
	// Model selects the provider model. Empty uses the provider default.
	Model string

	// SystemPrompt is the base instruction text. The project context line
	// and plan-mode addendum are composed onto it per request.
	SystemPrompt string

	// MaxIterations limits tool-use rounds per Chat call.
	MaxIterations int

	// MaxTokens caps each completion.
	MaxTokens int

	// ToolParallelism caps concurrent tool execution.
	ToolParallelism int

	// ToolTimeout applies to each tool call.
	ToolTimeout time.Duration

	// WorkingDir is the conversation working directory, injected into
	// path-sensitive tool calls and used for project detection.
	WorkingDir string

	// Compression sets history compression thresholds.
	Compression compression.Config

	// AdvancedModel marks the session as running a higher-capability model.
	// The flag rides through snapshots so a resumed session keeps its tier.
	AdvancedModel bool

	// Handler receives streamed text, tool lifecycle events, and
	// confirmation prompts. Nil means NoopHandler, whose Confirm approves:
	// with no prompt surface there is nobody to ask, and non-interactive
	// embeddings must keep working.
	Handler EventHandler

	// Metrics receives execution metrics when set.
	Metrics *observability.Metrics

	// Tracer emits spans around model completions and tool executions.
	// Nil means a no-op tracer.
	Tracer *observability.Tracer

	// Logger receives loop diagnostics.
	Logger *slog.Logger
}

// DefaultOptions returns the baseline options.
func DefaultOptions() Options {
	return Options{
		MaxIterations:   20,
		MaxTokens:       4096,
		ToolParallelism: 5,
		ToolTimeout:     60 * time.Second,
		Compression:     compression.DefaultConfig(),
		Logger:          slog.Default(),
	}
}

func normalizeOptions(opts Options) Options {
	defaults := DefaultOptions()
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaults.MaxIterations
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	if opts.ToolParallelism <= 0 {
		opts.ToolParallelism = defaults.ToolParallelism
	}
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = defaults.ToolTimeout
	}
	if opts.Handler == nil {
		opts.Handler = NoopHandler{}
	}
	if opts.Tracer == nil {
		opts.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}
