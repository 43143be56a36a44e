// Package agent implements the tool-augmented conversation loop: streaming
// completions, permission-gated tool execution, transcript repair, history
// compression, and session snapshots.
package agent

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/internal/classifier"
	"github.com/haasonsaas/loom/internal/compression"
	"github.com/haasonsaas/loom/internal/projectctx"
	"github.com/haasonsaas/loom/pkg/models"
)

// ToolCallRecord pairs one executed call with its result.
type ToolCallRecord struct {
	Call   models.ToolCall
	Result models.ToolResult
}

// TurnResult is the outcome of one Chat turn: the final assistant text,
// every tool call executed during the turn with its result, and the tokens
// the turn consumed.
type TurnResult struct {
	Content   string
	ToolCalls []ToolCallRecord
	Usage     models.Usage
}

// Agent drives a single conversation against an LLM provider and a tool
// registry. All exported methods are safe for concurrent use, though Chat
// calls on the same agent serialize on the session state.
type Agent struct {
	provider    LLMProvider
	registry    *ToolRegistry
	coordinator *Coordinator
	permissions *PermissionEngine
	compressor  *compression.Compressor
	stream      *classifier.Stream
	opts        Options
	logger      *slog.Logger

	// chatMu serializes turns; mu guards session state. Kept separate so
	// state accessors (plan mode, working dir) remain callable from tool
	// execution while a turn is in flight.
	chatMu sync.Mutex

	mu             sync.RWMutex
	sessionID      string
	sessionStarted time.Time
	history        []*models.Message
	usage          models.Usage
	planMode       bool
	advancedModel  bool
	workingDir     string
	projectContext string
}

// New creates an agent over the given provider and registry.
func New(provider LLMProvider, registry *ToolRegistry, opts Options) *Agent {
	opts = normalizeOptions(opts)
	logger := opts.Logger.With("component", "agent")

	a := &Agent{
		provider:       provider,
		registry:       registry,
		permissions:    NewPermissionEngine(opts.Logger),
		stream:         classifier.NewStream(),
		opts:           opts,
		logger:         logger,
		sessionID:      uuid.New().String(),
		sessionStarted: time.Now(),
		advancedModel:  opts.AdvancedModel,
		workingDir:     opts.WorkingDir,
	}

	a.projectContext = projectctx.Detect(a.workingDir).Describe()

	coordCfg := &CoordinatorConfig{
		MaxConcurrency: opts.ToolParallelism,
		DefaultTimeout: opts.ToolTimeout,
		Tracer:         opts.Tracer,
	}
	a.coordinator = NewCoordinator(registry, coordCfg, opts.Logger, opts.Metrics)
	a.coordinator.SetPlanMode(a.PlanMode)
	a.coordinator.SetWorkDir(a.WorkingDir)

	a.compressor = compression.New(opts.Compression, &providerSummarizer{
		provider: provider,
		model:    opts.Model,
	}, opts.Logger)

	return a
}

// Chat runs one user turn through the loop: stream a completion, confirm and
// execute any proposed tools, feed results back, and repeat until the model
// answers in plain text or the iteration cap is reached.
//
// Only two error kinds escape: context cancellation and ErrUserRejected
// (wrapped in a RejectionError). Every tool-level fault is folded into a
// failure result the model sees on the next round.
func (a *Agent) Chat(ctx context.Context, userText string) (*TurnResult, error) {
	if a.provider == nil {
		return nil, ErrNoProvider
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.chatMu.Lock()
	defer a.chatMu.Unlock()

	events := a.opts.Handler
	usageBefore := a.Usage()

	// An oversized transcript (a resumed session, a long previous turn)
	// shrinks before it is ever sent, not only after tool rounds.
	a.maybeCompress(ctx, events)

	a.mu.Lock()
	a.history = repairHistory(a.history, a.logger)
	a.history = append(a.history, &models.Message{
		ID:        uuid.New().String(),
		SessionID: a.sessionID,
		Role:      models.RoleUser,
		Content:   userText,
		CreatedAt: time.Now(),
	})
	a.mu.Unlock()

	turn := &TurnResult{}

	for iteration := 0; iteration < a.opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, toolCalls, err := a.streamCompletion(ctx, events)
		if err != nil {
			return nil, err
		}
		turn.Content = text

		assistant := &models.Message{
			ID:        uuid.New().String(),
			SessionID: a.sessionID,
			Role:      models.RoleAssistant,
			Content:   text,
			ToolCalls: toolCalls,
			CreatedAt: time.Now(),
		}
		if text != "" {
			assistant.Label = classifier.Classify(text)
		}
		a.mu.Lock()
		a.history = append(a.history, assistant)
		a.mu.Unlock()

		if len(toolCalls) == 0 {
			a.stream.SetCallPending(false)
			turn.Usage = usageDelta(usageBefore, a.Usage())
			return turn, nil
		}

		if err := a.confirmCalls(ctx, toolCalls, events); err != nil {
			return nil, err
		}

		results := a.coordinator.ExecuteAll(ctx, toolCalls, events)
		a.appendResults(results)
		for i := range toolCalls {
			turn.ToolCalls = append(turn.ToolCalls, ToolCallRecord{Call: toolCalls[i], Result: results[i]})
		}

		a.maybeCompress(ctx, events)
	}

	a.logger.Warn("iteration cap reached", "max_iterations", a.opts.MaxIterations)
	turn.Usage = usageDelta(usageBefore, a.Usage())
	return turn, nil
}

// streamCompletion runs one provider completion, forwarding text to the
// handler and collecting proposed tool calls. Cancellation is checked on
// every chunk.
func (a *Agent) streamCompletion(ctx context.Context, events EventHandler) (string, []models.ToolCall, error) {
	a.mu.RLock()
	req := &CompletionRequest{
		Model:     a.opts.Model,
		System:    buildSystemPrompt(a.opts.SystemPrompt, a.projectContext, a.planMode),
		Messages:  toCompletionMessages(a.history),
		Tools:     a.registry.AsLLMTools(),
		MaxTokens: a.opts.MaxTokens,
	}
	a.mu.RUnlock()

	start := time.Now()
	ctx, span := a.opts.Tracer.TraceLLMRequest(ctx, a.provider.Name(), a.opts.Model)
	defer span.End()

	chunks, err := a.provider.Complete(ctx, req)
	if err != nil {
		a.opts.Tracer.RecordError(span, err)
		a.countLLMRequest("error", time.Since(start))
		return "", nil, err
	}

	var text strings.Builder
	var toolCalls []models.ToolCall

	emitClassified := func(spans []classifier.Chunk) {
		for _, c := range spans {
			events.OnClassified(c.Label, c.Text)
		}
	}

	for {
		select {
		case <-ctx.Done():
			a.opts.Tracer.RecordError(span, ctx.Err())
			a.countLLMRequest("error", time.Since(start))
			return "", nil, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				emitClassified(a.stream.Flush())
				a.countLLMRequest("success", time.Since(start))
				return text.String(), toolCalls, nil
			}
			if chunk.Error != nil {
				a.opts.Tracer.RecordError(span, chunk.Error)
				a.countLLMRequest("error", time.Since(start))
				return "", nil, chunk.Error
			}
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
				events.OnText(chunk.Text)
				emitClassified(a.stream.Feed(chunk.Text))
			}
			if chunk.ToolCall != nil {
				toolCalls = append(toolCalls, *chunk.ToolCall)
				a.stream.SetCallPending(true)
			}
			if chunk.Done {
				a.recordUsage(chunk)
			}
		}
	}
}

// confirmCalls walks the proposed calls serially, in proposal order, asking
// the handler about each one the permission engine flags. Every flagged
// call is prompted even after a denial; a denied turn records one failure
// result for the first denied call and aborts without executing anything.
// The remaining unanswered calls are repaired at the start of the next turn.
func (a *Agent) confirmCalls(ctx context.Context, calls []models.ToolCall, events EventHandler) error {
	var denied *models.ToolCall
	for i := range calls {
		call := calls[i]
		if err := ctx.Err(); err != nil {
			return err
		}
		if !a.permissions.NeedsConfirmation(call) {
			continue
		}

		decision := events.Confirm(ctx, call, a.previewCall(ctx, call))
		a.countConfirmation(call.Name, decision.Outcome)

		switch decision.Outcome {
		case ConfirmApprove:
			// Single-shot approval, no state change.
		case ConfirmApproveAlways:
			if sensitiveTools[call.Name] && decision.Pattern != "" {
				a.permissions.Grant(models.SemanticPermission{
					Tool:    call.Name,
					Pattern: decision.Pattern,
				})
			} else {
				a.permissions.AllowAlways(call.Name)
			}
		case ConfirmDeny:
			a.logger.Info("tool call denied by user", "tool", call.Name, "tool_call_id", call.ID)
			if denied == nil {
				denied = &calls[i]
			}
		}
	}

	if denied != nil {
		a.appendResults([]models.ToolResult{{
			ToolCallID: denied.ID,
			Content:    "The user declined to run this tool.",
			IsError:    true,
		}})
		return &RejectionError{ToolName: denied.Name, ToolCallID: denied.ID}
	}
	return nil
}

// previewCall asks the tool for a best-effort preview of the pending call.
// Preview failures are swallowed; confirmation proceeds without one.
func (a *Agent) previewCall(ctx context.Context, call models.ToolCall) string {
	tool, ok := a.registry.Get(call.Name)
	if !ok {
		return ""
	}
	previewer, ok := tool.(ToolPreviewer)
	if !ok {
		return ""
	}
	preview, err := previewer.Preview(ctx, call.Input)
	if err != nil {
		a.logger.Debug("tool preview failed", "tool", call.Name, "error", err)
		return ""
	}
	return preview
}

// appendResults records tool results as tool messages, in the order given
// (proposal order, regardless of completion order). Image results become
// multimodal messages.
func (a *Agent) appendResults(results []models.ToolResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, res := range results {
		msg := &models.Message{
			ID:         uuid.New().String(),
			SessionID:  a.sessionID,
			Role:       models.RoleTool,
			ToolCallID: res.ToolCallID,
			Content:    res.Content,
			IsError:    res.IsError,
			CreatedAt:  time.Now(),
		}
		if res.Image != nil {
			msg.Parts = []models.ContentPart{
				{Type: "text", Text: res.Content},
				{Type: "image", Image: res.Image},
			}
		}
		a.history = append(a.history, msg)
	}
}

// maybeCompress runs the compression trigger after results are appended.
// Summarizer failures are logged and skipped, never surfaced.
func (a *Agent) maybeCompress(ctx context.Context, events EventHandler) {
	a.mu.RLock()
	history := a.history
	a.mu.RUnlock()

	if !a.compressor.ShouldCompress(history) {
		return
	}

	before := len(history)
	events.OnCompression(before, 0, false)

	compressed, err := a.compressor.Compress(ctx, history)
	if err != nil {
		a.logger.Warn("history compression failed", "error", err)
		if a.opts.Metrics != nil {
			a.opts.Metrics.CompressionCounter.WithLabelValues("error").Inc()
		}
		return
	}

	a.mu.Lock()
	a.history = compressed
	a.mu.Unlock()
	events.OnCompression(before, len(compressed), true)
	if a.opts.Metrics != nil {
		a.opts.Metrics.CompressionCounter.WithLabelValues("success").Inc()
	}
}

// Permissions exposes the permission engine for pre-seeding grants.
func (a *Agent) Permissions() *PermissionEngine {
	return a.permissions
}

// SessionID returns the session identity.
func (a *Agent) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// History returns a copy of the transcript.
func (a *Agent) History() []*models.Message {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*models.Message, len(a.history))
	copy(out, a.history)
	return out
}

// Usage returns cumulative token usage for the session.
func (a *Agent) Usage() models.Usage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.usage
}

// PlanMode reports whether plan mode is active.
func (a *Agent) PlanMode() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.planMode
}

// SetPlanMode toggles plan mode, restricting tools to the read-only set.
func (a *Agent) SetPlanMode(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.planMode = active
}

// AdvancedModel reports whether the session runs a higher-capability model.
func (a *Agent) AdvancedModel() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.advancedModel
}

// WorkingDir returns the conversation working directory.
func (a *Agent) WorkingDir() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workingDir
}

// Reset returns the agent to a fresh-session state: transcript, token
// usage, always-allow set, semantic grants, plan mode, and the classifier
// stream are all cleared. Identity, working directory, and project context
// are kept.
func (a *Agent) Reset() {
	a.chatMu.Lock()
	defer a.chatMu.Unlock()

	a.mu.Lock()
	a.history = nil
	a.usage = models.Usage{}
	a.planMode = false
	a.mu.Unlock()

	a.permissions.Restore(nil, nil)
	a.stream.Reset()
	a.logger.Info("session reset", "session_id", a.SessionID())
}

func (a *Agent) recordUsage(chunk *CompletionChunk) {
	a.mu.Lock()
	a.usage.Add(models.Usage{
		InputTokens:  chunk.InputTokens,
		OutputTokens: chunk.OutputTokens,
	})
	a.mu.Unlock()
	if a.opts.Metrics != nil {
		a.opts.Metrics.LLMTokensUsed.WithLabelValues(a.provider.Name(), a.opts.Model, "prompt").
			Add(float64(chunk.InputTokens))
		a.opts.Metrics.LLMTokensUsed.WithLabelValues(a.provider.Name(), a.opts.Model, "completion").
			Add(float64(chunk.OutputTokens))
	}
}

func (a *Agent) countLLMRequest(status string, elapsed time.Duration) {
	if a.opts.Metrics == nil {
		return
	}
	a.opts.Metrics.LLMRequestCounter.WithLabelValues(a.provider.Name(), a.opts.Model, status).Inc()
	a.opts.Metrics.LLMRequestDuration.WithLabelValues(a.provider.Name(), a.opts.Model).
		Observe(elapsed.Seconds())
}

func (a *Agent) countConfirmation(tool string, outcome ConfirmOutcome) {
	if a.opts.Metrics == nil {
		return
	}
	label := "approve"
	switch outcome {
	case ConfirmApproveAlways:
		label = "approve_always"
	case ConfirmDeny:
		label = "deny"
	}
	a.opts.Metrics.ConfirmationCounter.WithLabelValues(tool, label).Inc()
}

// usageDelta computes the tokens consumed between two usage samples.
func usageDelta(before, after models.Usage) models.Usage {
	return models.Usage{
		InputTokens:  after.InputTokens - before.InputTokens,
		OutputTokens: after.OutputTokens - before.OutputTokens,
	}
}

// toCompletionMessages converts transcript messages to the provider wire
// shape. System messages stay in the sequence; providers that need them
// hoisted handle that themselves.
func toCompletionMessages(history []*models.Message) []CompletionMessage {
	out := make([]CompletionMessage, 0, len(history))
	for _, msg := range history {
		out = append(out, CompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			Parts:      msg.Parts,
			ToolCalls:  msg.ToolCalls,
			ToolCallID: msg.ToolCallID,
			IsError:    msg.IsError,
		})
	}
	return out
}

// providerSummarizer adapts the agent's provider to the compression
// Summarizer interface by collecting a full non-streamed completion.
type providerSummarizer struct {
	provider LLMProvider
	model    string
}

func (s *providerSummarizer) Summarize(ctx context.Context, messages []*models.Message, prompt string) (string, error) {
	req := &CompletionRequest{
		Model:    s.model,
		System:   prompt,
		Messages: toCompletionMessages(messages),
	}

	chunks, err := s.provider.Complete(ctx, req)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for chunk := range chunks {
		if chunk.Error != nil {
			return "", chunk.Error
		}
		text.WriteString(chunk.Text)
	}
	return text.String(), nil
}
