package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/pkg/models"
)

// planAllowedTools lists the tools usable while plan mode is active.
var planAllowedTools = map[string]bool{
	"read":           true,
	"glob":           true,
	"grep":           true,
	"ls":             true,
	"git_status":     true,
	"git_diff":       true,
	"git_log":        true,
	"read_plan":      true,
	"update_plan":    true,
	"exit_plan_mode": true,
	"ask_user":       true,
	"todo_write":     true,
}

// cwdTools are path-sensitive tools that receive the conversation working
// directory when the model didn't supply one.
var cwdTools = map[string]bool{
	"bash":  true,
	"glob":  true,
	"grep":  true,
	"read":  true,
	"write": true,
	"edit":  true,
	"ls":    true,
}

// CoordinatorConfig configures tool execution behavior.
type CoordinatorConfig struct {
	// MaxConcurrency limits the number of parallel tool executions.
	// Default: 5
	MaxConcurrency int

	// DefaultTimeout is the per-call execution timeout.
	// Default: 60s
	DefaultTimeout time.Duration

	// Tracer emits a span per tool execution. Nil means a no-op tracer.
	Tracer *observability.Tracer
}

// DefaultCoordinatorConfig returns the default coordinator configuration.
func DefaultCoordinatorConfig() *CoordinatorConfig {
	return &CoordinatorConfig{
		MaxConcurrency: 5,
		DefaultTimeout: 60 * time.Second,
	}
}

// Coordinator executes tool calls on behalf of the loop. It never returns an
// error and never panics out: unknown tools, plan-mode violations, schema
// violations, timeouts, and tool panics all surface as failure results the
// model can react to.
type Coordinator struct {
	registry *ToolRegistry
	config   *CoordinatorConfig
	logger   *slog.Logger
	metrics  *observability.Metrics

	sem chan struct{}

	schemaMu sync.Mutex
	schemas  map[string]*jsonschema.Schema

	// planMode and workDir read live agent state at call time.
	planMode func() bool
	workDir  func() string
}

// NewCoordinator creates a coordinator over the given registry.
// If config is nil, DefaultCoordinatorConfig is used.
func NewCoordinator(registry *ToolRegistry, config *CoordinatorConfig, logger *slog.Logger, metrics *observability.Metrics) *Coordinator {
	if config == nil {
		config = DefaultCoordinatorConfig()
	}
	if config.Tracer == nil {
		config.Tracer, _ = observability.NewTracer(observability.TraceConfig{})
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		registry: registry,
		config:   config,
		logger:   logger.With("component", "tool_exec"),
		metrics:  metrics,
		sem:      make(chan struct{}, config.MaxConcurrency),
		schemas:  make(map[string]*jsonschema.Schema),
		planMode: func() bool { return false },
		workDir:  func() string { return "" },
	}
}

// ExecuteAll executes the calls in parallel under the concurrency limit and
// returns results in the same order as the input calls. The handler's
// OnToolStart/OnToolEnd fire around each call.
func (c *Coordinator) ExecuteAll(ctx context.Context, calls []models.ToolCall, events EventHandler) []models.ToolResult {
	if len(calls) == 0 {
		return nil
	}

	results := make([]models.ToolResult, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		go func(idx int, tc models.ToolCall) {
			defer wg.Done()

			select {
			case c.sem <- struct{}{}:
				defer func() { <-c.sem }()
			case <-ctx.Done():
				results[idx] = failureResult(tc.ID, "Tool execution cancelled: "+ctx.Err().Error())
				return
			}

			if events != nil {
				events.OnToolStart(tc)
			}
			results[idx] = c.Execute(ctx, tc)
			if events != nil {
				events.OnToolEnd(tc, results[idx])
			}
		}(i, call)
	}

	wg.Wait()
	return results
}

// Execute runs a single tool call to a result.
func (c *Coordinator) Execute(ctx context.Context, call models.ToolCall) (result models.ToolResult) {
	start := time.Now()
	ctx, span := c.config.Tracer.TraceToolExecution(ctx, call.Name)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic during tool dispatch",
				"tool", call.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
			result = failureResult(call.ID, fmt.Sprintf("Tool %s panicked: %v", call.Name, r))
		}
		if result.IsError {
			c.config.Tracer.RecordError(span, errors.New(result.Content))
		}
		span.End()
		c.observe(call.Name, result, time.Since(start))
	}()

	tool, ok := c.registry.Get(call.Name)
	if !ok {
		return failureResult(call.ID, "Unknown tool: "+call.Name)
	}

	if c.planMode() && !planAllowedTools[call.Name] {
		return failureResult(call.ID, fmt.Sprintf(
			"Tool %s is not available in plan mode. Only read-only and planning tools may be used; call exit_plan_mode to resume normal operation.",
			call.Name,
		))
	}

	input := call.Input
	if cwdTools[call.Name] {
		input = injectWorkDir(input, c.workDir())
	}

	if msg, ok := c.validateInput(tool, input); !ok {
		return failureResult(call.ID, fmt.Sprintf("Invalid input for tool %s: %s", call.Name, msg))
	}

	output, err := c.executeWithTimeout(ctx, tool, call, input)
	if err != nil {
		return failureResult(call.ID, err.Error())
	}

	res := models.ToolResult{
		ToolCallID: call.ID,
		Content:    output.Content,
		IsError:    output.IsError,
		Image:      output.Image,
	}
	return res
}

// executeWithTimeout runs the tool body under the per-call timeout with
// panic recovery on the executing goroutine.
func (c *Coordinator) executeWithTimeout(ctx context.Context, tool Tool, call models.ToolCall, input json.RawMessage) (*ToolOutput, error) {
	execCtx, cancel := context.WithTimeout(ctx, c.config.DefaultTimeout)
	defer cancel()

	type execResult struct {
		output *ToolOutput
		err    error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				err := NewToolError(call.Name, fmt.Errorf("panic: %v\n%s", r, stack)).
					WithType(ToolErrorPanic).
					WithToolCallID(call.ID)
				resultCh <- execResult{err: err}
			}
		}()

		output, err := tool.Execute(execCtx, input)
		if err != nil {
			resultCh <- execResult{err: NewToolError(call.Name, err).WithToolCallID(call.ID)}
			return
		}
		if output == nil {
			output = &ToolOutput{}
		}
		resultCh <- execResult{output: output}
	}()

	select {
	case res := <-resultCh:
		return res.output, res.err
	case <-execCtx.Done():
		if ctx.Err() != nil {
			return nil, NewToolError(call.Name, ctx.Err()).
				WithType(ToolErrorTimeout).
				WithToolCallID(call.ID).
				WithMessage("context cancelled")
		}
		return nil, NewToolError(call.Name, ErrToolTimeout).
			WithType(ToolErrorTimeout).
			WithToolCallID(call.ID).
			WithMessage(fmt.Sprintf("execution timed out after %s", c.config.DefaultTimeout))
	}
}

// validateInput checks the call input against the tool's JSON schema.
// Compiled schemas are cached per tool name.
func (c *Coordinator) validateInput(tool Tool, input json.RawMessage) (string, bool) {
	raw := tool.Schema()
	if len(raw) == 0 {
		return "", true
	}

	c.schemaMu.Lock()
	schema, ok := c.schemas[tool.Name()]
	if !ok {
		compiled, err := jsonschema.CompileString(tool.Name()+".json", string(raw))
		if err != nil {
			// A tool shipping a broken schema shouldn't block execution.
			c.logger.Warn("tool schema failed to compile", "tool", tool.Name(), "error", err)
			c.schemas[tool.Name()] = nil
			c.schemaMu.Unlock()
			return "", true
		}
		schema = compiled
		c.schemas[tool.Name()] = schema
	}
	c.schemaMu.Unlock()

	if schema == nil {
		return "", true
	}

	var value any
	if len(input) == 0 {
		value = map[string]any{}
	} else if err := json.Unmarshal(input, &value); err != nil {
		return "arguments are not valid JSON: " + err.Error(), false
	}

	if err := schema.Validate(value); err != nil {
		return schemaErrorMessage(err), false
	}
	return "", true
}

// SetPlanMode installs the live plan-mode check.
func (c *Coordinator) SetPlanMode(fn func() bool) {
	if fn != nil {
		c.planMode = fn
	}
}

// SetWorkDir installs the live working-directory source.
func (c *Coordinator) SetWorkDir(fn func() string) {
	if fn != nil {
		c.workDir = fn
	}
}

func (c *Coordinator) observe(toolName string, result models.ToolResult, elapsed time.Duration) {
	status := "success"
	if result.IsError {
		status = "error"
	}
	c.logger.Debug("tool executed", "tool", toolName, "status", status, "duration_ms", elapsed.Milliseconds())
	if c.metrics == nil {
		return
	}
	c.metrics.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	c.metrics.ToolExecutionDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// injectWorkDir sets "cwd" in the argument object when absent. Malformed
// argument JSON is left untouched; schema validation will report it.
func injectWorkDir(input json.RawMessage, cwd string) json.RawMessage {
	if cwd == "" {
		return input
	}
	args := map[string]any{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &args); err != nil {
			return input
		}
	}
	if _, exists := args["cwd"]; exists {
		return input
	}
	args["cwd"] = cwd
	patched, err := json.Marshal(args)
	if err != nil {
		return input
	}
	return patched
}

func failureResult(callID, content string) models.ToolResult {
	return models.ToolResult{
		ToolCallID: callID,
		Content:    content,
		IsError:    true,
	}
}

func schemaErrorMessage(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := strings.TrimPrefix(leaf.InstanceLocation, "/")
		if loc != "" {
			return loc + ": " + leaf.Message
		}
		return leaf.Message
	}
	return err.Error()
}
