// handlers.go contains the command handlers: the interactive chat loop
// and the session management commands.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haasonsaas/loom/internal/agent"
	"github.com/haasonsaas/loom/internal/agent/providers"
	"github.com/haasonsaas/loom/internal/config"
	"github.com/haasonsaas/loom/internal/observability"
	"github.com/haasonsaas/loom/internal/sessions"
	execTool "github.com/haasonsaas/loom/internal/tools/exec"
	"github.com/haasonsaas/loom/internal/tools/files"
	"github.com/haasonsaas/loom/internal/tools/plan"
	"github.com/haasonsaas/loom/internal/tools/search"
	"github.com/haasonsaas/loom/pkg/models"
)

type chatOptions struct {
	configPath string
	sessionID  string
	workingDir string
	planMode   bool
	debug      bool
}

func runChat(ctx context.Context, opts chatOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.debug {
		cfg.Logging.Level = "debug"
	}
	logger := observability.NewLogger(cfg.Logging)

	tracer, stopTracer := observability.NewTracer(cfg.Tracing)
	defer func() {
		if err := stopTracer(context.Background()); err != nil {
			logger.Warn("trace exporter shutdown failed", "error", err)
		}
	}()

	provider, model, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	workingDir := opts.workingDir
	if workingDir == "" {
		workingDir = cfg.Agent.WorkingDir
	}
	if workingDir == "" {
		workingDir, _ = os.Getwd()
	}

	registry := agent.NewToolRegistry()
	registerTools(registry, cfg)

	stdin := bufio.NewReader(os.Stdin)
	handler := &terminalHandler{in: stdin, out: os.Stdout}

	ag := agent.New(provider, registry, agent.Options{
		Model:           model,
		SystemPrompt:    cfg.Agent.SystemPrompt,
		MaxIterations:   cfg.Agent.MaxIterations,
		MaxTokens:       cfg.Agent.MaxTokens,
		ToolParallelism: cfg.Agent.ToolParallelism,
		ToolTimeout:     cfg.Agent.ToolTimeout,
		WorkingDir:      workingDir,
		Compression:     cfg.Compression,
		Handler:         handler,
		Metrics:         observability.NewMetrics(),
		Tracer:          tracer,
		Logger:          logger,
	})
	ag.SetPlanMode(opts.planMode)
	registerPlanTools(registry, ag)

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if opts.sessionID != "" {
		snap, err := store.Get(ctx, opts.sessionID)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", opts.sessionID, err)
		}
		ag.Restore(snap)
		fmt.Printf("Resumed session %s (%d messages)\n", snap.SessionID, len(snap.Messages))
	} else {
		fmt.Printf("Session %s\n", ag.SessionID())
	}
	fmt.Println(`Type a message and press enter. Commands: /plan, /quit`)

	for {
		fmt.Print("\n> ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			fmt.Println()
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		switch line {
		case "/quit", "/exit":
			return nil
		case "/plan":
			ag.SetPlanMode(!ag.PlanMode())
			if ag.PlanMode() {
				fmt.Println("Plan mode on: only read-only tools will run.")
			} else {
				fmt.Println("Plan mode off.")
			}
			continue
		}

		// Ctrl-C cancels the in-flight turn, not the whole program.
		turnCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		turn, chatErr := ag.Chat(turnCtx, line)
		stop()
		fmt.Println()

		if chatErr != nil {
			switch {
			case errors.Is(chatErr, context.Canceled):
				fmt.Println("(turn cancelled)")
			case errors.Is(chatErr, agent.ErrUserRejected):
				fmt.Println("(tool call denied; turn aborted)")
			default:
				fmt.Fprintln(os.Stderr, "error:", chatErr)
			}
		} else if turn != nil && len(turn.ToolCalls) > 0 {
			fmt.Printf("(%d tool call(s), %d tokens)\n", len(turn.ToolCalls), turn.Usage.Total())
		}

		if err := store.Save(ctx, ag.Snapshot()); err != nil {
			logger.Warn("failed to save session snapshot", "error", err)
		}
	}
}

// buildProvider constructs the configured LLM provider and returns it with
// its default model.
func buildProvider(cfg *config.Config) (agent.LLMProvider, string, error) {
	switch cfg.Provider {
	case "anthropic":
		p, err := providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.Anthropic.APIKey,
			DefaultModel: cfg.Anthropic.DefaultModel,
		})
		if err != nil {
			return nil, "", err
		}
		return p, cfg.Anthropic.DefaultModel, nil
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, "", errors.New("OPENAI_API_KEY is not set")
		}
		return providers.NewOpenAIProvider(cfg.OpenAI.APIKey), cfg.OpenAI.DefaultModel, nil
	default:
		return nil, "", fmt.Errorf("unknown provider: %s", cfg.Provider)
	}
}

func registerTools(registry *agent.ToolRegistry, cfg *config.Config) {
	registry.Register(files.NewReadTool(0))
	registry.Register(files.NewWriteTool())
	registry.Register(files.NewEditTool())
	registry.Register(files.NewLsTool())
	registry.Register(execTool.NewBashTool(0, cfg.Agent.ToolTimeout))
	registry.Register(search.NewGlobTool())
	registry.Register(search.NewGrepTool())
}

// registerPlanTools wires the plan document and the exit hook to the agent.
// Registered after construction because exit_plan_mode flips agent state.
func registerPlanTools(registry *agent.ToolRegistry, ag *agent.Agent) {
	manager := plan.NewManager()
	registry.Register(plan.NewReadTool(manager))
	registry.Register(plan.NewUpdateTool(manager))
	registry.Register(plan.NewExitTool(func() { ag.SetPlanMode(false) }))
}

func openStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Sessions.Backend {
	case "", "memory":
		return sessions.NewMemoryStore(), nil
	case "sqlite":
		path := cfg.Sessions.Path
		if path == "" {
			home, err := os.UserHomeDir()
			if err == nil {
				path = home + "/.loom/sessions.db"
			}
		}
		return sessions.NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown sessions backend: %s", cfg.Sessions.Backend)
	}
}

func runSessionsList(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("No saved sessions.")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  %d messages  %d in / %d out tokens\n",
			info.SessionID,
			info.CapturedAt.Format("2006-01-02 15:04"),
			info.MessageCount,
			info.InputTokens,
			info.OutputTokens,
		)
	}
	return nil
}

func runSessionsShow(ctx context.Context, configPath, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	fmt.Printf("Session %s (started %s)\n\n", snap.SessionID, snap.SessionStarted.Format("2006-01-02 15:04"))
	for _, msg := range snap.Messages {
		switch msg.Role {
		case models.RoleTool:
			fmt.Printf("[tool %s] %s\n", msg.ToolCallID, truncate(msg.Content, 200))
		default:
			fmt.Printf("%s: %s\n", msg.Role, truncate(msg.Content, 2000))
			for _, call := range msg.ToolCalls {
				fmt.Printf("  -> %s(%s)\n", call.Name, truncate(string(call.Input), 120))
			}
		}
	}
	return nil
}

func runSessionsDelete(ctx context.Context, configPath, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(ctx, sessionID); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", sessionID)
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
