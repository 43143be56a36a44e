// Package main provides the CLI entry point for loom, a tool-augmented
// coding agent for the terminal.
//
// # Basic Usage
//
// Start an interactive chat:
//
//	loom chat
//
// Resume a saved session:
//
//	loom chat --session <id>
//
// Inspect saved sessions:
//
//	loom sessions list
//	loom sessions show <id>
//
// # Environment Variables
//
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
//   - OPENAI_API_KEY: OpenAI API key for GPT models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "loom",
		Short: "loom - tool-augmented coding agent",
		Long: `loom runs an LLM-driven conversation loop with file, shell, and search
tools, permission gating for sensitive operations, and resumable sessions.

Supported providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildSessionsCmd(),
	)

	return rootCmd
}
