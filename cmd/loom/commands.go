// commands.go contains the cobra command definitions and their flag
// configurations. Each builder creates a command and wires it to a handler.
package main

import (
	"github.com/spf13/cobra"
)

func buildChatCmd() *cobra.Command {
	var (
		configPath string
		sessionID  string
		workingDir string
		planMode   bool
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session with the configured provider.

Each turn streams the assistant's response, runs any tools it requests
(asking for confirmation where needed), and saves a session snapshot so
the conversation can be resumed later.`,
		Example: `  # Start a fresh session
  loom chat

  # Resume a saved session
  loom chat --session 4f7c9a

  # Start in plan mode (read-only tools)
  loom chat --plan`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), chatOptions{
				configPath: configPath,
				sessionID:  sessionID,
				workingDir: workingDir,
				planMode:   planMode,
				debug:      debug,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to YAML configuration file")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session id to resume")
	cmd.Flags().StringVarP(&workingDir, "dir", "C", "", "Working directory for the session")
	cmd.Flags().BoolVar(&planMode, "plan", false, "Start in plan mode (read-only tools)")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

func buildSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved sessions",
	}
	cmd.AddCommand(
		buildSessionsListCmd(),
		buildSessionsShowCmd(),
		buildSessionsDeleteCmd(),
	)
	return cmd
}

func buildSessionsListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsList(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to YAML configuration file")
	return cmd
}

func buildSessionsShowCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a saved session transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsShow(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to YAML configuration file")
	return cmd
}

func buildSessionsDeleteCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsDelete(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "loom.yaml", "Path to YAML configuration file")
	return cmd
}
