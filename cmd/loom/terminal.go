// terminal.go implements the agent event handler for interactive use:
// streamed output and confirmation prompts on the terminal.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/haasonsaas/loom/internal/agent"
	"github.com/haasonsaas/loom/pkg/models"
)

// terminalHandler renders loop events on the terminal. Confirmation
// prompts read from the same stdin reader as the chat REPL; the REPL is
// blocked inside Chat whenever a prompt fires, so the reader is never
// contended.
type terminalHandler struct {
	in  *bufio.Reader
	out io.Writer
}

func (h *terminalHandler) OnText(text string) {
	fmt.Fprint(h.out, text)
}

func (h *terminalHandler) OnToolStart(call models.ToolCall) {
	fmt.Fprintf(h.out, "\n[running %s]\n", call.Name)
}

func (h *terminalHandler) OnToolEnd(call models.ToolCall, result models.ToolResult) {
	if result.IsError {
		fmt.Fprintf(h.out, "[%s failed]\n", call.Name)
		return
	}
	fmt.Fprintf(h.out, "[%s done]\n", call.Name)
}

func (h *terminalHandler) OnClassified(models.ContentLabel, string) {}

func (h *terminalHandler) OnCompression(before, after int, done bool) {
	if done {
		fmt.Fprintf(h.out, "\n[history compressed: %d -> %d messages]\n", before, after)
	}
}

// Confirm prompts for a tool call decision: approve once, approve
// always, or deny. For write and edit an always-approval is scoped to a
// path pattern.
func (h *terminalHandler) Confirm(ctx context.Context, call models.ToolCall, preview string) agent.ConfirmDecision {
	fmt.Fprintf(h.out, "\nTool %s wants to run with input:\n  %s\n", call.Name, compactInput(call))
	if preview != "" {
		fmt.Fprintf(h.out, "%s\n", preview)
	}
	fmt.Fprint(h.out, "Allow? [y]es / [a]lways / [n]o: ")

	answer, err := h.in.ReadString('\n')
	if err != nil {
		return agent.ConfirmDecision{Outcome: agent.ConfirmDeny}
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return agent.ConfirmDecision{Outcome: agent.ConfirmApprove}
	case "a", "always":
		decision := agent.ConfirmDecision{Outcome: agent.ConfirmApproveAlways}
		if call.Name == "write" || call.Name == "edit" {
			decision.Pattern = h.promptPattern(call)
		}
		return decision
	default:
		return agent.ConfirmDecision{Outcome: agent.ConfirmDeny}
	}
}

// promptPattern asks for the path pattern scoping an always-approval of
// a sensitive tool. Empty input falls back to the call's own path.
func (h *terminalHandler) promptPattern(call models.ToolCall) string {
	fallback, _ := call.Argument("path")
	if fallback == "" {
		fallback = "**"
	}
	fmt.Fprintf(h.out, "Path pattern to always allow [%s]: ", fallback)
	answer, err := h.in.ReadString('\n')
	if err != nil {
		return fallback
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return fallback
	}
	return answer
}

func compactInput(call models.ToolCall) string {
	input := strings.TrimSpace(string(call.Input))
	if len(input) > 300 {
		input = input[:300] + "..."
	}
	if input == "" {
		return "{}"
	}
	return input
}
