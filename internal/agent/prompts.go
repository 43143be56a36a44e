package agent

import "strings"

const basePrompt = `You are a capable software assistant working inside the user's project. Use the available tools to read, search, and modify files, and to run commands. Prefer small, verifiable steps. When a tool fails, read the error and adjust rather than repeating the same call.`

const planModeAddendum = `Plan mode is active. You may only inspect the project and refine the plan; editing tools and command execution are disabled. Call exit_plan_mode when the user approves the plan.`

// buildSystemPrompt composes the effective system prompt for one request:
// configured base text, detected project context, and the plan-mode
// addendum when active.
func buildSystemPrompt(configured, projectContext string, planMode bool) string {
	parts := make([]string, 0, 3)

	if strings.TrimSpace(configured) != "" {
		parts = append(parts, strings.TrimSpace(configured))
	} else {
		parts = append(parts, basePrompt)
	}

	if projectContext != "" {
		parts = append(parts, "Current project: "+projectContext)
	}

	if planMode {
		parts = append(parts, planModeAddendum)
	}

	return strings.Join(parts, "\n\n")
}
