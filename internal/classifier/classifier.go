// Package classifier labels assistant output so callers can render or route
// it appropriately (code blocks, shell commands, questions, plans).
package classifier

import (
	"regexp"
	"strings"

	"github.com/haasonsaas/loom/pkg/models"
)

var (
	fenceRe   = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n.*?```")
	commandRe = regexp.MustCompile(`(?m)^\s*\$\s+\S`)
	planRe    = regexp.MustCompile(`(?mi)^\s*(step\s+\d+|\d+\.\s+\S|[-*]\s+\[ \])`)
)

// Classify returns the dominant content label for a chunk of assistant text.
// Heuristic order matters: fenced code wins over everything, explicit shell
// prompts over plans, and a trailing question mark only counts when the text
// is short enough to actually be a question.
func Classify(text string) models.ContentLabel {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return models.LabelExplanation
	}

	if fence := fenceRe.FindString(trimmed); fence != "" {
		// A lone snippet buried in prose is still an explanation.
		if len(fence)*2 >= len(trimmed) {
			return models.LabelCode
		}
	}

	if commandRe.MatchString(trimmed) {
		return models.LabelCommand
	}

	if planRe.MatchString(trimmed) && strings.Count(trimmed, "\n") >= 2 {
		return models.LabelPlan
	}

	if strings.HasSuffix(trimmed, "?") && len(trimmed) < 400 {
		return models.LabelQuestion
	}

	return models.LabelExplanation
}
