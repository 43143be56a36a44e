package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/loom/pkg/models"
)

// repairHistory restores the transcript invariants providers require:
// every tool message answers a call some assistant message proposed, and
// the transcript never ends mid tool run. Orphaned tool
// messages are dropped; a trailing run is closed with synthesized results
// and a synthetic assistant message. Repairing an already-legal transcript
// returns it unchanged, and the input messages are never mutated.
func repairHistory(history []*models.Message, logger *slog.Logger) []*models.Message {
	if len(history) == 0 {
		return history
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Every call id any assistant message proposed. A tool message answering
	// any of them is legal, even when later turns intervened before the
	// answer arrived.
	known := make(map[string]struct{})
	for _, msg := range history {
		if msg == nil || msg.Role != models.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if call.ID != "" {
				known[call.ID] = struct{}{}
			}
		}
	}

	pending := make(map[string]struct{})
	pendingOrder := make([]string, 0)
	trailingCalls := 0
	repaired := make([]*models.Message, 0, len(history))

	for _, msg := range history {
		if msg == nil {
			continue
		}

		switch msg.Role {
		case models.RoleAssistant:
			for k := range pending {
				delete(pending, k)
			}
			pendingOrder = pendingOrder[:0]
			for _, call := range msg.ToolCalls {
				if call.ID == "" {
					continue
				}
				pending[call.ID] = struct{}{}
				pendingOrder = append(pendingOrder, call.ID)
			}
			trailingCalls = len(pendingOrder)
			repaired = append(repaired, msg)
		case models.RoleTool:
			if _, ok := known[msg.ToolCallID]; !ok {
				logger.Warn("dropping orphaned tool message",
					"tool_call_id", msg.ToolCallID,
					"message_id", msg.ID,
				)
				continue
			}
			delete(pending, msg.ToolCallID)
			pendingOrder = removeID(pendingOrder, msg.ToolCallID)
			repaired = append(repaired, msg)
		default:
			repaired = append(repaired, msg)
		}
	}

	if len(repaired) == 0 {
		return repaired
	}

	// A transcript ending inside a tool run confuses providers on the next
	// request. Answer any still-pending calls, then close the run.
	last := repaired[len(repaired)-1]
	inRun := last.Role == models.RoleTool || (last.Role == models.RoleAssistant && len(pendingOrder) > 0)
	if !inRun {
		return repaired
	}

	for _, id := range pendingOrder {
		logger.Warn("synthesizing result for unanswered tool call", "tool_call_id", id)
		repaired = append(repaired, &models.Message{
			ID:         uuid.New().String(),
			Role:       models.RoleTool,
			ToolCallID: id,
			Content:    "Tool execution was interrupted before a result was recorded.",
			CreatedAt:  time.Now(),
		})
	}

	repaired = append(repaired, &models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Content:   fmt.Sprintf("[%d tool call(s) completed.]", trailingCalls),
		CreatedAt: time.Now(),
	})

	return repaired
}

func removeID(ids []string, target string) []string {
	for i, id := range ids {
		if id == target {
			copy(ids[i:], ids[i+1:])
			return ids[:len(ids)-1]
		}
	}
	return ids
}
