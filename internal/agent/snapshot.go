package agent

import (
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// Snapshot captures the full session state: identity, transcript, permission
// state, usage, and workspace context. The result marshals to JSON and can
// be fed to Restore on a fresh agent to resume the session.
func (a *Agent) Snapshot() *models.Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	messages := make([]*models.Message, len(a.history))
	copy(messages, a.history)

	return &models.Snapshot{
		SessionID:      a.sessionID,
		SessionStarted: a.sessionStarted,
		CapturedAt:     time.Now(),
		Messages:       messages,
		AlwaysAllow:    a.permissions.AlwaysAllowed(),
		Grants:         a.permissions.Grants(),
		Usage:          a.usage,
		WorkingDir:     a.workingDir,
		ProjectContext: a.projectContext,
		PlanMode:       a.planMode,
		AdvancedModel:  a.advancedModel,
	}
}

// Restore replaces the agent's session state with the snapshot's. The
// restored agent behaves identically to the one that was captured: same
// transcript, same standing permissions, same usage totals, same plan-mode
// and workspace context.
func (a *Agent) Restore(snap *models.Snapshot) {
	if snap == nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.sessionID = snap.SessionID
	if !snap.SessionStarted.IsZero() {
		a.sessionStarted = snap.SessionStarted
	}
	a.history = make([]*models.Message, len(snap.Messages))
	copy(a.history, snap.Messages)
	a.usage = snap.Usage
	a.planMode = snap.PlanMode
	a.advancedModel = snap.AdvancedModel
	if snap.WorkingDir != "" {
		a.workingDir = snap.WorkingDir
	}
	if snap.ProjectContext != "" {
		a.projectContext = snap.ProjectContext
	}

	a.permissions.Restore(snap.AlwaysAllow, snap.Grants)
}
