package agent

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

func TestSnapshotRoundTrip(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*CompletionChunk{textTurn("hello")}}
	ag := newTestAgent(t, provider, &recordingHandler{})
	ag.SetPlanMode(true)
	ag.Permissions().AllowAlways("bash")
	ag.Permissions().Grant(models.SemanticPermission{Tool: "write", Pattern: "src/**"})

	if _, err := ag.Chat(context.Background(), "hi"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	snap := ag.Snapshot()
	if snap.SessionID != ag.SessionID() {
		t.Errorf("snapshot session id = %q, want %q", snap.SessionID, ag.SessionID())
	}
	if len(snap.Messages) != 2 {
		t.Fatalf("snapshot messages = %d, want 2", len(snap.Messages))
	}
	if !snap.PlanMode {
		t.Error("snapshot should carry plan mode")
	}
	if snap.Usage.InputTokens != 10 {
		t.Errorf("snapshot usage = %+v", snap.Usage)
	}
	if snap.CapturedAt.IsZero() {
		t.Error("snapshot should record capture time")
	}

	// The snapshot must survive JSON marshaling for persistence.
	payload, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}
	var decoded models.Snapshot
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}

	// A fresh agent restored from the snapshot behaves identically.
	fresh := newTestAgent(t, &scriptedProvider{}, &recordingHandler{})
	fresh.Restore(&decoded)

	if fresh.SessionID() != snap.SessionID {
		t.Errorf("restored session id = %q", fresh.SessionID())
	}
	if len(fresh.History()) != len(snap.Messages) {
		t.Errorf("restored history = %d messages", len(fresh.History()))
	}
	if !fresh.PlanMode() {
		t.Error("restored agent should be in plan mode")
	}
	if fresh.Usage() != snap.Usage {
		t.Errorf("restored usage = %+v", fresh.Usage())
	}
	if fresh.Permissions().NeedsConfirmation(callWith("bash", map[string]string{"command": "make"})) {
		t.Error("restored always-allow should cover bash")
	}
	if fresh.Permissions().NeedsConfirmation(callWith("write", map[string]string{"path": "src/x.go"})) {
		t.Error("restored grant should cover src/x.go")
	}
}

func TestSnapshotCarriesAdvancedModelFlag(t *testing.T) {
	registry := NewToolRegistry()
	ag := New(&scriptedProvider{}, registry, Options{
		Logger:        testLogger(),
		AdvancedModel: true,
	})
	if !ag.AdvancedModel() {
		t.Fatal("option did not set the advanced-model flag")
	}

	snap := ag.Snapshot()
	if !snap.AdvancedModel {
		t.Fatal("snapshot dropped the advanced-model flag")
	}

	fresh := newTestAgent(t, &scriptedProvider{}, &recordingHandler{})
	fresh.Restore(snap)
	if !fresh.AdvancedModel() {
		t.Error("restored agent lost the advanced-model flag")
	}
}

func TestSnapshotIsolatedFromLaterMutation(t *testing.T) {
	provider := &scriptedProvider{turns: [][]*CompletionChunk{textTurn("one"), textTurn("two")}}
	ag := newTestAgent(t, provider, &recordingHandler{})

	if _, err := ag.Chat(context.Background(), "first"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	snap := ag.Snapshot()
	countAtCapture := len(snap.Messages)

	if _, err := ag.Chat(context.Background(), "second"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(snap.Messages) != countAtCapture {
		t.Errorf("snapshot grew after capture: %d -> %d", countAtCapture, len(snap.Messages))
	}
}

func TestRestoreNil(t *testing.T) {
	ag := newTestAgent(t, &scriptedProvider{}, &recordingHandler{})
	before := ag.SessionID()
	ag.Restore(nil)
	if ag.SessionID() != before {
		t.Error("restoring nil should be a no-op")
	}
}

func TestRestoreKeepsWorkingDirWhenSnapshotEmpty(t *testing.T) {
	registry := NewToolRegistry()
	ag := New(&scriptedProvider{}, registry, Options{
		Logger:     testLogger(),
		WorkingDir: "/work",
	})

	ag.Restore(&models.Snapshot{
		SessionID:      "s1",
		SessionStarted: time.Now(),
	})
	if ag.WorkingDir() != "/work" {
		t.Errorf("working dir = %q, want /work", ag.WorkingDir())
	}
}
