// Package sessions persists and restores agent session snapshots.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/loom/pkg/models"
)

// ErrNotFound is returned when no snapshot exists for a session id.
var ErrNotFound = errors.New("session not found")

// Info summarizes a stored session for listings.
type Info struct {
	SessionID      string    `json:"session_id"`
	SessionStarted time.Time `json:"session_started"`
	CapturedAt     time.Time `json:"captured_at"`
	MessageCount   int       `json:"message_count"`
	WorkingDir     string    `json:"working_dir,omitempty"`
	InputTokens    int       `json:"input_tokens"`
	OutputTokens   int       `json:"output_tokens"`
}

// Store persists session snapshots keyed by session id. Saving a snapshot
// for an existing id replaces the previous one.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Get(ctx context.Context, sessionID string) (*models.Snapshot, error)
	List(ctx context.Context) ([]Info, error)
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

func infoOf(snap *models.Snapshot) Info {
	return Info{
		SessionID:      snap.SessionID,
		SessionStarted: snap.SessionStarted,
		CapturedAt:     snap.CapturedAt,
		MessageCount:   len(snap.Messages),
		WorkingDir:     snap.WorkingDir,
		InputTokens:    snap.Usage.InputTokens,
		OutputTokens:   snap.Usage.OutputTokens,
	}
}
