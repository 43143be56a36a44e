package models

import "time"

// SemanticPermission is a pattern-scoped grant for a sensitive tool.
//
// A grant with Tool "write" and Pattern "src/**" lets write calls whose path
// argument matches the glob proceed without confirmation. Expired grants are
// pruned lazily when permissions are consulted, never by a background timer.
type SemanticPermission struct {
	ID          string     `json:"id"`
	Tool        string     `json:"tool"`
	Pattern     string     `json:"pattern"`
	Description string     `json:"description,omitempty"`
	GrantedAt   time.Time  `json:"granted_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has lapsed at the given instant.
func (p SemanticPermission) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// Snapshot is a full capture of agent state, sufficient to reconstruct a
// behaviorally identical session elsewhere or later.
type Snapshot struct {
	SessionID      string               `json:"session_id"`
	SessionStarted time.Time            `json:"session_started"`
	CapturedAt     time.Time            `json:"captured_at"`
	Messages       []*Message           `json:"messages"`
	AlwaysAllow    []string             `json:"always_allow,omitempty"`
	Grants         []SemanticPermission `json:"grants,omitempty"`
	Usage          Usage                `json:"usage"`
	WorkingDir     string               `json:"working_dir,omitempty"`
	ProjectContext string               `json:"project_context,omitempty"`
	PlanMode       bool                 `json:"plan_mode,omitempty"`
	AdvancedModel  bool                 `json:"is_advanced_model,omitempty"`
}
