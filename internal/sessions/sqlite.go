package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/haasonsaas/loom/pkg/models"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// SQLiteStore persists snapshots in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the schema. An empty path uses an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent saves.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT PRIMARY KEY,
			session_started DATETIME NOT NULL,
			captured_at DATETIME NOT NULL,
			message_count INTEGER NOT NULL,
			working_dir TEXT,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create snapshots table: %w", err)
	}
	_, err = s.db.Exec("CREATE INDEX IF NOT EXISTS idx_snapshots_captured ON snapshots(captured_at)")
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is required")
	}
	if snap.SessionID == "" {
		return errors.New("snapshot session id is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO snapshots
			(session_id, session_started, captured_at, message_count, working_dir, input_tokens, output_tokens, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		snap.SessionID,
		snap.SessionStarted,
		snap.CapturedAt,
		len(snap.Messages),
		snap.WorkingDir,
		snap.Usage.InputTokens,
		snap.Usage.OutputTokens,
		string(payload),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM snapshots WHERE session_id = ?", sessionID,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, session_started, captured_at, message_count, working_dir, input_tokens, output_tokens
		FROM snapshots
		ORDER BY captured_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Info, 0)
	for rows.Next() {
		var info Info
		var workingDir sql.NullString
		if err := rows.Scan(
			&info.SessionID,
			&info.SessionStarted,
			&info.CapturedAt,
			&info.MessageCount,
			&workingDir,
			&info.InputTokens,
			&info.OutputTokens,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		info.WorkingDir = workingDir.String
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM snapshots WHERE session_id = ?", sessionID,
	)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
