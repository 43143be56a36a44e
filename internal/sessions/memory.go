package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/haasonsaas/loom/pkg/models"
)

// MemoryStore provides an in-memory Store implementation for testing and
// ephemeral runs. Snapshots are stored as JSON so callers cannot mutate
// stored state through shared pointers.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string][]byte
	summaries map[string]Info
}

// NewMemoryStore creates a new in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: map[string][]byte{},
		summaries: map[string]Info{},
	}
}

func (m *MemoryStore) Save(ctx context.Context, snap *models.Snapshot) error {
	if snap == nil {
		return errors.New("snapshot is required")
	}
	if snap.SessionID == "" {
		return errors.New("snapshot session id is required")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.SessionID] = payload
	m.summaries[snap.SessionID] = infoOf(snap)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*models.Snapshot, error) {
	m.mu.RLock()
	payload, ok := m.snapshots[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var snap models.Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.summaries))
	for _, info := range m.summaries {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out, nil
}

func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[sessionID]; !ok {
		return ErrNotFound
	}
	delete(m.snapshots, sessionID)
	delete(m.summaries, sessionID)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
