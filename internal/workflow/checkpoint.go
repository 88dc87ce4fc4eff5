package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/joseph-ayodele/labreports/internal/common"
)

// CheckpointStore persists workflow state by thread id. Get returns an error
// wrapping common.ErrNotFound for unknown ids.
type CheckpointStore interface {
	Get(ctx context.Context, threadID string) (*State, error)
	Put(ctx context.Context, s *State) error
	Delete(ctx context.Context, threadID string) error
	// PurgeExpired deletes checkpoints last updated before cutoff.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore keeps checkpoints in process. States are stored as JSON so
// callers never share memory with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]memEntry
}

type memEntry struct {
	raw       []byte
	updatedAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]memEntry)}
}

func (m *MemoryStore) Get(_ context.Context, threadID string) (*State, error) {
	m.mu.RLock()
	e, ok := m.data[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", threadID, common.ErrNotFound)
	}
	var s State
	if err := json.Unmarshal(e.raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *State) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode checkpoint %s: %w", s.ThreadID, err)
	}
	m.mu.Lock()
	m.data[s.ThreadID] = memEntry{raw: raw, updatedAt: s.UpdatedAt}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, threadID string) error {
	m.mu.Lock()
	delete(m.data, threadID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PurgeExpired(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.data {
		if e.updatedAt.Before(cutoff) {
			delete(m.data, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored checkpoints.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
