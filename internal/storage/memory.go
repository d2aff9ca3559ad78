package storage

import (
	"context"
	"sync"
)

// Memory keeps the flushed snapshot in process memory. It exists for tests
// and ephemeral runs: Load returns whatever the last Flush wrote, which is
// enough to simulate a restart.
type Memory struct {
	mu       sync.Mutex
	snapshot Snapshot
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{snapshot: Snapshot{}}
}

// Load returns a copy of the last flushed snapshot.
func (m *Memory) Load(_ context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot.Clone(), nil
}

// Flush replaces the retained snapshot.
func (m *Memory) Flush(_ context.Context, snapshot Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = snapshot.Clone()
	return nil
}
