package repository

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in a process local map. Contents are lost on
// restart; use it for local runs and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Item
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Item)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Item, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[key]
	if !ok {
		return Item{}, false, nil
	}
	return Item{Data: append([]byte(nil), it.Data...), Version: it.Version}, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, data []byte, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current := m.items[key].Version
	if current != expectedVersion {
		return 0, fmt.Errorf("repository: Put %q at version %d (stored %d): %w", key, expectedVersion, current, ErrConflict)
	}
	next := current + 1
	m.items[key] = Item{Data: append([]byte(nil), data...), Version: next}
	return next, nil
}
