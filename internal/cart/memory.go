package cart

import (
	"context"
	"maps"
	"sync"
)

// MemoryStore keeps carts in process memory. Carts never expire.
type MemoryStore struct {
	mu    sync.RWMutex
	carts map[string]map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{carts: map[string]map[string]int{}}
}

func (m *MemoryStore) Lines(_ context.Context, owner string) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := maps.Clone(m.carts[owner])
	if out == nil {
		out = map[string]int{}
	}
	return out, nil
}

func (m *MemoryStore) SetLine(_ context.Context, owner, productID string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.carts[owner]
	if !ok {
		c = map[string]int{}
		m.carts[owner] = c
	}
	c[productID] = qty
	return nil
}

func (m *MemoryStore) DeleteLines(_ context.Context, owner string, productIDs ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.carts[owner]
	for _, id := range productIDs {
		delete(c, id)
	}
	if len(c) == 0 {
		delete(m.carts, owner)
	}
	return nil
}
