package memstore

import (
	"context"
	"sync"
)

// Replays remembers which order a checkout idempotency key produced.
type Replays struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewReplays() *Replays {
	return &Replays{keys: map[string]string{}}
}

func (r *Replays) Lookup(_ context.Context, owner, key string) (string, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.keys[owner+"\x00"+key]
	return id, ok, nil
}

func (r *Replays) Remember(_ context.Context, owner, key, orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[owner+"\x00"+key] = orderID
	return nil
}
