package redisx

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// CartStore keeps each cart in a hash that expires CartTTL after its last write.
type CartStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartStore(rdb *redis.Client, ttl time.Duration) *CartStore {
	return &CartStore{rdb: rdb, ttl: ttl}
}

func (s *CartStore) Lines(ctx context.Context, owner string) (map[string]int, error) {
	raw, err := s.rdb.HGetAll(ctx, fmt.Sprintf(KeyCart, owner)).Result()
	if err != nil {
		return nil, wrap("redisx.CartStore.Lines", err)
	}
	out := make(map[string]int, len(raw))
	for id, v := range raw {
		q, err := strconv.Atoi(v)
		if err != nil || q <= 0 {
			continue
		}
		out[id] = q
	}
	return out, nil
}

func (s *CartStore) SetLine(ctx context.Context, owner, productID string, qty int) error {
	key := fmt.Sprintf(KeyCart, owner)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, productID, qty)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	return wrap("redisx.CartStore.SetLine", err)
}

func (s *CartStore) DeleteLines(ctx context.Context, owner string, productIDs ...string) error {
	if len(productIDs) == 0 {
		return nil
	}
	err := s.rdb.HDel(ctx, fmt.Sprintf(KeyCart, owner), productIDs...).Err()
	return wrap("redisx.CartStore.DeleteLines", err)
}
