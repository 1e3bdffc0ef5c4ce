package redisx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/redis/go-redis/v9"
)

// Replays is the checkout idempotency store.
type Replays struct {
	rdb *redis.Client
}

func NewReplays(rdb *redis.Client) *Replays { return &Replays{rdb: rdb} }

func (r *Replays) Lookup(ctx context.Context, owner, key string) (string, bool, error) {
	id, err := r.rdb.Get(ctx, fmt.Sprintf(KeyIdemCheckout, owner, key)).Result()
	if missing(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrap("redisx.Replays.Lookup", err)
	}
	return id, true, nil
}

func (r *Replays) Remember(ctx context.Context, owner, key, orderID string) error {
	err := r.rdb.Set(ctx, fmt.Sprintf(KeyIdemCheckout, owner, key), orderID, TTLIdempotency).Err()
	return wrap("redisx.Replays.Remember", err)
}

type CachedStatus struct {
	Owner         string               `json:"owner"`
	Status        orders.Status        `json:"status"`
	PaymentStatus orders.PaymentStatus `json:"payment_status"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// StatusCache is a read-through cache of order status for polling clients.
type StatusCache struct {
	rdb *redis.Client
}

func NewStatusCache(rdb *redis.Client) *StatusCache { return &StatusCache{rdb: rdb} }

func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	raw, err := c.rdb.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if missing(err) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, wrap("redisx.StatusCache.Get", err)
	}
	var st CachedStatus
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return CachedStatus{}, false, nil
	}
	return st, true, nil
}

func (c *StatusCache) Put(ctx context.Context, o *orders.Order) error {
	b, err := json.Marshal(CachedStatus{Owner: o.Owner, Status: o.Status, PaymentStatus: o.PaymentStatus, UpdatedAt: o.UpdatedAt})
	if err != nil {
		return err
	}
	return wrap("redisx.StatusCache.Put", c.rdb.Set(ctx, fmt.Sprintf(KeyOrderStatus, o.ID), b, TTLStatusCache).Err())
}

// Dedup remembers processed event ids per consuming service.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup { return &Dedup{rdb: rdb, service: service} }

// FirstSeen marks eventID as processed and reports whether this call was the first.
func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	ok, err := d.rdb.SetNX(ctx, fmt.Sprintf(KeyDedup, d.service, eventID), "1", TTLDedup).Result()
	if err != nil {
		return false, wrap("redisx.Dedup.FirstSeen", err)
	}
	return ok, nil
}

// Forget undoes FirstSeen so a failed delivery can be retried.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return wrap("redisx.Dedup.Forget", d.rdb.Del(ctx, fmt.Sprintf(KeyDedup, d.service, eventID)).Err())
}
