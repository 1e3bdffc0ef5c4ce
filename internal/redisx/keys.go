package redisx

import "time"

const (
	// Cart lines: hash cart:{owner} field product_id -> quantity
	KeyCart = "cart:%s"

	// Owner lock held across a cart read-modify-write or a checkout: lock:cart:{owner} -> token
	KeyCartLock = "lock:cart:%s"

	// Checkout idempotency: idem:checkout:{owner}:{key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
	TTLCartLock    = 30 * time.Second
)
