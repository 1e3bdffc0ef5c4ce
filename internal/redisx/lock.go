package redisx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Deletes the lock only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extends the lease only if we still own the lock.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// OwnerLocker is a cart.Locker shared by every API replica. A live holder renews its
// lease every lease/3, so a checkout waiting on a slow payment provider keeps the
// lock; the lease only bounds how long a crashed holder can block an owner.
type OwnerLocker struct {
	rdb   *redis.Client
	lease time.Duration
	poll  time.Duration
	log   *slog.Logger
}

func NewOwnerLocker(rdb *redis.Client, log *slog.Logger) *OwnerLocker {
	if log == nil {
		log = slog.Default()
	}
	return &OwnerLocker{rdb: rdb, lease: TTLCartLock, poll: 25 * time.Millisecond, log: log}
}

func (l *OwnerLocker) Lock(ctx context.Context, owner string) (func(), error) {
	const op = "redisx.OwnerLocker.Lock"
	key := fmt.Sprintf(KeyCartLock, owner)
	token := uuid.NewString()

	wait := l.poll
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.lease).Result()
		if err != nil {
			return nil, wrap(op, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &apperr.Error{Kind: apperr.KindStoreUnavailable, Op: op, Msg: "owner lock", Err: ctx.Err()}
		case <-time.After(wait):
		}
		if wait < 250*time.Millisecond {
			wait *= 2
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(context.WithoutCancel(ctx), owner, key, token, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release even when the caller's context is already gone.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(rctx, l.rdb, []string{key}, token).Err(); err != nil {
				l.log.Warn("release cart lock", "owner", owner, "err", err)
			}
		})
	}, nil
}

func (l *OwnerLocker) renew(ctx context.Context, owner, key, token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.lease / 3)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
		}
		rctx, cancel := context.WithTimeout(ctx, l.lease/3)
		n, err := renewScript.Run(rctx, l.rdb, []string{key}, token, l.lease.Milliseconds()).Int()
		cancel()
		switch {
		case err != nil:
			l.log.Warn("renew cart lock", "owner", owner, "err", err)
		case n == 0:
			l.log.Error("cart lock lost before release", "owner", owner)
			return
		}
	}
}
