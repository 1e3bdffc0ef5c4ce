package cart

import (
	"context"
	"sync"

	"github.com/ariefcatur/go-storefront/internal/apperr"
)

// Store keeps cart lines per owner as product id -> quantity. A quantity is always
// positive; lines are removed rather than zeroed. The Engine serializes writes for
// one owner, so implementations only need per-call atomicity.
type Store interface {
	Lines(ctx context.Context, owner string) (map[string]int, error)
	SetLine(ctx context.Context, owner, productID string, qty int) error
	DeleteLines(ctx context.Context, owner string, productIDs ...string) error
}

// Locker serializes read-modify-write sequences on one owner's cart.
type Locker interface {
	Lock(ctx context.Context, owner string) (unlock func(), err error)
}

// LocalLocker is an in-process keyed lock. Entries disappear once nobody waits on them.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	sem  chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*ownerLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, owner string) (func(), error) {
	l.mu.Lock()
	ol, ok := l.locks[owner]
	if !ok {
		ol = &ownerLock{sem: make(chan struct{}, 1)}
		l.locks[owner] = ol
	}
	ol.refs++
	l.mu.Unlock()

	select {
	case ol.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(owner, ol)
		return nil, &apperr.Error{Kind: apperr.KindStoreUnavailable, Op: "cart.Lock", Msg: "owner lock", Err: ctx.Err()}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-ol.sem
			l.release(owner, ol)
		})
	}, nil
}

func (l *LocalLocker) release(owner string, ol *ownerLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ol.refs--
	if ol.refs == 0 {
		delete(l.locks, owner)
	}
}
