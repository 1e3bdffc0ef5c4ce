// Package notify delivers order events to the outside world without ever making the
// caller wait for it.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/orders"
)

// Sink delivers one event. Errors are logged by the Dispatcher and go no further.
type Sink interface {
	Deliver(ctx context.Context, ev orders.Event) error
}

type DropRecorder interface {
	NotificationDropped()
}

type Options struct {
	Workers int
	Queue   int
	Timeout time.Duration
	Log     *slog.Logger
	Drops   DropRecorder
}

type job struct {
	ctx context.Context
	ev  orders.Event
}

// Dispatcher implements orders.Notifier on a bounded worker pool. When the queue is
// full the event is dropped and logged.
type Dispatcher struct {
	sink    Sink
	jobs    chan job
	timeout time.Duration
	log     *slog.Logger
	drops   DropRecorder

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(sink Sink, opt Options) *Dispatcher {
	if opt.Workers <= 0 {
		opt.Workers = 4
	}
	if opt.Queue <= 0 {
		opt.Queue = 256
	}
	if opt.Timeout <= 0 {
		opt.Timeout = 5 * time.Second
	}
	if opt.Log == nil {
		opt.Log = slog.Default()
	}
	d := &Dispatcher{
		sink:    sink,
		jobs:    make(chan job, opt.Queue),
		timeout: opt.Timeout,
		log:     opt.Log,
		drops:   opt.Drops,
	}
	for i := 0; i < opt.Workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *Dispatcher) Notify(ctx context.Context, ev orders.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ev, "dispatcher closed")
		return
	}
	select {
	case d.jobs <- job{ctx: context.WithoutCancel(ctx), ev: ev}:
	default:
		d.drop(ev, "queue full")
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
		if err := d.sink.Deliver(ctx, j.ev); err != nil {
			d.log.Error("notification failed",
				"event_id", j.ev.ID, "event_type", j.ev.Type, "order_id", j.ev.Order.OrderID, "err", err)
		}
		cancel()
	}
}

func (d *Dispatcher) drop(ev orders.Event, reason string) {
	d.log.Warn("notification dropped", "event_id", ev.ID, "event_type", ev.Type, "order_id", ev.Order.OrderID, "reason", reason)
	if d.drops != nil {
		d.drops.NotificationDropped()
	}
}

// Close stops intake and waits for queued events to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
