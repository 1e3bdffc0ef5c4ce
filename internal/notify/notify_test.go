package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
)

type blockingSink struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	got     []string
}

func (s *blockingSink) Deliver(ctx context.Context, ev orders.Event) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	<-s.release
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev.ID)
	return nil
}

type dropCounter struct{ n atomic.Int32 }

func (d *dropCounter) NotificationDropped() { d.n.Add(1) }

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	sink := &blockingSink{started: make(chan struct{}, 1), release: make(chan struct{})}
	drops := &dropCounter{}
	d := NewDispatcher(sink, Options{Workers: 1, Queue: 1, Drops: drops})

	ctx := context.Background()
	d.Notify(ctx, orders.Event{ID: "e1"})
	select {
	case <-sink.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}

	done := make(chan struct{})
	go func() {
		d.Notify(ctx, orders.Event{ID: "e2"}) // queued
		d.Notify(ctx, orders.Event{ID: "e3"}) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked")
	}

	close(sink.release)
	d.Close()

	if drops.n.Load() != 1 {
		t.Fatalf("drops = %d", drops.n.Load())
	}
	if len(sink.got) != 2 || sink.got[0] != "e1" || sink.got[1] != "e2" {
		t.Fatalf("delivered = %v", sink.got)
	}

	d.Notify(ctx, orders.Event{ID: "late"})
	if drops.n.Load() != 2 {
		t.Fatal("notify after close should drop")
	}
}

type failingSink struct{ calls atomic.Int32 }

func (f *failingSink) Deliver(context.Context, orders.Event) error {
	f.calls.Add(1)
	return errors.New("smtp down")
}

func TestDispatcherSwallowsSinkErrors(t *testing.T) {
	sink := &failingSink{}
	d := NewDispatcher(sink, Options{Workers: 2})
	for i := 0; i < 5; i++ {
		d.Notify(context.Background(), orders.Event{ID: "e"})
	}
	d.Close()
	if sink.calls.Load() != 5 {
		t.Fatalf("calls = %d", sink.calls.Load())
	}
}

type capture struct {
	topic string
	key   []byte
	value []byte
}

func (c *capture) Publish(topic string, key, value []byte, _ ...kafkago.Header) error {
	c.topic, c.key, c.value = topic, key, value
	return nil
}

func TestKafkaSinkEnvelope(t *testing.T) {
	pub := &capture{}
	sink := KafkaSink{Producer: pub, Service: "storefront-api"}
	ev := orders.Event{
		ID:         "ev-1",
		Type:       orders.EventOrderStatusChanged,
		OccurredAt: time.Now(),
		Order:      orders.Summary{OrderID: "o-9", Status: orders.StatusShipped},
		Change:     &orders.HistoryEntry{From: orders.StatusConfirmed, To: orders.StatusShipped, Actor: "staff"},
	}
	if err := sink.Deliver(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if pub.topic != orders.TopicOrderStatus || string(pub.key) != "o-9" {
		t.Fatalf("topic=%s key=%s", pub.topic, pub.key)
	}

	var env orders.Envelope
	if err := json.Unmarshal(pub.value, &env); err != nil {
		t.Fatal(err)
	}
	if env.EventID != "ev-1" || env.Producer != "storefront-api" || env.CorrelationID != "o-9" {
		t.Fatalf("envelope = %+v", env)
	}
	got, err := kafka.UnwrapPayload[orders.Event](env.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if got.Change == nil || got.Change.From != orders.StatusConfirmed {
		t.Fatalf("payload = %+v", got)
	}
}
