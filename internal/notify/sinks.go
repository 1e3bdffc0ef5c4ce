package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// LogSink writes the event to the log. The notifier process uses it as the hand-off
// point to the external mailer.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Deliver(_ context.Context, ev orders.Event) error {
	log := s.Log
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{
		"event_id", ev.ID,
		"event_type", ev.Type,
		"order_id", ev.Order.OrderID,
		"number", ev.Order.Number,
		"owner", ev.Order.Owner,
		"status", ev.Order.Status,
		"items", ev.Order.ItemCount,
		"total", ev.Order.Total.String(),
	}
	if ev.Change != nil {
		attrs = append(attrs, "from", ev.Change.From, "actor", ev.Change.Actor)
	}
	log.Info("order notification", attrs...)
	return nil
}

type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header) error
}

// KafkaSink publishes the event in a v1 envelope keyed by order id, so each order's
// events stay ordered within a partition.
type KafkaSink struct {
	Producer Publisher
	Service  string
}

func (s KafkaSink) Deliver(ctx context.Context, ev orders.Event) error {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	env, err := kafka.Wrap(ev.ID, ev.Type, s.Service, ev.Order.OrderID, traceID, ev.OccurredAt, ev)
	if err != nil {
		return err
	}
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return s.Producer.Publish(orders.TopicFor(ev.Type), orders.PartitionKey(ev.Order.OrderID), value, kafka.InjectHeaders(ctx, nil)...)
}
