// Command notifier consumes order events from Kafka and hands each one to the
// notification sink exactly once per event id.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-storefront/internal/config"
	kafkax "github.com/ariefcatur/go-storefront/internal/kafka"
	"github.com/ariefcatur/go-storefront/internal/logging"
	"github.com/ariefcatur/go-storefront/internal/notify"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/redisx"
	"github.com/joho/godotenv"
	"github.com/segmentio/kafka-go"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.ServiceName+"-notifier", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		log.Error("redis", "err", err)
		os.Exit(1)
	}

	h := &handler{
		dedup: redisx.NewDedup(rdb, "notifier"),
		sink:  notify.LogSink{Log: log},
		log:   log,
	}
	topics := []string{orders.TopicOrderPlaced, orders.TopicOrderStatus}
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, topics, cfg.NotifierWorkers, log)

	log.Info("notifier consumer started", "group", cfg.NotifierGroup, "topics", topics, "workers", cfg.NotifierWorkers)
	if err := cons.Start(ctx, h.handle); err != nil {
		log.Error("consumer exit", "err", err)
		os.Exit(1)
	}
	log.Info("notifier stopped")
}

type handler struct {
	dedup *redisx.Dedup
	sink  notify.Sink
	log   *slog.Logger
}

func (h *handler) handle(ctx context.Context, m kafka.Message) error {
	ctx = kafkax.ExtractHeaders(ctx, m.Headers)

	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		// Poison message: retrying cannot fix it.
		h.log.Error("bad envelope", "topic", m.Topic, "offset", m.Offset, "err", err)
		return nil
	}

	first, err := h.dedup.FirstSeen(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		h.log.Debug("duplicate event skipped", "event_id", env.EventID)
		return nil
	}

	ev, err := kafkax.UnwrapPayload[orders.Event](env.Payload)
	if err != nil {
		h.log.Error("bad payload", "event_id", env.EventID, "event_type", env.EventType, "err", err)
		return nil
	}
	if err := h.sink.Deliver(ctx, ev); err != nil {
		if ferr := h.dedup.Forget(ctx, env.EventID); ferr != nil {
			h.log.Warn("forget event", "event_id", env.EventID, "err", ferr)
		}
		return err
	}
	return nil
}
