package orders

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository persists orders. ApplyChange must be atomic: it fails with
// apperr.ErrInvalidTransition when the stored status is no longer c.From, and when
// c.Restock is set it returns every line's quantity to the catalog in the same unit.
type Repository interface {
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, owner string) ([]Order, error)
	ApplyChange(ctx context.Context, id string, c Change) (Order, error)
}

// Refunder returns money captured at checkout.
type Refunder interface {
	Refund(ctx context.Context, o *Order) error
}

type Recorder interface {
	TransitionRecorded(to Status)
}

// Service is the Order State Machine.
type Service struct {
	Repo     Repository
	Refunds  Refunder
	Notifier Notifier
	Metrics  Recorder
	Log      *slog.Logger
	Now      func() time.Time
}

var tracer = otel.Tracer("storefront/orders")

func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.Repo.GetOrder(ctx, id)
}

func (s *Service) ListByOwner(ctx context.Context, owner string) ([]Order, error) {
	return s.Repo.ListOrders(ctx, owner)
}

// IsEligibleForReview is true only for delivered orders.
func (s *Service) IsEligibleForReview(ctx context.Context, id string) (bool, error) {
	o, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return false, err
	}
	return o.Status == StatusDelivered, nil
}

// Transition moves an order to target on behalf of actor.
func (s *Service) Transition(ctx context.Context, id string, target Status, actor, note string) (Order, error) {
	const op = "orders.Transition"
	ctx, span := tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order.id", id),
		attribute.String("order.target", string(target)),
	))
	defer span.End()

	o, err := s.transition(ctx, id, target, strings.TrimSpace(actor), note)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
		return Order{}, err
	}
	return o, nil
}

func (s *Service) transition(ctx context.Context, id string, target Status, actor, note string) (Order, error) {
	const op = "orders.Transition"
	if _, ok := validNext[target]; !ok {
		return Order{}, apperr.E(apperr.KindInvalidTransition, op, "unknown status %q", target)
	}
	if actor == "" {
		return Order{}, apperr.E(apperr.KindInvalidInput, op, "actor is required")
	}

	o, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if !o.CanMoveTo(target) {
		return Order{}, apperr.E(apperr.KindInvalidTransition, op, "%s -> %s", o.Status, target)
	}

	c := Change{
		From:    o.Status,
		To:      target,
		Actor:   actor,
		Note:    note,
		At:      s.now(),
		Restock: RestocksOnEntry(target),
	}
	refunded := false
	switch target {
	case StatusDelivered:
		if o.PaymentMethod == PaymentCOD && o.PaymentStatus == PaymentPending {
			c.PaymentStatus = PaymentPaid
		}
	case StatusRefunded:
		if o.PaymentRef != "" && s.Refunds != nil {
			if err := s.Refunds.Refund(ctx, &o); err != nil {
				return Order{}, &apperr.Error{Kind: apperr.KindPaymentDeclined, Op: op, Msg: "refund failed", Err: err}
			}
			refunded = true
		}
		c.PaymentStatus = PaymentRefunded
	}

	updated, err := s.Repo.ApplyChange(ctx, id, c)
	if err != nil {
		if refunded {
			// The money is back but the order is not REFUNDED. Retrying the transition
			// is safe: gateways key refunds by order id.
			s.logger().Error("refund issued but status change not stored",
				"order_id", id, "payment_ref", o.PaymentRef, "from", c.From, "err", err)
		}
		return Order{}, err
	}

	s.logger().Info("order transitioned",
		"order_id", id, "from", c.From, "to", c.To, "actor", actor, "restocked", c.Restock)
	if s.Metrics != nil {
		s.Metrics.TransitionRecorded(target)
	}
	entry := c.Entry()
	s.notifier().Notify(ctx, Event{
		ID:         uuid.NewString(),
		Type:       EventOrderStatusChanged,
		OccurredAt: c.At,
		Order:      Summarize(&updated),
		Change:     &entry,
	})
	return updated, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Service) notifier() Notifier {
	if s.Notifier != nil {
		return s.Notifier
	}
	return NopNotifier{}
}
