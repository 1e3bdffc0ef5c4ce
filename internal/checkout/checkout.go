// Package checkout turns an owner's cart into a placed order.
package checkout

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/payment"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Ledger commits an order. PlaceOrder decrements stock by each line's quantity only
// where stock covers it and stores the order, all in one atomic unit: if any line is
// short nothing changes and the error is an apperr StockConflict naming every short
// product. The ledger may replace o.Number if it collides.
type Ledger interface {
	PlaceOrder(ctx context.Context, o orders.Order) (orders.Order, error)
	GetOrder(ctx context.Context, id string) (orders.Order, error)
}

// Replays maps an owner's idempotency key to the order it produced.
type Replays interface {
	Lookup(ctx context.Context, owner, key string) (orderID string, found bool, err error)
	Remember(ctx context.Context, owner, key, orderID string) error
}

type Recorder interface {
	CheckoutRecorded(result string)
}

type Request struct {
	Owner           string
	PaymentMethod   orders.PaymentMethod
	PaymentToken    string
	ShippingAddress string
	BillingAddress  string
	Notes           string
	IdempotencyKey  string
}

type Orchestrator struct {
	Carts    *cart.Engine
	Ledger   Ledger
	Payments payment.Gateway
	Notifier orders.Notifier
	Replays  Replays
	Metrics  Recorder
	Currency string
	Log      *slog.Logger
	Now      func() time.Time
}

var tracer = otel.Tracer("storefront/checkout")

// Checkout results as reported to Recorder.
const (
	ResultPlaced   = "placed"
	ResultReplayed = "replayed"
	ResultEmpty    = "empty_cart"
	ResultConflict = "stock_conflict"
	ResultDeclined = "payment_declined"
	ResultFailed   = "failed"
)

func (c *Orchestrator) Checkout(ctx context.Context, req Request) (orders.Order, error) {
	ctx, span := tracer.Start(ctx, "checkout.Checkout")
	defer span.End()
	span.SetAttributes(attribute.String("owner", req.Owner), attribute.String("payment.method", string(req.PaymentMethod)))

	o, replayed, err := c.checkout(ctx, req)
	result := ResultPlaced
	switch {
	case err != nil:
		result = resultOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	case replayed:
		result = ResultReplayed
	default:
		span.SetAttributes(attribute.String("order.id", o.ID))
	}
	if c.Metrics != nil {
		c.Metrics.CheckoutRecorded(result)
	}
	return o, err
}

func (c *Orchestrator) checkout(ctx context.Context, req Request) (orders.Order, bool, error) {
	const op = "checkout.Checkout"
	if req.PaymentMethod == "" {
		req.PaymentMethod = orders.PaymentCOD
	}
	method, ok := orders.ParsePaymentMethod(string(req.PaymentMethod))
	if !ok {
		return orders.Order{}, false, apperr.E(apperr.KindInvalidInput, op, "unknown payment method %q", req.PaymentMethod)
	}
	req.PaymentMethod = method

	held, err := c.Carts.Hold(ctx, req.Owner)
	if err != nil {
		return orders.Order{}, false, err
	}
	defer held.Release()

	if o, ok, err := c.replay(ctx, req); err != nil || ok {
		return o, ok, err
	}

	snap, err := held.Snapshot(ctx)
	if err != nil {
		return orders.Order{}, false, err
	}
	if snap.Empty() {
		return orders.Order{}, false, apperr.E(apperr.KindEmptyCart, op, "cart is empty")
	}
	view, err := snap.Collect(ctx)
	if err != nil {
		return orders.Order{}, false, err
	}
	if len(view.Conflicts) > 0 {
		return orders.Order{}, false, apperr.StockConflict(op, view.Conflicts)
	}

	o := c.draft(req, view)
	if req.PaymentMethod.Prepaid() {
		ref, err := c.gateway().Charge(ctx, payment.Charge{
			OrderID:  o.ID,
			Owner:    o.Owner,
			Amount:   o.Total,
			Currency: c.Currency,
			Method:   o.PaymentMethod,
			Token:    req.PaymentToken,
		})
		if err != nil {
			return orders.Order{}, false, err
		}
		o.PaymentRef = ref
		o.PaymentStatus = orders.PaymentPaid
	}

	placed, err := c.Ledger.PlaceOrder(ctx, o)
	if err != nil {
		if o.PaymentRef != "" {
			c.compensate(ctx, &o)
		}
		return orders.Order{}, false, err
	}

	// Past the commit point the request context no longer matters.
	after := context.WithoutCancel(ctx)
	if err := held.ClearOrdered(after, snap.Quantities()); err != nil {
		c.logger().Error("clear cart after checkout", "owner", req.Owner, "order_id", placed.ID, "err", err)
	}
	if req.IdempotencyKey != "" && c.Replays != nil {
		if err := c.Replays.Remember(after, req.Owner, req.IdempotencyKey, placed.ID); err != nil {
			c.logger().Warn("remember checkout key", "owner", req.Owner, "order_id", placed.ID, "err", err)
		}
	}

	c.logger().Info("order placed",
		"order_id", placed.ID, "number", placed.Number, "owner", placed.Owner,
		"items", placed.ItemCount(), "total", placed.Total.String(), "payment_method", placed.PaymentMethod)
	c.notifier().Notify(after, orders.Event{
		ID:         uuid.NewString(),
		Type:       orders.EventOrderPlaced,
		OccurredAt: placed.CreatedAt,
		Order:      orders.Summarize(&placed),
	})
	return placed, false, nil
}

func (c *Orchestrator) replay(ctx context.Context, req Request) (orders.Order, bool, error) {
	if req.IdempotencyKey == "" || c.Replays == nil {
		return orders.Order{}, false, nil
	}
	id, found, err := c.Replays.Lookup(ctx, req.Owner, req.IdempotencyKey)
	if err != nil || !found {
		return orders.Order{}, false, err
	}
	o, err := c.Ledger.GetOrder(ctx, id)
	if err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func (c *Orchestrator) draft(req Request, view cart.View) orders.Order {
	now := c.now()
	lines := make([]orders.Line, 0, len(view.Lines))
	for _, l := range view.Lines {
		lines = append(lines, orders.Line{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
		})
	}
	return orders.Order{
		ID:              uuid.NewString(),
		Number:          orders.NewNumber(now),
		Owner:           req.Owner,
		Lines:           lines,
		Total:           orders.SumLines(lines),
		Status:          orders.StatusPlaced,
		PaymentMethod:   req.PaymentMethod,
		PaymentStatus:   orders.PaymentPending,
		ShippingAddress: strings.TrimSpace(req.ShippingAddress),
		BillingAddress:  strings.TrimSpace(req.BillingAddress),
		Notes:           strings.TrimSpace(req.Notes),
		History:         []orders.HistoryEntry{{To: orders.StatusPlaced, Actor: req.Owner, At: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// compensate refunds a charge whose order never committed.
func (c *Orchestrator) compensate(ctx context.Context, o *orders.Order) {
	if err := c.gateway().Refund(context.WithoutCancel(ctx), o); err != nil {
		c.logger().Error("refund after failed commit", "order_id", o.ID, "payment_ref", o.PaymentRef, "err", err)
		return
	}
	c.logger().Warn("charge refunded after failed commit", "order_id", o.ID, "payment_ref", o.PaymentRef)
}

func resultOf(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindEmptyCart:
		return ResultEmpty
	case apperr.KindStockConflict:
		return ResultConflict
	case apperr.KindPaymentDeclined:
		return ResultDeclined
	}
	return ResultFailed
}

func (c *Orchestrator) gateway() payment.Gateway {
	if c.Payments != nil {
		return c.Payments
	}
	return payment.Manual{}
}

func (c *Orchestrator) notifier() orders.Notifier {
	if c.Notifier != nil {
		return c.Notifier
	}
	return orders.NopNotifier{}
}

func (c *Orchestrator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}

func (c *Orchestrator) logger() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
