package payment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentintent"
	"github.com/stripe/stripe-go/v81/refund"
)

// Stripe charges cards with a confirmed PaymentIntent. Only CARD orders go through
// Stripe; wallet payments fall back to Manual.
type Stripe struct {
	Currency string
	Log      *slog.Logger
	wallets  Manual
}

func NewStripe(key, currency string, log *slog.Logger) *Stripe {
	stripe.Key = key
	return &Stripe{Currency: strings.ToLower(currency), Log: log}
}

func (s *Stripe) Charge(ctx context.Context, c Charge) (string, error) {
	const op = "payment.Stripe.Charge"
	if c.Method != orders.PaymentCard {
		return s.wallets.Charge(ctx, c)
	}
	if strings.TrimSpace(c.Token) == "" {
		return "", apperr.E(apperr.KindPaymentDeclined, op, "card payment method is required")
	}

	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(MinorUnits(c)),
		Currency:      stripe.String(s.Currency),
		PaymentMethod: stripe.String(c.Token),
		Confirm:       stripe.Bool(true),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("charge-" + c.OrderID)
	params.AddMetadata("order_id", c.OrderID)
	params.AddMetadata("owner", c.Owner)

	pi, err := paymentintent.New(params)
	if err != nil {
		return "", s.classify(op, err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return "", apperr.E(apperr.KindPaymentDeclined, op, "payment intent %s is %s", pi.ID, pi.Status)
	}
	return pi.ID, nil
}

func (s *Stripe) Refund(ctx context.Context, o *orders.Order) error {
	const op = "payment.Stripe.Refund"
	if !strings.HasPrefix(o.PaymentRef, "pi_") {
		return s.wallets.Refund(ctx, o)
	}
	params := &stripe.RefundParams{PaymentIntent: stripe.String(o.PaymentRef)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + o.ID)
	if _, err := refund.New(params); err != nil {
		return s.classify(op, err)
	}
	s.logger().Info("stripe refund issued", "order_id", o.ID, "payment_ref", o.PaymentRef)
	return nil
}

func (s *Stripe) classify(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && se.Type == stripe.ErrorTypeCard {
		return &apperr.Error{Kind: apperr.KindPaymentDeclined, Op: op, Msg: se.Msg, Err: err}
	}
	s.logger().Error("stripe call failed", "op", op, "err", err)
	return &apperr.Error{Kind: apperr.KindStoreUnavailable, Op: op, Msg: "payment provider unavailable", Err: err}
}

func (s *Stripe) logger() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// MinorUnits converts the charge amount to the smallest currency unit, rounding
// half away from zero.
func MinorUnits(c Charge) int64 {
	return c.Amount.Shift(2).Round(0).IntPart()
}
