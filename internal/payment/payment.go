// Package payment charges prepaid orders at checkout and refunds them later.
package payment

import (
	"context"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/shopspring/decimal"
)

type Charge struct {
	OrderID  string
	Owner    string
	Amount   decimal.Decimal
	Currency string
	Method   orders.PaymentMethod
	Token    string // card payment method id or wallet transaction id
}

// Gateway is the pluggable payment capability. Charge returns a provider reference
// or an apperr.ErrPaymentDeclined error; Refund is keyed by the order's reference.
type Gateway interface {
	Charge(ctx context.Context, c Charge) (string, error)
	Refund(ctx context.Context, o *orders.Order) error
}

// Manual records wallet and card payments confirmed out of band: the token is the
// transaction id the customer supplied, and refunds are settled by staff.
type Manual struct{}

func (Manual) Charge(_ context.Context, c Charge) (string, error) {
	token := strings.TrimSpace(c.Token)
	if token == "" {
		return "", apperr.E(apperr.KindPaymentDeclined, "payment.Manual", "%s payment needs a transaction id", c.Method)
	}
	return strings.ToLower(string(c.Method)) + ":" + token, nil
}

func (Manual) Refund(context.Context, *orders.Order) error { return nil }
