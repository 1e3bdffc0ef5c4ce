package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/shopspring/decimal"
)

func TestManualCharge(t *testing.T) {
	ref, err := Manual{}.Charge(context.Background(), Charge{Method: orders.PaymentBkash, Token: " TX123 "})
	if err != nil {
		t.Fatal(err)
	}
	if ref != "bkash:TX123" {
		t.Fatalf("ref = %q", ref)
	}

	_, err = Manual{}.Charge(context.Background(), Charge{Method: orders.PaymentNagad})
	if !errors.Is(err, apperr.ErrPaymentDeclined) {
		t.Fatalf("want declined, got %v", err)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{
		"12.34":  1234,
		"0.005":  1,
		"100":    10000,
		"19.999": 2000,
	}
	for in, want := range cases {
		got := MinorUnits(Charge{Amount: decimal.RequireFromString(in)})
		if got != want {
			t.Errorf("MinorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}

func TestStripeWalletsBypassProvider(t *testing.T) {
	s := &Stripe{Currency: "usd"}
	ref, err := s.Charge(context.Background(), Charge{Method: orders.PaymentNagad, Token: "N-1"})
	if err != nil || ref != "nagad:N-1" {
		t.Fatalf("got %q %v", ref, err)
	}
	if err := s.Refund(context.Background(), &orders.Order{PaymentRef: "nagad:N-1"}); err != nil {
		t.Fatal(err)
	}
	_, err = s.Charge(context.Background(), Charge{Method: orders.PaymentCard})
	if !errors.Is(err, apperr.ErrPaymentDeclined) {
		t.Fatalf("card without token: %v", err)
	}
}
