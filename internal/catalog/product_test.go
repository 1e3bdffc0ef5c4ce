package catalog

import (
	"testing"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/shopspring/decimal"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Product
		kind apperr.Kind
	}{
		{"ok", Product{Name: " Tee ", Price: decimal.RequireFromString("9.99"), Stock: 3}, apperr.KindUnknown},
		{"zero price and stock", Product{Name: "Free", Price: decimal.Zero}, apperr.KindUnknown},
		{"missing name", Product{Name: "  ", Price: decimal.NewFromInt(1)}, apperr.KindInvalidInput},
		{"negative price", Product{Name: "x", Price: decimal.NewFromInt(-1)}, apperr.KindInvalidInput},
		{"negative stock", Product{Name: "x", Stock: -1}, apperr.KindInvalidQuantity},
		{"bad status", Product{Name: "x", Status: "archived"}, apperr.KindInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.p
			err := p.Validate()
			if tc.kind == apperr.KindUnknown {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if p.Status != StatusActive {
					t.Fatalf("status defaulted to %q", p.Status)
				}
				return
			}
			if apperr.KindOf(err) != tc.kind {
				t.Fatalf("kind = %v, want %v (%v)", apperr.KindOf(err), tc.kind, err)
			}
		})
	}
}

func TestPurchasable(t *testing.T) {
	if !(Product{Status: StatusActive}).Purchasable() {
		t.Fatal("active must be purchasable")
	}
	if (Product{Status: StatusInactive}).Purchasable() {
		t.Fatal("inactive must not be purchasable")
	}
}
