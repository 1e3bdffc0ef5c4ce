package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Brand       string          `json:"brand,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Featured    bool            `json:"featured"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Purchasable reports whether the product may be put in a cart at all.
func (p Product) Purchasable() bool { return p.Status != StatusInactive }

// Validate checks the seller-supplied fields before a save.
func (p *Product) Validate() error {
	const op = "catalog.Validate"
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return apperr.E(apperr.KindInvalidInput, op, "name is required")
	}
	if p.Price.IsNegative() {
		return apperr.E(apperr.KindInvalidInput, op, "price must be >= 0")
	}
	if p.Stock < 0 {
		return apperr.E(apperr.KindInvalidQuantity, op, "stock must be >= 0")
	}
	switch p.Status {
	case "":
		p.Status = StatusActive
	case StatusActive, StatusInactive:
	default:
		return apperr.E(apperr.KindInvalidInput, op, "unknown status %q", p.Status)
	}
	return nil
}

// Reader is the slice of the catalog the cart engine needs.
type Reader interface {
	GetProduct(ctx context.Context, id string) (Product, error)
}

// Store is the Catalog Store. GetProduct reports apperr.ErrNotFound for unknown ids.
// AdjustStock applies delta atomically and fails with apperr.ErrInsufficientStock
// instead of letting stock drop below zero.
type Store interface {
	Reader
	ListProducts(ctx context.Context) ([]Product, error)
	SaveProduct(ctx context.Context, p Product) (Product, error)
	AdjustStock(ctx context.Context, id string, delta int) (int, error)
}
