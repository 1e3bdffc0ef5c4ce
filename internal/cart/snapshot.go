package cart

import (
	"context"
	"errors"
	"iter"
	"maps"
	"slices"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/shopspring/decimal"
)

// Line is one cart line joined with live catalog data.
type Line struct {
	ProductID   string          `json:"product_id"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Available   int             `json:"available"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	Unavailable bool            `json:"unavailable,omitempty"`
}

// Short reports whether current stock no longer covers the line.
func (l Line) Short() bool { return l.Quantity > l.Available }

// Snapshot is the owner's cart as of the call that produced it. Product data is not
// captured: every pass over Items reads the catalog again.
type Snapshot struct {
	Owner   string
	ids     []string
	qty     map[string]int
	catalog catalog.Reader
}

func newSnapshot(owner string, lines map[string]int, cat catalog.Reader) *Snapshot {
	qty := maps.Clone(lines)
	if qty == nil {
		qty = map[string]int{}
	}
	return &Snapshot{
		Owner:   owner,
		ids:     slices.Sorted(maps.Keys(qty)),
		qty:     qty,
		catalog: cat,
	}
}

func (s *Snapshot) Empty() bool { return len(s.ids) == 0 }

// Quantities returns a copy of product id -> quantity.
func (s *Snapshot) Quantities() map[string]int { return maps.Clone(s.qty) }

// Items yields lines in product id order. Missing or inactive products come out as
// unavailable lines with zero stock. A catalog failure is yielded once and ends the
// sequence.
func (s *Snapshot) Items(ctx context.Context) iter.Seq2[Line, error] {
	return func(yield func(Line, error) bool) {
		for _, id := range s.ids {
			l := Line{ProductID: id, Quantity: s.qty[id], UnitPrice: decimal.Zero, Subtotal: decimal.Zero}
			p, err := s.catalog.GetProduct(ctx, id)
			switch {
			case errors.Is(err, apperr.ErrNotFound):
				l.Unavailable = true
			case err != nil:
				yield(Line{}, err)
				return
			case !p.Purchasable():
				l.Name, l.UnitPrice, l.Unavailable = p.Name, p.Price, true
			default:
				l.Name = p.Name
				l.UnitPrice = p.Price
				l.Available = p.Stock
				l.Subtotal = p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
			}
			if !yield(l, nil) {
				return
			}
		}
	}
}

// View is a fully materialized pass over a Snapshot.
type View struct {
	Owner     string            `json:"owner"`
	Lines     []Line            `json:"lines"`
	Subtotal  decimal.Decimal   `json:"subtotal"`
	ItemCount int               `json:"item_count"`
	Conflicts []apperr.Conflict `json:"conflicts,omitempty"`
}

func (s *Snapshot) Collect(ctx context.Context) (View, error) {
	v := View{Owner: s.Owner, Lines: make([]Line, 0, len(s.ids)), Subtotal: decimal.Zero}
	for l, err := range s.Items(ctx) {
		if err != nil {
			return View{}, err
		}
		v.Lines = append(v.Lines, l)
		v.ItemCount += l.Quantity
		v.Subtotal = v.Subtotal.Add(l.Subtotal)
		if l.Short() {
			v.Conflicts = append(v.Conflicts, apperr.Conflict{ProductID: l.ProductID, Requested: l.Quantity, Available: l.Available})
		}
	}
	return v, nil
}

// ItemCount is the sum of line quantities.
func ItemCount(lines map[string]int) int {
	n := 0
	for _, q := range lines {
		n += q
	}
	return n
}
