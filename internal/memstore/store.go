// Package memstore keeps the catalog, orders and reviews in process memory behind
// one mutex. It backs STORE_BACKEND=memory and the package tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/review"
	"github.com/google/uuid"
)

type Store struct {
	mu       sync.Mutex
	products map[string]catalog.Product
	orders   map[string]orders.Order
	numbers  map[string]bool
	reviews  map[string][]review.Review // by product id
	now      func() time.Time
}

func New() *Store {
	return &Store{
		products: map[string]catalog.Product{},
		orders:   map[string]orders.Order{},
		numbers:  map[string]bool{},
		reviews:  map[string][]review.Review{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts products as-is, without validation. Tests and local runs use it.
func (s *Store) Seed(ps ...catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range ps {
		if p.Status == "" {
			p.Status = catalog.StatusActive
		}
		s.products[p.ID] = p
	}
}

// --- catalog.Store

func (s *Store) GetProduct(_ context.Context, id string) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, apperr.E(apperr.KindNotFound, "memstore.GetProduct", "product %s", id)
	}
	return p, nil
}

func (s *Store) ListProducts(_ context.Context) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b catalog.Product) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *Store) SaveProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	if err := p.Validate(); err != nil {
		return catalog.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if prev, ok := s.products[p.ID]; ok {
		p.CreatedAt = prev.CreatedAt
	} else {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p, nil
}

func (s *Store) AdjustStock(_ context.Context, id string, delta int) (int, error) {
	const op = "memstore.AdjustStock"
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return 0, apperr.E(apperr.KindNotFound, op, "product %s", id)
	}
	if p.Stock+delta < 0 {
		return 0, &apperr.Error{
			Kind:      apperr.KindInsufficientStock,
			Op:        op,
			Msg:       "not enough stock for " + id,
			Conflicts: []apperr.Conflict{{ProductID: id, Requested: -delta, Available: p.Stock}},
		}
	}
	p.Stock += delta
	p.UpdatedAt = s.now()
	s.products[id] = p
	return p.Stock, nil
}

// --- checkout.Ledger

// PlaceOrder checks every line before touching any stock, so a short line leaves
// the catalog exactly as it was.
func (s *Store) PlaceOrder(_ context.Context, o orders.Order) (orders.Order, error) {
	const op = "memstore.PlaceOrder"
	s.mu.Lock()
	defer s.mu.Unlock()

	var conflicts []apperr.Conflict
	for _, l := range o.Lines {
		p, ok := s.products[l.ProductID]
		switch {
		case !ok || !p.Purchasable():
			conflicts = append(conflicts, apperr.Conflict{ProductID: l.ProductID, Requested: l.Quantity})
		case p.Stock < l.Quantity:
			conflicts = append(conflicts, apperr.Conflict{ProductID: l.ProductID, Requested: l.Quantity, Available: p.Stock})
		}
	}
	if len(conflicts) > 0 {
		return orders.Order{}, apperr.StockConflict(op, conflicts)
	}

	now := s.now()
	for _, l := range o.Lines {
		p := s.products[l.ProductID]
		p.Stock -= l.Quantity
		p.UpdatedAt = now
		s.products[l.ProductID] = p
	}
	for s.numbers[o.Number] {
		o.Number = orders.NewNumber(o.CreatedAt)
	}
	s.numbers[o.Number] = true
	s.orders[o.ID] = o.Clone()
	return o.Clone(), nil
}

// --- orders.Repository

func (s *Store) GetOrder(_ context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.E(apperr.KindNotFound, "memstore.GetOrder", "order %s", id)
	}
	return o.Clone(), nil
}

func (s *Store) ListOrders(_ context.Context, owner string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for _, o := range s.orders {
		if o.Owner == owner {
			out = append(out, o.Clone())
		}
	}
	slices.SortFunc(out, func(a, b orders.Order) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *Store) ApplyChange(_ context.Context, id string, c orders.Change) (orders.Order, error) {
	const op = "memstore.ApplyChange"
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return orders.Order{}, apperr.E(apperr.KindNotFound, op, "order %s", id)
	}
	if o.Status != c.From {
		return orders.Order{}, apperr.E(apperr.KindInvalidTransition, op, "order %s is %s, expected %s", id, o.Status, c.From)
	}
	if c.Restock {
		for _, l := range o.Lines {
			// Products deleted since the order was placed are skipped.
			if p, ok := s.products[l.ProductID]; ok {
				p.Stock += l.Quantity
				p.UpdatedAt = c.At
				s.products[l.ProductID] = p
			}
		}
	}
	c.Apply(&o)
	s.orders[id] = o
	return o.Clone(), nil
}

// --- review.Repository

func (s *Store) CreateReview(_ context.Context, r review.Review) (review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reviews[r.ProductID] {
		if existing.Owner == r.Owner {
			return review.Review{}, apperr.E(apperr.KindAlreadyExists, "memstore.CreateReview",
				"%s already reviewed product %s", r.Owner, r.ProductID)
		}
	}
	s.reviews[r.ProductID] = append(s.reviews[r.ProductID], r)
	return r, nil
}

func (s *Store) ListReviews(_ context.Context, productID string) ([]review.Review, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Clone(s.reviews[productID])
	slices.SortFunc(out, func(a, b review.Review) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}
