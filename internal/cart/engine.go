// Package cart is the Cart Engine: per-owner cart mutation with a soft stock check.
// Carts are advisory; nothing is reserved until checkout commits.
package cart

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/catalog"
)

type Engine struct {
	catalog catalog.Reader
	store   Store
	locker  Locker
	log     *slog.Logger
}

func NewEngine(cat catalog.Reader, store Store, locker Locker, log *slog.Logger) *Engine {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Engine{catalog: cat, store: store, locker: locker, log: log}
}

// Result describes the line touched by a mutation and the cart afterwards.
type Result struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	ItemCount int    `json:"cart_count"`
}

// AddItem increments (or creates) the owner's line for productID by qty.
func (e *Engine) AddItem(ctx context.Context, owner, productID string, qty int) (Result, error) {
	const op = "cart.AddItem"
	if qty <= 0 {
		return Result{}, apperr.E(apperr.KindInvalidQuantity, op, "quantity must be > 0, got %d", qty)
	}
	unlock, err := e.lock(ctx, op, owner)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	p, err := e.product(ctx, op, productID)
	if err != nil {
		return Result{}, err
	}
	lines, err := e.store.Lines(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	next := lines[productID] + qty
	if qty > p.Stock || next > p.Stock {
		return Result{}, insufficient(op, productID, next, p.Stock)
	}
	if err := e.store.SetLine(ctx, owner, productID, next); err != nil {
		return Result{}, err
	}
	lines[productID] = next
	e.log.Debug("cart line added", "owner", owner, "product_id", productID, "quantity", next)
	return Result{ProductID: productID, Quantity: next, ItemCount: ItemCount(lines)}, nil
}

// UpdateQuantity sets the line to qty. Zero removes the line; a positive quantity
// requires the line to exist already.
func (e *Engine) UpdateQuantity(ctx context.Context, owner, productID string, qty int) (Result, error) {
	const op = "cart.UpdateQuantity"
	if qty < 0 {
		return Result{}, apperr.E(apperr.KindInvalidQuantity, op, "quantity must be >= 0, got %d", qty)
	}
	unlock, err := e.lock(ctx, op, owner)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	lines, err := e.store.Lines(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	if qty == 0 {
		return e.remove(ctx, owner, productID, lines)
	}
	if _, ok := lines[productID]; !ok {
		return Result{}, apperr.E(apperr.KindNotFound, op, "product %s is not in the cart", productID)
	}
	p, err := e.product(ctx, op, productID)
	if err != nil {
		return Result{}, err
	}
	if qty > p.Stock {
		return Result{}, insufficient(op, productID, qty, p.Stock)
	}
	if err := e.store.SetLine(ctx, owner, productID, qty); err != nil {
		return Result{}, err
	}
	lines[productID] = qty
	return Result{ProductID: productID, Quantity: qty, ItemCount: ItemCount(lines)}, nil
}

// RemoveItem deletes the line; removing an absent line succeeds.
func (e *Engine) RemoveItem(ctx context.Context, owner, productID string) (Result, error) {
	const op = "cart.RemoveItem"
	unlock, err := e.lock(ctx, op, owner)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	lines, err := e.store.Lines(ctx, owner)
	if err != nil {
		return Result{}, err
	}
	return e.remove(ctx, owner, productID, lines)
}

func (e *Engine) remove(ctx context.Context, owner, productID string, lines map[string]int) (Result, error) {
	if _, ok := lines[productID]; ok {
		if err := e.store.DeleteLines(ctx, owner, productID); err != nil {
			return Result{}, err
		}
		delete(lines, productID)
	}
	return Result{ProductID: productID, ItemCount: ItemCount(lines)}, nil
}

// Snapshot reads the owner's lines. Product data is joined lazily by Snapshot.Items.
func (e *Engine) Snapshot(ctx context.Context, owner string) (*Snapshot, error) {
	const op = "cart.Snapshot"
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	lines, err := e.store.Lines(ctx, owner)
	if err != nil {
		return nil, err
	}
	return newSnapshot(owner, lines, e.catalog), nil
}

// Held is an owner's cart locked for checkout. Nothing else can mutate the cart
// until Release.
type Held struct {
	e      *Engine
	owner  string
	unlock func()
}

func (e *Engine) Hold(ctx context.Context, owner string) (*Held, error) {
	unlock, err := e.lock(ctx, "cart.Hold", owner)
	if err != nil {
		return nil, err
	}
	return &Held{e: e, owner: owner, unlock: unlock}, nil
}

func (h *Held) Snapshot(ctx context.Context) (*Snapshot, error) {
	lines, err := h.e.store.Lines(ctx, h.owner)
	if err != nil {
		return nil, err
	}
	return newSnapshot(h.owner, lines, h.e.catalog), nil
}

// ClearOrdered subtracts ordered quantities from the cart. Lines that drop to zero
// or below are removed.
func (h *Held) ClearOrdered(ctx context.Context, ordered map[string]int) error {
	lines, err := h.e.store.Lines(ctx, h.owner)
	if err != nil {
		return err
	}
	var gone []string
	for id, q := range ordered {
		cur, ok := lines[id]
		if !ok {
			continue
		}
		if cur <= q {
			gone = append(gone, id)
			continue
		}
		if err := h.e.store.SetLine(ctx, h.owner, id, cur-q); err != nil {
			return err
		}
	}
	if len(gone) > 0 {
		return h.e.store.DeleteLines(ctx, h.owner, gone...)
	}
	return nil
}

func (h *Held) Release() { h.unlock() }

func (e *Engine) lock(ctx context.Context, op, owner string) (func(), error) {
	if err := checkOwner(op, owner); err != nil {
		return nil, err
	}
	return e.locker.Lock(ctx, owner)
}

func (e *Engine) product(ctx context.Context, op, id string) (catalog.Product, error) {
	if strings.TrimSpace(id) == "" {
		return catalog.Product{}, apperr.E(apperr.KindNotFound, op, "product id is required")
	}
	p, err := e.catalog.GetProduct(ctx, id)
	if err != nil {
		return catalog.Product{}, err
	}
	if !p.Purchasable() {
		return catalog.Product{}, apperr.E(apperr.KindNotFound, op, "product %s is not available", id)
	}
	return p, nil
}

func checkOwner(op, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return apperr.E(apperr.KindInvalidInput, op, "owner is required")
	}
	return nil
}

func insufficient(op, productID string, requested, available int) error {
	return &apperr.Error{
		Kind:      apperr.KindInsufficientStock,
		Op:        op,
		Msg:       "not enough stock for " + productID,
		Conflicts: []apperr.Conflict{{ProductID: productID, Requested: requested, Available: available}},
	}
}
