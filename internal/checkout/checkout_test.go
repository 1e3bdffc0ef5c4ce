package checkout_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/checkout"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/ariefcatur/go-storefront/internal/orders"
	"github.com/ariefcatur/go-storefront/internal/payment"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

type recorder struct {
	mu     sync.Mutex
	events []orders.Event
}

func (r *recorder) Notify(_ context.Context, ev orders.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fakeGateway struct {
	decline  bool
	charges  atomic.Int32
	refunded atomic.Int32
}

func (g *fakeGateway) Charge(_ context.Context, c payment.Charge) (string, error) {
	if g.decline {
		return "", apperr.E(apperr.KindPaymentDeclined, "fake", "card declined")
	}
	g.charges.Add(1)
	return "ref-" + c.OrderID, nil
}

func (g *fakeGateway) Refund(context.Context, *orders.Order) error {
	g.refunded.Add(1)
	return nil
}

// brokenLedger fails every commit as a database outage would.
type brokenLedger struct{ checkout.Ledger }

func (brokenLedger) PlaceOrder(context.Context, orders.Order) (orders.Order, error) {
	return orders.Order{}, apperr.Unavailable("test", errors.New("connection refused"))
}

type fixture struct {
	store    *memstore.Store
	carts    *cart.Engine
	notes    *recorder
	gateway  *fakeGateway
	checkout *checkout.Orchestrator
	orders   *orders.Service
}

func newFixture(t *testing.T, ps ...catalog.Product) *fixture {
	t.Helper()
	st := memstore.New()
	st.Seed(ps...)
	f := &fixture{store: st, notes: &recorder{}, gateway: &fakeGateway{}}
	f.carts = cart.NewEngine(st, cart.NewMemoryStore(), cart.NewLocalLocker(), nil)
	f.checkout = &checkout.Orchestrator{
		Carts:    f.carts,
		Ledger:   st,
		Payments: f.gateway,
		Notifier: f.notes,
		Replays:  memstore.NewReplays(),
	}
	f.orders = &orders.Service{Repo: st, Refunds: f.gateway, Notifier: f.notes}
	return f
}

func product(id, price string, stock int) catalog.Product {
	return catalog.Product{ID: id, Name: "product " + id, Price: decimal.RequireFromString(price), Stock: stock}
}

func (f *fixture) add(t *testing.T, owner, id string, qty int) {
	t.Helper()
	if _, err := f.carts.AddItem(context.Background(), owner, id, qty); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := f.store.GetProduct(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return p.Stock
}

func (f *fixture) cartCount(t *testing.T, owner string) int {
	t.Helper()
	snap, err := f.carts.Snapshot(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	return cart.ItemCount(snap.Quantities())
}

func TestCheckoutPlacesOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "19.99", 5), product("p2", "5.00", 2))
	f.add(t, "alice", "p1", 2)
	f.add(t, "alice", "p2", 1)

	o, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "alice", ShippingAddress: " 1 Main St "})
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != orders.StatusPlaced || o.PaymentMethod != orders.PaymentCOD || o.PaymentStatus != orders.PaymentPending {
		t.Fatalf("unexpected order %+v", o)
	}
	if !o.Total.Equal(decimal.RequireFromString("44.98")) {
		t.Fatalf("total = %s", o.Total)
	}
	if o.ShippingAddress != "1 Main St" || len(o.History) != 1 || o.History[0].To != orders.StatusPlaced {
		t.Fatalf("unexpected order details %+v", o)
	}
	if f.stock(t, "p1") != 3 || f.stock(t, "p2") != 1 {
		t.Fatal("stock not decremented")
	}
	if f.cartCount(t, "alice") != 0 {
		t.Fatal("cart not cleared")
	}
	if f.notes.count() != 1 || f.notes.events[0].Type != orders.EventOrderPlaced {
		t.Fatalf("notifier events: %+v", f.notes.events)
	}

	// Prices are frozen at purchase time.
	p1, _ := f.store.GetProduct(ctx, "p1")
	p1.Price = decimal.RequireFromString("99")
	f.store.Seed(p1)
	got, err := f.orders.Get(ctx, o.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Lines[0].UnitPrice.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("unit price changed to %s", got.Lines[0].UnitPrice)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, product("p1", "1", 1))
	_, err := f.checkout.Checkout(context.Background(), checkout.Request{Owner: "nobody"})
	if !errors.Is(err, apperr.ErrEmptyCart) {
		t.Fatalf("want empty cart, got %v", err)
	}
}

func TestCheckoutConflictChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "1", 5), product("p2", "1", 5), product("p3", "1", 5))
	f.add(t, "bob", "p1", 3)
	f.add(t, "bob", "p2", 4)
	f.add(t, "bob", "p3", 1)

	// Stock drops after the items were added.
	if _, err := f.store.AdjustStock(ctx, "p1", -4); err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.AdjustStock(ctx, "p2", -3); err != nil {
		t.Fatal(err)
	}

	_, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "bob"})
	if !errors.Is(err, apperr.ErrStockConflict) {
		t.Fatalf("want stock conflict, got %v", err)
	}
	conflicts := apperr.ConflictsOf(err)
	if len(conflicts) != 2 || conflicts[0].ProductID != "p1" || conflicts[1].ProductID != "p2" {
		t.Fatalf("conflicts = %+v", conflicts)
	}
	if conflicts[0].Available != 1 || conflicts[0].Requested != 3 {
		t.Fatalf("conflict detail = %+v", conflicts[0])
	}
	if f.stock(t, "p1") != 1 || f.stock(t, "p2") != 2 || f.stock(t, "p3") != 5 {
		t.Fatal("stock changed on conflict")
	}
	if f.cartCount(t, "bob") != 8 {
		t.Fatal("cart changed on conflict")
	}
	if list, _ := f.orders.ListByOwner(ctx, "bob"); len(list) != 0 {
		t.Fatal("order created on conflict")
	}
	if f.notes.count() != 0 {
		t.Fatal("notifier called on conflict")
	}
}

func TestConcurrentCheckoutOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("last", "10", 1))
	const buyers = 8
	for i := 0; i < buyers; i++ {
		f.add(t, fmt.Sprintf("buyer-%d", i), "last", 1)
	}

	var won, lost atomic.Int32
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		owner := fmt.Sprintf("buyer-%d", i)
		g.Go(func() error {
			_, err := f.checkout.Checkout(ctx, checkout.Request{Owner: owner})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, apperr.ErrStockConflict):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if won.Load() != 1 || lost.Load() != buyers-1 {
		t.Fatalf("won=%d lost=%d", won.Load(), lost.Load())
	}
	if f.stock(t, "last") != 0 {
		t.Fatalf("stock = %d", f.stock(t, "last"))
	}
}

func TestCancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "2", 6), product("p2", "3", 4))
	f.add(t, "carol", "p1", 5)
	f.add(t, "carol", "p2", 4)

	o, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "carol"})
	if err != nil {
		t.Fatal(err)
	}
	if f.stock(t, "p1") != 1 || f.stock(t, "p2") != 0 {
		t.Fatal("stock not decremented")
	}
	if _, err := f.orders.Transition(ctx, o.ID, orders.StatusCancelled, "carol", "changed my mind"); err != nil {
		t.Fatal(err)
	}
	if f.stock(t, "p1") != 6 || f.stock(t, "p2") != 4 {
		t.Fatalf("stock not restored: p1=%d p2=%d", f.stock(t, "p1"), f.stock(t, "p2"))
	}
}

func TestRandomSequencesKeepStockConsistent(t *testing.T) {
	ctx := context.Background()
	initial := map[string]int{"a": 7, "b": 3, "c": 10}
	f := newFixture(t, product("a", "1", initial["a"]), product("b", "2", initial["b"]), product("c", "3", initial["c"]))
	ids := []string{"a", "b", "c"}
	owners := []string{"u1", "u2", "u3"}

	var g errgroup.Group
	for _, owner := range owners {
		g.Go(func() error {
			for step := 0; step < 60; step++ {
				var err error
				switch n := rand.IntN(10); {
				case n < 5:
					_, err = f.carts.AddItem(ctx, owner, ids[rand.IntN(len(ids))], 1+rand.IntN(3))
				case n < 7:
					_, err = f.carts.UpdateQuantity(ctx, owner, ids[rand.IntN(len(ids))], rand.IntN(4))
				case n < 9:
					var o orders.Order
					o, err = f.checkout.Checkout(ctx, checkout.Request{Owner: owner})
					if err == nil && rand.IntN(2) == 0 {
						_, err = f.orders.Transition(ctx, o.ID, orders.StatusCancelled, owner, "")
					}
				default:
					_, err = f.carts.RemoveItem(ctx, owner, ids[rand.IntN(len(ids))])
				}
				switch apperr.KindOf(err) {
				case apperr.KindUnknown:
					if err != nil {
						return err
					}
				case apperr.KindStoreUnavailable:
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	held := map[string]int{}
	for _, owner := range owners {
		list, err := f.orders.ListByOwner(ctx, owner)
		if err != nil {
			t.Fatal(err)
		}
		for _, o := range list {
			if o.Status == orders.StatusCancelled {
				continue
			}
			for _, l := range o.Lines {
				held[l.ProductID] += l.Quantity
			}
		}
	}
	for _, id := range ids {
		s := f.stock(t, id)
		if s < 0 {
			t.Fatalf("stock of %s went negative: %d", id, s)
		}
		if s+held[id] != initial[id] {
			t.Fatalf("%s: stock %d + ordered %d != initial %d", id, s, held[id], initial[id])
		}
	}
}

func TestPrepaidCheckout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "12.50", 3))
	f.add(t, "dana", "p1", 2)

	o, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "dana", PaymentMethod: orders.PaymentCard, PaymentToken: "pm_card_visa"})
	if err != nil {
		t.Fatal(err)
	}
	if o.PaymentStatus != orders.PaymentPaid || o.PaymentRef != "ref-"+o.ID {
		t.Fatalf("payment not recorded: %+v", o)
	}
	if f.gateway.charges.Load() != 1 {
		t.Fatal("gateway not charged")
	}
}

func TestPaymentDeclinedChangesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "1", 3))
	f.gateway.decline = true
	f.add(t, "erin", "p1", 2)

	_, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "erin", PaymentMethod: orders.PaymentBkash, PaymentToken: "tx"})
	if !errors.Is(err, apperr.ErrPaymentDeclined) {
		t.Fatalf("want declined, got %v", err)
	}
	if f.stock(t, "p1") != 3 || f.cartCount(t, "erin") != 2 {
		t.Fatal("state changed after decline")
	}
}

func TestFailedCommitRefundsCharge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "1", 3))
	f.checkout.Ledger = brokenLedger{f.store}
	f.add(t, "finn", "p1", 1)

	_, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "finn", PaymentMethod: orders.PaymentCard, PaymentToken: "pm"})
	if !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("want store unavailable, got %v", err)
	}
	if f.gateway.refunded.Load() != 1 {
		t.Fatal("charge not refunded")
	}
	if f.stock(t, "p1") != 3 || f.cartCount(t, "finn") != 1 {
		t.Fatal("state changed after failed commit")
	}
}

func TestIdempotentReplay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "1", 3))
	f.add(t, "gail", "p1", 1)

	req := checkout.Request{Owner: "gail", IdempotencyKey: "k-1"}
	first, err := f.checkout.Checkout(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.checkout.Checkout(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay returned %s, want %s", again.ID, first.ID)
	}
	if f.stock(t, "p1") != 2 || f.notes.count() != 1 {
		t.Fatal("replay placed a second order")
	}
}

func TestUnknownPaymentMethod(t *testing.T) {
	f := newFixture(t)
	_, err := f.checkout.Checkout(context.Background(), checkout.Request{Owner: "x", PaymentMethod: "CHEQUE"})
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("got %v", err)
	}
}

func TestPaymentMethodIsNormalized(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, product("p1", "2", 3))
	f.add(t, "hana", "p1", 1)

	o, err := f.checkout.Checkout(ctx, checkout.Request{Owner: "hana", PaymentMethod: " cod "})
	if err != nil {
		t.Fatal(err)
	}
	if o.PaymentMethod != orders.PaymentCOD || o.PaymentStatus != orders.PaymentPending {
		t.Fatalf("order = %s %s", o.PaymentMethod, o.PaymentStatus)
	}
	if f.gateway.charges.Load() != 0 {
		t.Fatal("cash on delivery was charged")
	}
}
