package cart_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/ariefcatur/go-storefront/internal/cart"
	"github.com/ariefcatur/go-storefront/internal/catalog"
	"github.com/ariefcatur/go-storefront/internal/memstore"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func newEngine(t *testing.T, ps ...catalog.Product) (*cart.Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	st.Seed(ps...)
	return cart.NewEngine(st, cart.NewMemoryStore(), cart.NewLocalLocker(), nil), st
}

func product(id string, price string, stock int) catalog.Product {
	return catalog.Product{ID: id, Name: "product " + id, Price: decimal.RequireFromString(price), Stock: stock}
}

func TestAddItemCumulativeStockCheck(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, product("p1", "10.00", 5))

	res, err := e.AddItem(ctx, "alice", "p1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if res.Quantity != 3 || res.ItemCount != 3 {
		t.Fatalf("unexpected result %+v", res)
	}

	// 3 + 2 == stock: the boundary is inclusive.
	if res, err = e.AddItem(ctx, "alice", "p1", 2); err != nil || res.Quantity != 5 {
		t.Fatalf("add to exact stock: %+v %v", res, err)
	}

	_, err = e.AddItem(ctx, "alice", "p1", 1)
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("want insufficient stock, got %v", err)
	}
	v := collect(t, e, "alice")
	if v.ItemCount != 5 {
		t.Fatalf("failed add changed the cart: %+v", v)
	}
}

func TestAddItemRejects(t *testing.T) {
	ctx := context.Background()
	inactive := product("off", "1", 10)
	inactive.Status = catalog.StatusInactive
	e, _ := newEngine(t, product("p1", "1", 10), inactive)

	cases := []struct {
		name  string
		owner string
		id    string
		qty   int
		want  error
	}{
		{"zero quantity", "alice", "p1", 0, apperr.ErrInvalidQuantity},
		{"negative quantity", "alice", "p1", -2, apperr.ErrInvalidQuantity},
		{"unknown product", "alice", "nope", 1, apperr.ErrNotFound},
		{"inactive product", "alice", "off", 1, apperr.ErrNotFound},
		{"empty product id", "alice", "", 1, apperr.ErrNotFound},
		{"missing owner", "", "p1", 1, apperr.ErrInvalidInput},
		{"more than stock", "alice", "p1", 11, apperr.ErrInsufficientStock},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := e.AddItem(ctx, c.owner, c.id, c.qty); !errors.Is(err, c.want) {
				t.Fatalf("got %v, want %v", err, c.want)
			}
		})
	}
	if v := collect(t, e, "alice"); len(v.Lines) != 0 {
		t.Fatalf("rejected adds left lines: %+v", v.Lines)
	}
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, product("p1", "2.50", 4), product("p2", "1", 4))

	if _, err := e.UpdateQuantity(ctx, "bob", "p1", 2); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("update of absent line: %v", err)
	}
	if _, err := e.AddItem(ctx, "bob", "p1", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := e.UpdateQuantity(ctx, "bob", "p1", -1); !errors.Is(err, apperr.ErrInvalidQuantity) {
		t.Fatalf("negative update: %v", err)
	}
	if _, err := e.UpdateQuantity(ctx, "bob", "p1", 5); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("update above stock: %v", err)
	}
	if v := collect(t, e, "bob"); v.Lines[0].Quantity != 1 {
		t.Fatalf("failed update changed the line: %+v", v.Lines)
	}
	res, err := e.UpdateQuantity(ctx, "bob", "p1", 4)
	if err != nil || res.Quantity != 4 {
		t.Fatalf("update: %+v %v", res, err)
	}

	// Zero deletes; deleting an absent line is a no-op.
	if res, err = e.UpdateQuantity(ctx, "bob", "p1", 0); err != nil || res.ItemCount != 0 {
		t.Fatalf("update to zero: %+v %v", res, err)
	}
	if _, err = e.UpdateQuantity(ctx, "bob", "p2", 0); err != nil {
		t.Fatalf("zero on absent line: %v", err)
	}
}

func TestUpdateAboveStockKeepsLine(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, product("a", "3", 5))
	mustAdd(t, e, "erin", "a", 3)

	if _, err := e.UpdateQuantity(ctx, "erin", "a", 6); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("update to 6: %v", err)
	}
	if v := collect(t, e, "erin"); len(v.Lines) != 1 || v.Lines[0].Quantity != 3 {
		t.Fatalf("line after failed update = %+v", v.Lines)
	}

	if _, err := e.UpdateQuantity(ctx, "erin", "a", 0); err != nil {
		t.Fatal(err)
	}
	if v := collect(t, e, "erin"); len(v.Lines) != 0 || v.ItemCount != 0 {
		t.Fatalf("line still present after zero: %+v", v)
	}
}

func TestRemoveItemIsIdempotent(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, product("p1", "1", 3))
	if _, err := e.AddItem(ctx, "carol", "p1", 2); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		res, err := e.RemoveItem(ctx, "carol", "p1")
		if err != nil || res.ItemCount != 0 {
			t.Fatalf("remove #%d: %+v %v", i, res, err)
		}
	}
}

func TestSnapshotReadsLiveData(t *testing.T) {
	ctx := context.Background()
	e, st := newEngine(t, product("p1", "3.00", 5), product("p2", "1.25", 5))
	mustAdd(t, e, "dave", "p1", 2)
	mustAdd(t, e, "dave", "p2", 4)

	snap, err := e.Snapshot(ctx, "dave")
	if err != nil {
		t.Fatal(err)
	}
	v, err := snap.Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Subtotal.Equal(decimal.RequireFromString("11.00")) || v.ItemCount != 6 || len(v.Conflicts) != 0 {
		t.Fatalf("first pass: %+v", v)
	}

	// Stock drops and p1 is deactivated; the same snapshot sees it on the next pass.
	if _, err := st.AdjustStock(ctx, "p2", -3); err != nil {
		t.Fatal(err)
	}
	p1, _ := st.GetProduct(ctx, "p1")
	p1.Status = catalog.StatusInactive
	st.Seed(p1)

	v, err = snap.Collect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Lines[0].Unavailable || v.Lines[0].Available != 0 {
		t.Fatalf("inactive line should be unavailable: %+v", v.Lines[0])
	}
	if !v.Subtotal.Equal(decimal.RequireFromString("5.00")) {
		t.Fatalf("subtotal = %s", v.Subtotal)
	}
	if len(v.Conflicts) != 2 {
		t.Fatalf("want 2 conflicts, got %+v", v.Conflicts)
	}

	// Stopping early is allowed.
	n := 0
	for range snap.Items(ctx) {
		n++
		break
	}
	if n != 1 {
		t.Fatal("early break did not stop iteration")
	}
}

func TestConcurrentAddsNeverExceedStock(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, product("p1", "1", 10))

	var g errgroup.Group
	for i := 0; i < 25; i++ {
		g.Go(func() error {
			_, err := e.AddItem(ctx, "erin", "p1", 1)
			if err != nil && !errors.Is(err, apperr.ErrInsufficientStock) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if v := collect(t, e, "erin"); v.ItemCount != 10 {
		t.Fatalf("item count = %d, want 10", v.ItemCount)
	}
}

func TestHeldClearOrdered(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t, product("p1", "1", 10), product("p2", "1", 10))
	mustAdd(t, e, "fay", "p1", 3)
	mustAdd(t, e, "fay", "p2", 2)

	h, err := e.Hold(ctx, "fay")
	if err != nil {
		t.Fatal(err)
	}
	if err := h.ClearOrdered(ctx, map[string]int{"p1": 1, "p2": 2, "p3": 1}); err != nil {
		t.Fatal(err)
	}
	h.Release()

	v := collect(t, e, "fay")
	if len(v.Lines) != 1 || v.Lines[0].ProductID != "p1" || v.Lines[0].Quantity != 2 {
		t.Fatalf("unexpected cart %+v", v.Lines)
	}
}

func TestHoldBlocksMutations(t *testing.T) {
	e, _ := newEngine(t, product("p1", "1", 10))
	h, err := e.Hold(context.Background(), "gus")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.AddItem(ctx, "gus", "p1", 1); !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Fatalf("add while held: %v", err)
	}
	h.Release()
	mustAdd(t, e, "gus", "p1", 1)
}

func mustAdd(t *testing.T, e *cart.Engine, owner, id string, qty int) {
	t.Helper()
	if _, err := e.AddItem(context.Background(), owner, id, qty); err != nil {
		t.Fatal(err)
	}
}

func collect(t *testing.T, e *cart.Engine, owner string) cart.View {
	t.Helper()
	snap, err := e.Snapshot(context.Background(), owner)
	if err != nil {
		t.Fatal(err)
	}
	v, err := snap.Collect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return v
}
