package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := E(KindNotFound, "cart.AddItem", "product %s", "p-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected NotFound to match sentinel")
	}
	if errors.Is(err, ErrInsufficientStock) {
		t.Fatal("NotFound must not match InsufficientStock")
	}

	wrapped := fmt.Errorf("handler: %w", err)
	if !errors.Is(wrapped, ErrNotFound) {
		t.Fatal("expected wrapped error to match")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Fatalf("KindOf = %v", KindOf(wrapped))
	}
}

func TestUnavailableWrapsOnlyForeignErrors(t *testing.T) {
	if Unavailable("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}

	err := Unavailable("postgres.GetProduct", context.DeadlineExceeded)
	if KindOf(err) != KindStoreUnavailable {
		t.Fatalf("kind = %v", KindOf(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("cause must stay reachable")
	}

	kinded := E(KindNotFound, "x", "")
	if got := Unavailable("op", kinded); got != error(kinded) {
		t.Fatal("kinded errors must pass through untouched")
	}
}

func TestStockConflictNamesProducts(t *testing.T) {
	err := StockConflict("checkout", []Conflict{
		{ProductID: "a", Requested: 2, Available: 1},
		{ProductID: "b", Requested: 5, Available: 0},
	})
	want := "checkout: stock_conflict: stock changed for a, b"
	if err.Error() != want {
		t.Fatalf("got %q", err.Error())
	}
	if got := ConflictsOf(fmt.Errorf("wrap: %w", err)); len(got) != 2 || got[1].ProductID != "b" {
		t.Fatalf("conflicts = %+v", got)
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Fatal("expected unknown")
	}
	if KindUnknown.String() != "UNKNOWN" || Kind(200).String() != "Kind(200)" {
		t.Fatal("unexpected kind names")
	}
}
