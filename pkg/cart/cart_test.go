package cart_test

import (
	"context"
	"errors"
	"testing"

	"shopper/pkg/cart"
	"shopper/pkg/product"
	"shopper/pkg/store/memory"
	"shopper/pkg/user"
)

func seed(t *testing.T) (*memory.Store, *cart.Service) {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	if err := store.CreateUser(ctx, user.User{ID: "u1", Email: "u1@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := store.CreateUser(ctx, user.User{ID: "u2", Email: "u2@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := store.CreateProduct(ctx, product.Product{ID: "p1", Name: "Widget", Price: 500, Stock: 5, Status: product.StatusActive}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return store, cart.NewService(store, store)
}

func TestAddMergesAndRevalidates(t *testing.T) {
	ctx := context.Background()
	_, svc := seed(t)

	if err := svc.Add(ctx, "u1", "p1", 3); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := svc.Add(ctx, "u1", "p1", 2); err != nil {
		t.Fatalf("merge add: %v", err)
	}
	_, items, err := svc.View(ctx, "u1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(items) != 1 || items[0].Quantity != 5 {
		t.Fatalf("expected one merged line of 5, got %+v", items)
	}
	if items[0].Subtotal != 2500 {
		t.Fatalf("expected subtotal 2500, got %d", items[0].Subtotal)
	}

	// Merging past stock is rejected even though each add alone fits.
	if err := svc.Add(ctx, "u1", "p1", 1); !errors.Is(err, product.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
}

func TestAddRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	_, svc := seed(t)

	if err := svc.Add(ctx, "u1", "p1", 0); !errors.Is(err, cart.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
	if err := svc.Add(ctx, "u1", "p1", 6); !errors.Is(err, product.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if err := svc.Add(ctx, "u1", "missing", 1); !errors.Is(err, product.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAddInactiveProduct(t *testing.T) {
	ctx := context.Background()
	store, svc := seed(t)

	p, _ := store.GetProduct(ctx, "p1")
	p.Status = product.StatusInactive
	if err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if err := svc.Add(ctx, "u1", "p1", 1); !errors.Is(err, product.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive product, got %v", err)
	}
}

func TestViewFiltersInactive(t *testing.T) {
	ctx := context.Background()
	store, svc := seed(t)

	if err := svc.Add(ctx, "u1", "p1", 2); err != nil {
		t.Fatalf("add: %v", err)
	}
	p, _ := store.GetProduct(ctx, "p1")
	p.Status = product.StatusInactive
	if err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	c, items, err := svc.View(ctx, "u1")
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected inactive line hidden, got %+v", items)
	}
	// The line itself stays in the cart for when the product returns.
	lines, err := store.ListLines(ctx, c.ID)
	if err != nil || len(lines) != 1 {
		t.Fatalf("expected line kept: %v len=%d", err, len(lines))
	}
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()
	store, svc := seed(t)

	if err := svc.Add(ctx, "u1", "p1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, _ := store.GetOrCreateCart(ctx, "u1")
	lines, _ := store.ListLines(ctx, c.ID)

	if err := svc.UpdateQuantity(ctx, "u1", lines[0].ID, 4); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := svc.UpdateQuantity(ctx, "u1", lines[0].ID, 9); !errors.Is(err, product.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	if err := svc.UpdateQuantity(ctx, "u1", lines[0].ID, 0); !errors.Is(err, cart.ErrQuantityInvalid) {
		t.Fatalf("expected ErrQuantityInvalid, got %v", err)
	}
}

func TestOwnershipIsOpaque(t *testing.T) {
	ctx := context.Background()
	store, svc := seed(t)

	if err := svc.Add(ctx, "u1", "p1", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	c, _ := store.GetOrCreateCart(ctx, "u1")
	lines, _ := store.ListLines(ctx, c.ID)

	if err := svc.UpdateQuantity(ctx, "u2", lines[0].ID, 2); !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound for foreign update, got %v", err)
	}
	if err := svc.Remove(ctx, "u2", lines[0].ID); !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound for foreign remove, got %v", err)
	}
	if err := svc.Remove(ctx, "u1", lines[0].ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := store.GetLineForUser(ctx, lines[0].ID, "u1"); !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected line gone, got %v", err)
	}
}
