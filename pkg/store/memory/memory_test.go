package memory

import (
	"context"
	"errors"
	"testing"

	"shopper/pkg/cart"
	"shopper/pkg/order"
	"shopper/pkg/product"
	"shopper/pkg/user"
)

func TestUserEmailUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateUser(ctx, user.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateUser(ctx, user.User{ID: "u2", Email: "a@example.com"}); !errors.Is(err, user.ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "a@example.com")
	if err != nil || got.ID != "u1" {
		t.Fatalf("lookup: %v %+v", err, got)
	}
}

func TestDefaultAddressIsExclusive(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateAddress(ctx, user.Address{ID: "a1", UserID: "u1", Label: "home", Default: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateAddress(ctx, user.Address{ID: "a2", UserID: "u1", Label: "work", Default: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	list, err := s.ListAddresses(ctx, "u1")
	if err != nil || len(list) != 2 {
		t.Fatalf("list: %v len=%d", err, len(list))
	}
	defaults := 0
	for _, a := range list {
		if a.Default {
			defaults++
			if a.ID != "a2" {
				t.Fatalf("wrong default: %s", a.ID)
			}
		}
	}
	if defaults != 1 {
		t.Fatalf("expected one default, got %d", defaults)
	}
}

func TestDeleteAddressInUse(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateAddress(ctx, user.Address{ID: "a1", UserID: "u1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Run(ctx, func(tx order.Tx) error {
		return tx.CreateOrder(ctx, order.Order{ID: "o1", UserID: "u1", AddressID: "a1", Status: order.StatusPending})
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if err := s.DeleteAddress(ctx, "a1", "u1"); !errors.Is(err, user.ErrAddressInUse) {
		t.Fatalf("expected ErrAddressInUse, got %v", err)
	}
	if err := s.DeleteAddress(ctx, "a1", "other"); !errors.Is(err, user.ErrAddressNotFound) {
		t.Fatalf("expected ErrAddressNotFound for non-owner, got %v", err)
	}
}

func TestDeleteCategoryWithProducts(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateCategory(ctx, product.Category{ID: "c1", Name: "tools", Depth: 1}); err != nil {
		t.Fatalf("create category: %v", err)
	}
	if err := s.CreateProduct(ctx, product.Product{ID: "p1", CategoryID: "c1", Status: product.StatusActive}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	if err := s.DeleteCategory(ctx, "c1"); !errors.Is(err, product.ErrCategoryHasProducts) {
		t.Fatalf("expected ErrCategoryHasProducts, got %v", err)
	}
}

func TestListProductsFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	s := New()
	for i, id := range []string{"p1", "p2", "p3"} {
		st := product.StatusActive
		if id == "p3" {
			st = product.StatusInactive
		}
		cat := "c1"
		if i == 1 {
			cat = "c2"
		}
		if err := s.CreateProduct(ctx, product.Product{ID: id, CategoryID: cat, Status: st}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	all, err := s.ListProducts(ctx, "", product.Page{Limit: 10})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 active, got %v len=%d", err, len(all))
	}
	byCat, err := s.ListProducts(ctx, "c1", product.Page{Limit: 10})
	if err != nil || len(byCat) != 1 || byCat[0].ID != "p1" {
		t.Fatalf("category filter: %v %+v", err, byCat)
	}
	paged, err := s.ListProducts(ctx, "", product.Page{Offset: 1, Limit: 1})
	if err != nil || len(paged) != 1 {
		t.Fatalf("paging: %v len=%d", err, len(paged))
	}
}

func TestUpdateProductAdvancesVersion(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateProduct(ctx, product.Product{ID: "p1", Status: product.StatusActive}); err != nil {
		t.Fatalf("create: %v", err)
	}
	p, _ := s.GetProduct(ctx, "p1")
	v := p.Version
	p.Name = "renamed"
	if err := s.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, _ = s.GetProduct(ctx, "p1")
	if p.Version != v+1 {
		t.Fatalf("expected version %d, got %d", v+1, p.Version)
	}
}

func TestReserveStockVersionCheck(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateProduct(ctx, product.Product{ID: "p1", Stock: 5, Status: product.StatusActive}); err != nil {
		t.Fatalf("create: %v", err)
	}

	err := s.Run(ctx, func(tx order.Tx) error {
		return tx.ReserveStock(ctx, "p1", 2, 99)
	})
	if !errors.Is(err, product.ErrConflict) {
		t.Fatalf("expected ErrConflict on stale version, got %v", err)
	}
	p, _ := s.GetProduct(ctx, "p1")
	if p.Stock != 5 {
		t.Fatalf("stale reservation must not change stock, got %d", p.Stock)
	}

	err = s.Run(ctx, func(tx order.Tx) error {
		return tx.ReserveStock(ctx, "p1", 9, p.Version)
	})
	if !errors.Is(err, product.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}

	err = s.Run(ctx, func(tx order.Tx) error {
		return tx.ReserveStock(ctx, "p1", 2, p.Version)
	})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	p, _ = s.GetProduct(ctx, "p1")
	if p.Stock != 3 || p.SalesCount != 2 {
		t.Fatalf("expected stock 3 sales 2, got %d %d", p.Stock, p.SalesCount)
	}
}

func TestReleaseStockFloorsSalesCount(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateProduct(ctx, product.Product{ID: "p1", Stock: 1, SalesCount: 1, Status: product.StatusActive}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := s.Run(ctx, func(tx order.Tx) error {
		return tx.ReleaseStock(ctx, "p1", 5)
	})
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	p, _ := s.GetProduct(ctx, "p1")
	if p.Stock != 6 {
		t.Fatalf("expected stock 6, got %d", p.Stock)
	}
	if p.SalesCount != 0 {
		t.Fatalf("expected salesCount floored at 0, got %d", p.SalesCount)
	}
}

func TestRunRollsBackEverything(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.CreateUser(ctx, user.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.CreateProduct(ctx, product.Product{ID: "p1", Stock: 5, Status: product.StatusActive}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	c, err := s.GetOrCreateCart(ctx, "u1")
	if err != nil {
		t.Fatalf("cart: %v", err)
	}
	if err := s.CreateLine(ctx, cart.Line{ID: "l1", CartID: c.ID, ProductID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("line: %v", err)
	}

	boom := errors.New("boom")
	err = s.Run(ctx, func(tx order.Tx) error {
		p, err := tx.GetProduct(ctx, "p1")
		if err != nil {
			return err
		}
		if err := tx.ReserveStock(ctx, "p1", 1, p.Version); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, order.Order{ID: "o1", UserID: "u1", Status: order.StatusPending}); err != nil {
			return err
		}
		if err := tx.DeleteCartLine(ctx, "l1"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	p, _ := s.GetProduct(ctx, "p1")
	if p.Stock != 5 {
		t.Fatalf("stock not rolled back: %d", p.Stock)
	}
	if _, err := s.GetForUser(ctx, "o1", "u1"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("order not rolled back: %v", err)
	}
	if _, err := s.GetLineForUser(ctx, "l1", "u1"); err != nil {
		t.Fatalf("cart line not rolled back: %v", err)
	}
}

func TestOrderOwnershipIsOpaque(t *testing.T) {
	ctx := context.Background()
	s := New()
	err := s.Run(ctx, func(tx order.Tx) error {
		return tx.CreateOrder(ctx, order.Order{ID: "o1", UserID: "u1", Status: order.StatusPending})
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.GetForUser(ctx, "o1", "u2"); !errors.Is(err, order.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-owner, got %v", err)
	}
}
