package order_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"shopper/pkg/cart"
	"shopper/pkg/logger"
	"shopper/pkg/order"
	"shopper/pkg/product"
	"shopper/pkg/store/memory"
	"shopper/pkg/user"
)

func testLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelError, "test", nil)
}

type capturePublisher struct {
	mu     sync.Mutex
	events []order.Event
}

func (p *capturePublisher) Publish(ctx context.Context, e order.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

// fixture seeds one user with an address and one ACTIVE product, and puts
// qty units of the product in the user's cart.
func fixture(t *testing.T, store *memory.Store, userID, productID string, stock, qty int) (addressID, lineID string) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateUser(ctx, user.User{ID: userID, Email: userID + "@example.com", Role: user.RoleUser}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	addressID = userID + "-addr"
	if err := store.CreateAddress(ctx, user.Address{ID: addressID, UserID: userID, Recipient: "Recipient", Line1: "1 Main St"}); err != nil {
		t.Fatalf("create address: %v", err)
	}
	if _, err := store.GetProduct(ctx, productID); err != nil {
		p := product.Product{ID: productID, Name: "Widget", Price: 500, Stock: stock, Status: product.StatusActive}
		if err := store.CreateProduct(ctx, p); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}
	c, err := store.GetOrCreateCart(ctx, userID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	lineID = userID + "-line"
	if err := store.CreateLine(ctx, cart.Line{ID: lineID, CartID: c.ID, ProductID: productID, Quantity: qty}); err != nil {
		t.Fatalf("create line: %v", err)
	}
	return addressID, lineID
}

func newService(store *memory.Store, pub order.EventPublisher) *order.Service {
	return order.NewService(store, store, pub, nil, testLogger(), order.Config{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})
}

func TestPlaceReservesStockAndSnapshots(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &capturePublisher{}
	svc := newService(store, pub)
	addr, line := fixture(t, store, "u1", "p1", 10, 2)

	o, err := svc.Place(ctx, "u1", addr, []string{line})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if o.Status != order.StatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}
	if o.TotalPrice != 1000 {
		t.Fatalf("expected total 1000, got %d", o.TotalPrice)
	}
	if len(o.Lines) != 1 || o.Lines[0].ProductName != "Widget" || o.Lines[0].Price != 500 {
		t.Fatalf("bad snapshot: %+v", o.Lines)
	}

	p, err := store.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if p.Stock != 8 {
		t.Fatalf("expected stock 8, got %d", p.Stock)
	}
	if p.SalesCount != 2 {
		t.Fatalf("expected salesCount 2, got %d", p.SalesCount)
	}

	if _, err := store.GetLineForUser(ctx, line, "u1"); !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected consumed cart line, got %v", err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != order.EventPlaced {
		t.Fatalf("expected one placed event, got %+v", pub.events)
	}
}

func TestPlaceSnapshotImmuneToPriceChange(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line := fixture(t, store, "u1", "p1", 10, 1)

	o, err := svc.Place(ctx, "u1", addr, []string{line})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	p, _ := store.GetProduct(ctx, "p1")
	p.Price = 999
	if err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("update product: %v", err)
	}

	got, err := svc.Get(ctx, "u1", o.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Lines[0].Price != 500 || got.TotalPrice != 500 {
		t.Fatalf("snapshot drifted: price=%d total=%d", got.Lines[0].Price, got.TotalPrice)
	}
}

func TestPlaceConcurrentNeverOversells(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr1, line1 := fixture(t, store, "u1", "p1", 10, 6)
	addr2, line2 := fixture(t, store, "u2", "p1", 10, 6)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); _, errs[0] = svc.Place(ctx, "u1", addr1, []string{line1}) }()
	go func() { defer wg.Done(); _, errs[1] = svc.Place(ctx, "u2", addr2, []string{line2}) }()
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else if !errors.Is(err, product.ErrOutOfStock) && !errors.Is(err, product.ErrConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one success, got %d", ok)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 4 {
		t.Fatalf("expected stock 4, got %d", p.Stock)
	}
}

func TestPlaceForeignCartLine(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr1, _ := fixture(t, store, "u1", "p1", 10, 2)
	_, foreign := fixture(t, store, "u2", "p1", 10, 2)

	_, err := svc.Place(ctx, "u1", addr1, []string{foreign})
	if !errors.Is(err, cart.ErrLineNotFound) {
		t.Fatalf("expected ErrLineNotFound, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 10 {
		t.Fatalf("expected untouched stock, got %d", p.Stock)
	}
}

func TestPlaceEmptySelection(t *testing.T) {
	store := memory.New()
	svc := newService(store, nil)
	if _, err := svc.Place(context.Background(), "u1", "a1", nil); !errors.Is(err, order.ErrEmptySelection) {
		t.Fatalf("expected ErrEmptySelection, got %v", err)
	}
}

func TestPlaceRollsBackOnPartialFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line1 := fixture(t, store, "u1", "p1", 10, 2)

	// Second product is INACTIVE, so the attempt fails after p1 was
	// already reserved. The reservation must be rolled back.
	if err := store.CreateProduct(ctx, product.Product{ID: "p2", Name: "Gadget", Price: 100, Stock: 5, Status: product.StatusInactive}); err != nil {
		t.Fatalf("create product: %v", err)
	}
	c, _ := store.GetOrCreateCart(ctx, "u1")
	if err := store.CreateLine(ctx, cart.Line{ID: "l2", CartID: c.ID, ProductID: "p2", Quantity: 1}); err != nil {
		t.Fatalf("create line: %v", err)
	}

	_, err := svc.Place(ctx, "u1", addr, []string{line1, "l2"})
	if !errors.Is(err, product.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 10 || p.SalesCount != 0 {
		t.Fatalf("reservation not rolled back: stock=%d sales=%d", p.Stock, p.SalesCount)
	}
	if _, err := store.GetLineForUser(ctx, line1, "u1"); err != nil {
		t.Fatalf("cart line should survive a failed placement: %v", err)
	}
}

func TestPlaceDuplicateProductLines(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line1 := fixture(t, store, "u1", "p1", 3, 2)

	c, _ := store.GetOrCreateCart(ctx, "u1")
	if err := store.CreateLine(ctx, cart.Line{ID: "l2", CartID: c.ID, ProductID: "p1", Quantity: 2}); err != nil {
		t.Fatalf("create line: %v", err)
	}

	// Lines are served in selection order: the first takes 2 of 3, the
	// second validates against the remaining 1 and loses.
	_, err := svc.Place(ctx, "u1", addr, []string{line1, "l2"})
	if !errors.Is(err, product.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 3 || p.SalesCount != 0 {
		t.Fatalf("failed placement not rolled back: stock=%d sales=%d", p.Stock, p.SalesCount)
	}
	if _, err := store.GetLineForUser(ctx, line1, "u1"); err != nil {
		t.Fatalf("first cart line should survive: %v", err)
	}
	if _, err := store.GetLineForUser(ctx, "l2", "u1"); err != nil {
		t.Fatalf("second cart line should survive: %v", err)
	}

	// The same line id twice is not deduplicated either.
	if _, err := svc.Place(ctx, "u1", addr, []string{line1, line1}); !errors.Is(err, product.ErrOutOfStock) {
		t.Fatalf("expected ErrOutOfStock for repeated line, got %v", err)
	}

	p, _ = store.GetProduct(ctx, "p1")
	p.Stock = 4
	if err := store.UpdateProduct(ctx, p); err != nil {
		t.Fatalf("restock: %v", err)
	}
	o, err := svc.Place(ctx, "u1", addr, []string{line1, "l2"})
	if err != nil {
		t.Fatalf("place with enough stock: %v", err)
	}
	if len(o.Lines) != 2 || o.TotalPrice != 2000 {
		t.Fatalf("expected 2 lines totalling 2000, got %d lines total %d", len(o.Lines), o.TotalPrice)
	}
	p, _ = store.GetProduct(ctx, "p1")
	if p.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", p.Stock)
	}
}

// conflictOnce fails the first stock reservation with a version conflict and
// then behaves normally, exercising the retry loop.
type conflictOnce struct {
	inner order.UnitOfWork
	fired bool
}

func (c *conflictOnce) Run(ctx context.Context, fn func(tx order.Tx) error) error {
	return c.inner.Run(ctx, func(tx order.Tx) error {
		return fn(&conflictTx{Tx: tx, c: c})
	})
}

type conflictTx struct {
	order.Tx
	c *conflictOnce
}

func (t *conflictTx) ReserveStock(ctx context.Context, productID string, quantity int, version int64) error {
	if !t.c.fired {
		t.c.fired = true
		return product.ErrConflict
	}
	return t.Tx.ReserveStock(ctx, productID, quantity, version)
}

func TestPlaceRetriesAfterConflict(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	addr, line := fixture(t, store, "u1", "p1", 10, 2)

	svc := order.NewService(&conflictOnce{inner: store}, store, nil, nil, testLogger(), order.Config{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
	})

	o, err := svc.Place(ctx, "u1", addr, []string{line})
	if err != nil {
		t.Fatalf("place after conflict: %v", err)
	}
	if o.Status != order.StatusPending {
		t.Fatalf("expected PENDING, got %s", o.Status)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 8 {
		t.Fatalf("expected stock 8 after retry, got %d", p.Stock)
	}
}

func TestCancelRestoresStock(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	pub := &capturePublisher{}
	svc := newService(store, pub)
	addr, line := fixture(t, store, "u1", "p1", 10, 3)

	o, err := svc.Place(ctx, "u1", addr, []string{line})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := svc.Cancel(ctx, "u1", o.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 10 {
		t.Fatalf("expected stock restored to 10, got %d", p.Stock)
	}
	if p.SalesCount != 0 {
		t.Fatalf("expected salesCount 0, got %d", p.SalesCount)
	}
	got, _ := svc.Get(ctx, "u1", o.ID)
	if got.Status != order.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", got.Status)
	}
	if len(pub.events) != 2 || pub.events[1].Type != order.EventCancelled {
		t.Fatalf("expected cancelled event, got %+v", pub.events)
	}
}

func TestCancelTwice(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line := fixture(t, store, "u1", "p1", 10, 3)

	o, _ := svc.Place(ctx, "u1", addr, []string{line})
	if err := svc.Cancel(ctx, "u1", o.ID); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := svc.Cancel(ctx, "u1", o.ID); !errors.Is(err, order.ErrCancelNotAllowed) {
		t.Fatalf("expected ErrCancelNotAllowed, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 10 {
		t.Fatalf("stock restocked twice: %d", p.Stock)
	}
}

func TestCancelPaidOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line := fixture(t, store, "u1", "p1", 10, 3)

	o, _ := svc.Place(ctx, "u1", addr, []string{line})
	if err := svc.MarkPaid(ctx, o.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if err := svc.Cancel(ctx, "u1", o.ID); !errors.Is(err, order.ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
	p, _ := store.GetProduct(ctx, "p1")
	if p.Stock != 7 {
		t.Fatalf("paid order must keep its reservation, stock=%d", p.Stock)
	}
}

func TestMarkPaidTransitions(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line := fixture(t, store, "u1", "p1", 10, 1)

	o, _ := svc.Place(ctx, "u1", addr, []string{line})
	if err := svc.MarkPaid(ctx, o.ID); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	got, _ := svc.Get(ctx, "u1", o.ID)
	if got.Status != order.StatusPaid {
		t.Fatalf("expected PAID, got %s", got.Status)
	}
	if err := svc.MarkPaid(ctx, o.ID); !errors.Is(err, order.ErrNotPayable) {
		t.Fatalf("expected ErrNotPayable, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newService(store, nil)
	addr, line := fixture(t, store, "u1", "p1", 10, 1)

	first, err := svc.Place(ctx, "u1", addr, []string{line})
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	c, _ := store.GetOrCreateCart(ctx, "u1")
	if err := store.CreateLine(ctx, cart.Line{ID: "l2", CartID: c.ID, ProductID: "p1", Quantity: 1}); err != nil {
		t.Fatalf("create line: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	second, err := svc.Place(ctx, "u1", addr, []string{"l2"})
	if err != nil {
		t.Fatalf("place second: %v", err)
	}

	list, err := svc.List(ctx, "u1", product.Page{Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Fatalf("expected newest first, got %+v", list)
	}
}
