// Package memory implements every repository and the order unit of work on
// in-process maps. It backs tests and local runs without Postgres.
package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shopper/pkg/cart"
	"shopper/pkg/order"
	"shopper/pkg/product"
	"shopper/pkg/user"
)

// Store holds all state behind one mutex. The unit of work keeps the write
// lock for the whole function and restores a snapshot on error, so a failed
// attempt leaves nothing behind.
type Store struct {
	mu sync.RWMutex

	users      map[string]user.User
	emails     map[string]string // email -> user id
	addresses  map[string]user.Address
	products   map[string]product.Product
	categories map[string]product.Category
	images     map[string]product.Image
	carts      map[string]cart.Cart
	cartByUser map[string]string // user id -> cart id
	cartLines  map[string]cart.Line
	orders     map[string]order.Order
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:      make(map[string]user.User),
		emails:     make(map[string]string),
		addresses:  make(map[string]user.Address),
		products:   make(map[string]product.Product),
		categories: make(map[string]product.Category),
		images:     make(map[string]product.Image),
		carts:      make(map[string]cart.Cart),
		cartByUser: make(map[string]string),
		cartLines:  make(map[string]cart.Line),
		orders:     make(map[string]order.Order),
	}
}

var (
	_ user.Repository    = (*Store)(nil)
	_ product.Repository = (*Store)(nil)
	_ cart.Repository    = (*Store)(nil)
	_ order.Repository   = (*Store)(nil)
	_ order.UnitOfWork   = (*Store)(nil)
)

// ── users ──

// CreateUser stores a new user; the email must be unused.
func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.emails[u.Email]; taken {
		return user.ErrEmailExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = u
	s.emails[u.Email] = u.ID
	return nil
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUser(id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return s.users[id], nil
}

// UpdateUser replaces an existing user.
func (s *Store) UpdateUser(ctx context.Context, u user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.users[u.ID]
	if !ok {
		return user.ErrNotFound
	}
	if old.Email != u.Email {
		if _, taken := s.emails[u.Email]; taken {
			return user.ErrEmailExists
		}
		delete(s.emails, old.Email)
		s.emails[u.Email] = u.ID
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) getUser(id string) (user.User, error) {
	u, ok := s.users[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return u, nil
}

// ── addresses ──

// CreateAddress stores an address; a new default clears the previous one.
func (s *Store) CreateAddress(ctx context.Context, a user.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Default {
		s.clearDefaultAddress(a.UserID)
	}
	s.addresses[a.ID] = a
	return nil
}

// GetAddress retrieves an owned address.
func (s *Store) GetAddress(ctx context.Context, addressID, userID string) (user.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAddress(addressID, userID)
}

// ListAddresses returns the user's addresses, default first.
func (s *Store) ListAddresses(ctx context.Context, userID string) ([]user.Address, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []user.Address
	for _, a := range s.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Default != out[j].Default {
			return out[i].Default
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

// UpdateAddress replaces an owned address.
func (s *Store) UpdateAddress(ctx context.Context, a user.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getAddress(a.ID, a.UserID); err != nil {
		return err
	}
	if a.Default {
		s.clearDefaultAddress(a.UserID)
	}
	s.addresses[a.ID] = a
	return nil
}

// DeleteAddress removes an owned address unless an order references it.
func (s *Store) DeleteAddress(ctx context.Context, addressID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getAddress(addressID, userID); err != nil {
		return err
	}
	for _, o := range s.orders {
		if o.AddressID == addressID {
			return user.ErrAddressInUse
		}
	}
	delete(s.addresses, addressID)
	return nil
}

func (s *Store) getAddress(addressID, userID string) (user.Address, error) {
	a, ok := s.addresses[addressID]
	if !ok || a.UserID != userID {
		return user.Address{}, user.ErrAddressNotFound
	}
	return a, nil
}

func (s *Store) clearDefaultAddress(userID string) {
	for id, a := range s.addresses {
		if a.UserID == userID && a.Default {
			a.Default = false
			s.addresses[id] = a
		}
	}
}

// ── catalog ──

// CreateProduct stores a new product.
func (s *Store) CreateProduct(ctx context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	s.products[p.ID] = p
	return nil
}

// GetProduct retrieves a product in any status.
func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getProduct(id)
}

// ListProducts returns ACTIVE products, newest first, optionally filtered by
// category.
func (s *Store) ListProducts(ctx context.Context, categoryID string, page product.Page) ([]product.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []product.Product
	for _, p := range s.products {
		if p.Status != product.StatusActive {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return pageSlice(out, page), nil
}

// UpdateProduct replaces catalog fields. The version token advances so
// in-flight reservations against the old version fail and re-read.
func (s *Store) UpdateProduct(ctx context.Context, p product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	p.Version = cur.Version + 1
	p.CreatedAt = cur.CreatedAt
	s.products[p.ID] = p
	return nil
}

func (s *Store) getProduct(id string) (product.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return product.Product{}, product.ErrNotFound
	}
	return p, nil
}

// CreateCategory stores a category.
func (s *Store) CreateCategory(ctx context.Context, c product.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
	return nil
}

// GetCategory retrieves a category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (product.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return product.Category{}, product.ErrCategoryNotFound
	}
	return c, nil
}

// ListCategories returns all categories ordered by depth then name.
func (s *Store) ListCategories(ctx context.Context) ([]product.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]product.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DeleteCategory removes a category with no products.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[id]; !ok {
		return product.ErrCategoryNotFound
	}
	for _, p := range s.products {
		if p.CategoryID == id {
			return product.ErrCategoryHasProducts
		}
	}
	delete(s.categories, id)
	return nil
}

// AddImage stores a product image record.
func (s *Store) AddImage(ctx context.Context, img product.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images[img.ID] = img
	return nil
}

// ListImages returns a product's images in position order.
func (s *Store) ListImages(ctx context.Context, productID string) ([]product.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []product.Image
	for _, img := range s.images {
		if img.ProductID == productID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// DeleteImage removes a product image.
func (s *Store) DeleteImage(ctx context.Context, imageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[imageID]; !ok {
		return product.ErrImageNotFound
	}
	delete(s.images, imageID)
	return nil
}

// ── cart ──

// GetOrCreateCart returns the user's cart, creating it on first use.
func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (cart.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.cartByUser[userID]; ok {
		return s.carts[id], nil
	}
	if _, err := s.getUser(userID); err != nil {
		return cart.Cart{}, err
	}
	c := cart.Cart{ID: uuid.NewString(), UserID: userID}
	s.carts[c.ID] = c
	s.cartByUser[userID] = c.ID
	return c, nil
}

// ListLines returns a cart's lines.
func (s *Store) ListLines(ctx context.Context, cartID string) ([]cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []cart.Line
	for _, l := range s.cartLines {
		if l.CartID == cartID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetLineForUser returns an owned cart line.
func (s *Store) GetLineForUser(ctx context.Context, lineID, userID string) (cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLineForUser(lineID, userID)
}

// FindLineByProduct returns the cart's line for one product, if any.
func (s *Store) FindLineByProduct(ctx context.Context, cartID, productID string) (cart.Line, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.cartLines {
		if l.CartID == cartID && l.ProductID == productID {
			return l, nil
		}
	}
	return cart.Line{}, cart.ErrLineNotFound
}

// CreateLine stores a cart line.
func (s *Store) CreateLine(ctx context.Context, l cart.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartLines[l.ID] = l
	return nil
}

// UpdateLineQuantity sets a line's quantity.
func (s *Store) UpdateLineQuantity(ctx context.Context, lineID string, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.cartLines[lineID]
	if !ok {
		return cart.ErrLineNotFound
	}
	l.Quantity = quantity
	s.cartLines[lineID] = l
	return nil
}

// DeleteLine removes a cart line.
func (s *Store) DeleteLine(ctx context.Context, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cartLines[lineID]; !ok {
		return cart.ErrLineNotFound
	}
	delete(s.cartLines, lineID)
	return nil
}

func (s *Store) getLineForUser(lineID, userID string) (cart.Line, error) {
	l, ok := s.cartLines[lineID]
	if !ok {
		return cart.Line{}, cart.ErrLineNotFound
	}
	c, ok := s.carts[l.CartID]
	if !ok || c.UserID != userID {
		return cart.Line{}, cart.ErrLineNotFound
	}
	return l, nil
}

// ── orders ──

// GetForUser returns an owned order with its lines.
func (s *Store) GetForUser(ctx context.Context, orderID, userID string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOrderForUser(orderID, userID)
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, page product.Page) ([]order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []order.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return pageSlice(out, page), nil
}

func (s *Store) getOrderForUser(orderID, userID string) (order.Order, error) {
	o, ok := s.orders[orderID]
	if !ok || o.UserID != userID {
		return order.Order{}, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

// ── unit of work ──

type snapshot struct {
	users      map[string]user.User
	emails     map[string]string
	addresses  map[string]user.Address
	products   map[string]product.Product
	categories map[string]product.Category
	images     map[string]product.Image
	carts      map[string]cart.Cart
	cartByUser map[string]string
	cartLines  map[string]cart.Line
	orders     map[string]order.Order
}

// Run executes fn while holding the store lock and rolls every map back to
// the pre-call state when fn fails.
func (s *Store) Run(ctx context.Context, fn func(tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()
	if err := fn(&memTx{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) snapshot() snapshot {
	orders := make(map[string]order.Order, len(s.orders))
	for id, o := range s.orders {
		orders[id] = cloneOrder(o)
	}
	return snapshot{
		users:      maps.Clone(s.users),
		emails:     maps.Clone(s.emails),
		addresses:  maps.Clone(s.addresses),
		products:   maps.Clone(s.products),
		categories: maps.Clone(s.categories),
		images:     maps.Clone(s.images),
		carts:      maps.Clone(s.carts),
		cartByUser: maps.Clone(s.cartByUser),
		cartLines:  maps.Clone(s.cartLines),
		orders:     orders,
	}
}

func (s *Store) restore(snap snapshot) {
	s.users = snap.users
	s.emails = snap.emails
	s.addresses = snap.addresses
	s.products = snap.products
	s.categories = snap.categories
	s.images = snap.images
	s.carts = snap.carts
	s.cartByUser = snap.cartByUser
	s.cartLines = snap.cartLines
	s.orders = snap.orders
}

// memTx runs under the lock held by Run and touches the maps directly.
type memTx struct {
	s *Store
}

var _ order.Tx = (*memTx)(nil)

func (t *memTx) FindUser(ctx context.Context, userID string) (user.User, error) {
	return t.s.getUser(userID)
}

func (t *memTx) FindAddress(ctx context.Context, addressID, userID string) (user.Address, error) {
	return t.s.getAddress(addressID, userID)
}

func (t *memTx) CartLineForUser(ctx context.Context, lineID, userID string) (cart.Line, error) {
	return t.s.getLineForUser(lineID, userID)
}

func (t *memTx) DeleteCartLine(ctx context.Context, lineID string) error {
	if _, ok := t.s.cartLines[lineID]; !ok {
		return cart.ErrLineNotFound
	}
	delete(t.s.cartLines, lineID)
	return nil
}

func (t *memTx) GetProduct(ctx context.Context, productID string) (product.Product, error) {
	return t.s.getProduct(productID)
}

func (t *memTx) ReserveStock(ctx context.Context, productID string, quantity int, version int64) error {
	p, ok := t.s.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Version != version {
		return product.ErrConflict
	}
	if p.Stock < quantity {
		return product.ErrOutOfStock
	}
	p.Stock -= quantity
	p.SalesCount += quantity
	p.Version++
	t.s.products[productID] = p
	return nil
}

func (t *memTx) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	p.Stock += quantity
	if p.SalesCount -= quantity; p.SalesCount < 0 {
		p.SalesCount = 0
	}
	p.Version++
	t.s.products[productID] = p
	return nil
}

func (t *memTx) CreateOrder(ctx context.Context, o order.Order) error {
	t.s.orders[o.ID] = cloneOrder(o)
	return nil
}

func (t *memTx) GetOrderForUser(ctx context.Context, orderID, userID string) (order.Order, error) {
	return t.s.getOrderForUser(orderID, userID)
}

func (t *memTx) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	o, ok := t.s.orders[orderID]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (t *memTx) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	t.s.orders[orderID] = o
	return nil
}

func cloneOrder(o order.Order) order.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

func pageSlice[T any](in []T, page product.Page) []T {
	offset, limit := page.Offset, page.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 20
	}
	if offset >= len(in) {
		return nil
	}
	if offset+limit > len(in) {
		limit = len(in) - offset
	}
	return in[offset : offset+limit]
}
