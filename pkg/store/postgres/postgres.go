// Package postgres persists the store in PostgreSQL. The caller opens the
// *sql.DB (the driver is registered in main, as usual); reservation uses a
// compare-and-swap on the product version column, so two transactions
// racing for the same stock cannot both win.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"shopper/pkg/cart"
	"shopper/pkg/order"
	"shopper/pkg/product"
	"shopper/pkg/user"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	name          TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS addresses (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	label       TEXT NOT NULL DEFAULT '',
	recipient   TEXT NOT NULL DEFAULT '',
	phone       TEXT NOT NULL DEFAULT '',
	postal_code TEXT NOT NULL DEFAULT '',
	line1       TEXT NOT NULL DEFAULT '',
	line2       TEXT NOT NULL DEFAULT '',
	is_default  BOOLEAN NOT NULL DEFAULT false
);
CREATE TABLE IF NOT EXISTS categories (
	id        TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL DEFAULT '',
	name      TEXT NOT NULL,
	depth     INT NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	category_id TEXT NOT NULL REFERENCES categories(id),
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       INT NOT NULL CHECK (price >= 0),
	stock       INT NOT NULL CHECK (stock >= 0),
	status      TEXT NOT NULL,
	sales_count INT NOT NULL DEFAULT 0,
	version     BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS product_images (
	id         TEXT PRIMARY KEY,
	product_id TEXT NOT NULL REFERENCES products(id),
	url        TEXT NOT NULL,
	position   INT NOT NULL
);
CREATE TABLE IF NOT EXISTS carts (
	id      TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE REFERENCES users(id)
);
CREATE TABLE IF NOT EXISTS cart_items (
	id         TEXT PRIMARY KEY,
	cart_id    TEXT NOT NULL REFERENCES carts(id),
	product_id TEXT NOT NULL REFERENCES products(id),
	quantity   INT NOT NULL CHECK (quantity > 0)
);
CREATE TABLE IF NOT EXISTS orders (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id),
	address_id  TEXT NOT NULL REFERENCES addresses(id),
	total_price INT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS order_items (
	id           TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	product_id   TEXT NOT NULL,
	product_name TEXT NOT NULL,
	price        INT NOT NULL,
	quantity     INT NOT NULL CHECK (quantity > 0)
);`

// Store implements every repository and the order unit of work over one
// database.
type Store struct {
	db *sql.DB
}

// New creates a Postgres store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var (
	_ user.Repository    = (*Store)(nil)
	_ product.Repository = (*Store)(nil)
	_ cart.Repository    = (*Store)(nil)
	_ order.Repository   = (*Store)(nil)
	_ order.UnitOfWork   = (*Store)(nil)
)

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx so the query code is
// written once.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Run executes fn inside one database transaction.
func (s *Store) Run(ctx context.Context, fn func(tx order.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&pgTx{q: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ── users ──

// CreateUser inserts a user; a duplicate email fails with ErrEmailExists.
func (s *Store) CreateUser(ctx context.Context, u user.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, role) VALUES ($1,$2,$3,$4,$5)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role)
	if isUniqueViolation(err) {
		return user.ErrEmailExists
	}
	return err
}

// GetUser retrieves a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (user.User, error) {
	return getUser(ctx, s.db, id)
}

// GetUserByEmail retrieves a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, role, created_at FROM users WHERE email=$1`,
		email).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return u, err
}

// UpdateUser updates the mutable user fields.
func (s *Store) UpdateUser(ctx context.Context, u user.User) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET email=$2, name=$3, password_hash=$4, role=$5 WHERE id=$1`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role)
	if isUniqueViolation(err) {
		return user.ErrEmailExists
	}
	if err != nil {
		return err
	}
	return oneRowOr(res, user.ErrNotFound)
}

func getUser(ctx context.Context, q querier, id string) (user.User, error) {
	var u user.User
	err := q.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, role, created_at FROM users WHERE id=$1`,
		id).Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return user.User{}, user.ErrNotFound
	}
	return u, err
}

// ── addresses ──

// CreateAddress inserts an address; a new default clears the previous one.
func (s *Store) CreateAddress(ctx context.Context, a user.Address) error {
	if a.Default {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE addresses SET is_default=false WHERE user_id=$1`, a.UserID); err != nil {
			return err
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO addresses (id, user_id, label, recipient, phone, postal_code, line1, line2, is_default)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.UserID, a.Label, a.Recipient, a.Phone, a.PostalCode, a.Line1, a.Line2, a.Default)
	return err
}

// GetAddress retrieves an owned address.
func (s *Store) GetAddress(ctx context.Context, addressID, userID string) (user.Address, error) {
	return getAddress(ctx, s.db, addressID, userID)
}

// ListAddresses returns the user's addresses, default first.
func (s *Store) ListAddresses(ctx context.Context, userID string) ([]user.Address, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, label, recipient, phone, postal_code, line1, line2, is_default
		 FROM addresses WHERE user_id=$1 ORDER BY is_default DESC, label`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []user.Address
	for rows.Next() {
		var a user.Address
		if err := rows.Scan(&a.ID, &a.UserID, &a.Label, &a.Recipient, &a.Phone,
			&a.PostalCode, &a.Line1, &a.Line2, &a.Default); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAddress updates an owned address.
func (s *Store) UpdateAddress(ctx context.Context, a user.Address) error {
	if a.Default {
		if _, err := s.db.ExecContext(ctx,
			`UPDATE addresses SET is_default=false WHERE user_id=$1 AND id<>$2`, a.UserID, a.ID); err != nil {
			return err
		}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE addresses SET label=$3, recipient=$4, phone=$5, postal_code=$6, line1=$7, line2=$8, is_default=$9
		 WHERE id=$1 AND user_id=$2`,
		a.ID, a.UserID, a.Label, a.Recipient, a.Phone, a.PostalCode, a.Line1, a.Line2, a.Default)
	if err != nil {
		return err
	}
	return oneRowOr(res, user.ErrAddressNotFound)
}

// DeleteAddress removes an owned address unless an order references it.
func (s *Store) DeleteAddress(ctx context.Context, addressID, userID string) error {
	var inUse bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE address_id=$1)`, addressID).Scan(&inUse); err != nil {
		return err
	}
	if inUse {
		return user.ErrAddressInUse
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM addresses WHERE id=$1 AND user_id=$2`, addressID, userID)
	if err != nil {
		return err
	}
	return oneRowOr(res, user.ErrAddressNotFound)
}

func getAddress(ctx context.Context, q querier, addressID, userID string) (user.Address, error) {
	var a user.Address
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, label, recipient, phone, postal_code, line1, line2, is_default
		 FROM addresses WHERE id=$1 AND user_id=$2`, addressID, userID).
		Scan(&a.ID, &a.UserID, &a.Label, &a.Recipient, &a.Phone, &a.PostalCode, &a.Line1, &a.Line2, &a.Default)
	if err == sql.ErrNoRows {
		return user.Address{}, user.ErrAddressNotFound
	}
	return a, err
}

// ── catalog ──

const productCols = `id, category_id, name, description, price, stock, status, sales_count, version, created_at`

// CreateProduct inserts a product.
func (s *Store) CreateProduct(ctx context.Context, p product.Product) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO products (id, category_id, name, description, price, stock, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		p.ID, p.CategoryID, p.Name, p.Description, p.Price, p.Stock, p.Status)
	return err
}

// GetProduct retrieves a product in any status.
func (s *Store) GetProduct(ctx context.Context, id string) (product.Product, error) {
	return getProduct(ctx, s.db, id)
}

// ListProducts returns ACTIVE products, newest first.
func (s *Store) ListProducts(ctx context.Context, categoryID string, page product.Page) ([]product.Product, error) {
	offset, limit := normalizePage(page)
	query := `SELECT ` + productCols + ` FROM products WHERE status=$1`
	args := []any{product.StatusActive}
	if categoryID != "" {
		query += ` AND category_id=$2`
		args = append(args, categoryID)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []product.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProduct replaces catalog fields and advances the version token.
func (s *Store) UpdateProduct(ctx context.Context, p product.Product) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE products SET category_id=$2, name=$3, description=$4, price=$5, stock=$6, status=$7,
		 version = version + 1 WHERE id=$1`,
		p.ID, p.CategoryID, p.Name, p.Description, p.Price, p.Stock, p.Status)
	if err != nil {
		return err
	}
	return oneRowOr(res, product.ErrNotFound)
}

func getProduct(ctx context.Context, q querier, id string) (product.Product, error) {
	row := q.QueryRowContext(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return product.Product{}, product.ErrNotFound
	}
	return p, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(r rowScanner) (product.Product, error) {
	var p product.Product
	err := r.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.Status, &p.SalesCount, &p.Version, &p.CreatedAt)
	return p, err
}

// CreateCategory inserts a category.
func (s *Store) CreateCategory(ctx context.Context, c product.Category) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO categories (id, parent_id, name, depth) VALUES ($1,$2,$3,$4)`,
		c.ID, c.ParentID, c.Name, c.Depth)
	return err
}

// GetCategory retrieves a category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (product.Category, error) {
	var c product.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, parent_id, name, depth FROM categories WHERE id=$1`, id).
		Scan(&c.ID, &c.ParentID, &c.Name, &c.Depth)
	if err == sql.ErrNoRows {
		return product.Category{}, product.ErrCategoryNotFound
	}
	return c, err
}

// ListCategories returns all categories ordered by depth then name.
func (s *Store) ListCategories(ctx context.Context) ([]product.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, name, depth FROM categories ORDER BY depth, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []product.Category
	for rows.Next() {
		var c product.Category
		if err := rows.Scan(&c.ID, &c.ParentID, &c.Name, &c.Depth); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCategory removes a category with no products.
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	var hasProducts bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE category_id=$1)`, id).Scan(&hasProducts); err != nil {
		return err
	}
	if hasProducts {
		return product.ErrCategoryHasProducts
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return oneRowOr(res, product.ErrCategoryNotFound)
}

// AddImage inserts a product image record.
func (s *Store) AddImage(ctx context.Context, img product.Image) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO product_images (id, product_id, url, position) VALUES ($1,$2,$3,$4)`,
		img.ID, img.ProductID, img.URL, img.Position)
	return err
}

// ListImages returns a product's images in position order.
func (s *Store) ListImages(ctx context.Context, productID string) ([]product.Image, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, url, position FROM product_images WHERE product_id=$1 ORDER BY position`,
		productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []product.Image
	for rows.Next() {
		var img product.Image
		if err := rows.Scan(&img.ID, &img.ProductID, &img.URL, &img.Position); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

// DeleteImage removes a product image.
func (s *Store) DeleteImage(ctx context.Context, imageID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM product_images WHERE id=$1`, imageID)
	if err != nil {
		return err
	}
	return oneRowOr(res, product.ErrImageNotFound)
}

// ── cart ──

// GetOrCreateCart returns the user's cart, creating it on first use.
func (s *Store) GetOrCreateCart(ctx context.Context, userID string) (cart.Cart, error) {
	var c cart.Cart
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id FROM carts WHERE user_id=$1`, userID).Scan(&c.ID, &c.UserID)
	if err == nil {
		return c, nil
	}
	if err != sql.ErrNoRows {
		return cart.Cart{}, err
	}
	if _, err := getUser(ctx, s.db, userID); err != nil {
		return cart.Cart{}, err
	}
	c = cart.Cart{ID: newID(), UserID: userID}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO carts (id, user_id) VALUES ($1,$2) ON CONFLICT (user_id) DO NOTHING`,
		c.ID, c.UserID); err != nil {
		return cart.Cart{}, err
	}
	// Re-read in case a concurrent request created the cart first.
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id FROM carts WHERE user_id=$1`, userID).Scan(&c.ID, &c.UserID)
	return c, err
}

// ListLines returns a cart's lines.
func (s *Store) ListLines(ctx context.Context, cartID string) ([]cart.Line, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id=$1 ORDER BY id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []cart.Line
	for rows.Next() {
		var l cart.Line
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetLineForUser returns an owned cart line.
func (s *Store) GetLineForUser(ctx context.Context, lineID, userID string) (cart.Line, error) {
	return getLineForUser(ctx, s.db, lineID, userID)
}

// FindLineByProduct returns the cart's line for one product, if any.
func (s *Store) FindLineByProduct(ctx context.Context, cartID, productID string) (cart.Line, error) {
	var l cart.Line
	err := s.db.QueryRowContext(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id=$1 AND product_id=$2`,
		cartID, productID).Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity)
	if err == sql.ErrNoRows {
		return cart.Line{}, cart.ErrLineNotFound
	}
	return l, err
}

// CreateLine inserts a cart line.
func (s *Store) CreateLine(ctx context.Context, l cart.Line) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cart_items (id, cart_id, product_id, quantity) VALUES ($1,$2,$3,$4)`,
		l.ID, l.CartID, l.ProductID, l.Quantity)
	return err
}

// UpdateLineQuantity sets a line's quantity.
func (s *Store) UpdateLineQuantity(ctx context.Context, lineID string, quantity int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE cart_items SET quantity=$2 WHERE id=$1`, lineID, quantity)
	if err != nil {
		return err
	}
	return oneRowOr(res, cart.ErrLineNotFound)
}

// DeleteLine removes a cart line.
func (s *Store) DeleteLine(ctx context.Context, lineID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM cart_items WHERE id=$1`, lineID)
	if err != nil {
		return err
	}
	return oneRowOr(res, cart.ErrLineNotFound)
}

func getLineForUser(ctx context.Context, q querier, lineID, userID string) (cart.Line, error) {
	var l cart.Line
	err := q.QueryRowContext(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity
		 FROM cart_items ci JOIN carts c ON c.id = ci.cart_id
		 WHERE ci.id=$1 AND c.user_id=$2`, lineID, userID).
		Scan(&l.ID, &l.CartID, &l.ProductID, &l.Quantity)
	if err == sql.ErrNoRows {
		return cart.Line{}, cart.ErrLineNotFound
	}
	return l, err
}

// ── orders ──

// GetForUser returns an owned order with its lines.
func (s *Store) GetForUser(ctx context.Context, orderID, userID string) (order.Order, error) {
	return getOrderForUser(ctx, s.db, orderID, userID)
}

// ListByUser returns the user's orders, newest first.
func (s *Store) ListByUser(ctx context.Context, userID string, page product.Page) ([]order.Order, error) {
	offset, limit := normalizePage(page)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, user_id, address_id, total_price, status, created_at
		 FROM orders WHERE user_id=$1 ORDER BY created_at DESC, id LIMIT %d OFFSET %d`, limit, offset),
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		var o order.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.AddressID, &o.TotalPrice, &o.Status, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		lines, err := orderLines(ctx, s.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Lines = lines
	}
	return out, nil
}

func getOrderForUser(ctx context.Context, q querier, orderID, userID string) (order.Order, error) {
	var o order.Order
	err := q.QueryRowContext(ctx,
		`SELECT id, user_id, address_id, total_price, status, created_at
		 FROM orders WHERE id=$1 AND user_id=$2`, orderID, userID).
		Scan(&o.ID, &o.UserID, &o.AddressID, &o.TotalPrice, &o.Status, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, err
	}
	o.Lines, err = orderLines(ctx, q, o.ID)
	return o, err
}

func orderLines(ctx context.Context, q querier, orderID string) ([]order.Line, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, product_name, price, quantity
		 FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []order.Line
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ProductID, &l.ProductName, &l.Price, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ── unit of work ──

// pgTx adapts one *sql.Tx to the order.Tx contract.
type pgTx struct {
	q querier
}

var _ order.Tx = (*pgTx)(nil)

func (t *pgTx) FindUser(ctx context.Context, userID string) (user.User, error) {
	return getUser(ctx, t.q, userID)
}

func (t *pgTx) FindAddress(ctx context.Context, addressID, userID string) (user.Address, error) {
	return getAddress(ctx, t.q, addressID, userID)
}

func (t *pgTx) CartLineForUser(ctx context.Context, lineID, userID string) (cart.Line, error) {
	return getLineForUser(ctx, t.q, lineID, userID)
}

func (t *pgTx) DeleteCartLine(ctx context.Context, lineID string) error {
	res, err := t.q.ExecContext(ctx, `DELETE FROM cart_items WHERE id=$1`, lineID)
	if err != nil {
		return err
	}
	return oneRowOr(res, cart.ErrLineNotFound)
}

func (t *pgTx) GetProduct(ctx context.Context, productID string) (product.Product, error) {
	return getProduct(ctx, t.q, productID)
}

// ReserveStock is the compare-and-swap: the update applies only while the
// version column still holds the value read by this attempt. Zero rows with
// the product present means another transaction committed first.
func (t *pgTx) ReserveStock(ctx context.Context, productID string, quantity int, version int64) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $2, sales_count = sales_count + $2, version = version + 1
		 WHERE id = $1 AND version = $3 AND stock >= $2`,
		productID, quantity, version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := getProduct(ctx, t.q, productID); err != nil {
		return err
	}
	return product.ErrConflict
}

func (t *pgTx) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock + $2, sales_count = GREATEST(sales_count - $2, 0), version = version + 1
		 WHERE id = $1`,
		productID, quantity)
	if err != nil {
		return err
	}
	return oneRowOr(res, product.ErrNotFound)
}

func (t *pgTx) CreateOrder(ctx context.Context, o order.Order) error {
	if _, err := t.q.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, address_id, total_price, status, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.UserID, o.AddressID, o.TotalPrice, o.Status, o.CreatedAt); err != nil {
		return err
	}
	for _, l := range o.Lines {
		if _, err := t.q.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, product_name, price, quantity)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			l.ID, l.OrderID, l.ProductID, l.ProductName, l.Price, l.Quantity); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) GetOrderForUser(ctx context.Context, orderID, userID string) (order.Order, error) {
	return getOrderForUser(ctx, t.q, orderID, userID)
}

func (t *pgTx) GetOrder(ctx context.Context, orderID string) (order.Order, error) {
	var o order.Order
	err := t.q.QueryRowContext(ctx,
		`SELECT id, user_id, address_id, total_price, status, created_at FROM orders WHERE id=$1`,
		orderID).Scan(&o.ID, &o.UserID, &o.AddressID, &o.TotalPrice, &o.Status, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return order.Order{}, order.ErrNotFound
	}
	if err != nil {
		return order.Order{}, err
	}
	o.Lines, err = orderLines(ctx, t.q, o.ID)
	return o, err
}

func (t *pgTx) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	res, err := t.q.ExecContext(ctx,
		`UPDATE orders SET status=$2 WHERE id=$1`, orderID, status)
	if err != nil {
		return err
	}
	return oneRowOr(res, order.ErrNotFound)
}

// ── helpers ──

func oneRowOr(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func newID() string {
	return uuid.NewString()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func normalizePage(page product.Page) (offset, limit int) {
	offset, limit = page.Offset, page.Limit
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return offset, limit
}
