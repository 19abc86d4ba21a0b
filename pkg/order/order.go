// Package order implements the order aggregate and the placement and
// cancellation orchestrators. Placement is the one multi-entity atomic
// operation in the system: inventory reservation, aggregate creation and
// cart cleanup commit or roll back together.
package order

import (
	"context"
	"errors"
	"time"

	"shopper/pkg/cart"
	"shopper/pkg/product"
	"shopper/pkg/user"
)

// Status is the order lifecycle state.
//
// PENDING --(payment confirmed)--> PAID
// PENDING --(cancel)-------------> CANCELLED
//
// PAID and CANCELLED are terminal.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// Line is an immutable snapshot of one ordered product: the name and unit
// price are captured at placement time and never re-read from the catalog.
type Line struct {
	ID          string `json:"id"`
	OrderID     string `json:"orderId"`
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
	Price       int    `json:"price"`
	Quantity    int    `json:"quantity"`
}

// Order is the aggregate. TotalPrice is stored at creation and always equals
// the sum of Price*Quantity over Lines; it is never recomputed.
type Order struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	AddressID  string    `json:"addressId"`
	TotalPrice int       `json:"totalPrice"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	Lines      []Line    `json:"lines"`
}

var (
	// ErrNotFound covers both a missing order and an order owned by someone
	// else.
	ErrNotFound = errors.New("order not found")
	// ErrAlreadyPaid rejects cancelling a PAID order.
	ErrAlreadyPaid = errors.New("order already paid")
	// ErrCancelNotAllowed rejects cancelling an order twice.
	ErrCancelNotAllowed = errors.New("order cannot be cancelled")
	// ErrNotPayable rejects a payment confirmation for a non-PENDING order.
	ErrNotPayable = errors.New("order cannot be paid")
	// ErrEmptySelection rejects placement with no cart lines selected.
	ErrEmptySelection = errors.New("no cart items selected")
)

// Repository provides the plain order reads used outside the unit of work.
type Repository interface {
	GetForUser(ctx context.Context, orderID, userID string) (Order, error)
	ListByUser(ctx context.Context, userID string, page product.Page) ([]Order, error)
}

// Tx is the set of operations available inside one atomic unit of work.
// Everything called through a Tx commits or rolls back together.
type Tx interface {
	FindUser(ctx context.Context, userID string) (user.User, error)
	FindAddress(ctx context.Context, addressID, userID string) (user.Address, error)

	// CartLineForUser fails with cart.ErrLineNotFound for missing and
	// not-owned lines alike.
	CartLineForUser(ctx context.Context, lineID, userID string) (cart.Line, error)
	DeleteCartLine(ctx context.Context, lineID string) error

	GetProduct(ctx context.Context, productID string) (product.Product, error)
	// ReserveStock decrements stock by quantity iff the product's version
	// token still equals version; otherwise it fails with
	// product.ErrConflict and the whole attempt must be retried from a
	// fresh read.
	ReserveStock(ctx context.Context, productID string, quantity int, version int64) error
	// ReleaseStock increments stock unconditionally (the version token
	// still advances). Used only by cancellation.
	ReleaseStock(ctx context.Context, productID string, quantity int) error

	CreateOrder(ctx context.Context, o Order) error
	GetOrderForUser(ctx context.Context, orderID, userID string) (Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	UpdateOrderStatus(ctx context.Context, orderID string, status Status) error
}

// UnitOfWork runs fn atomically. When fn returns an error every mutation
// made through the Tx is rolled back and the error is returned unchanged.
type UnitOfWork interface {
	Run(ctx context.Context, fn func(tx Tx) error) error
}
