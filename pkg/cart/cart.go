// Package cart defines the per-user cart and its lines. A cart is created
// lazily on first use and holds mutable lines; placing an order consumes
// the selected lines.
package cart

import (
	"context"
	"errors"
)

// Cart is the single cart owned by one user.
type Cart struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
}

// Line is one product entry in a cart.
type Line struct {
	ID        string `json:"id"`
	CartID    string `json:"cartId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

var (
	// ErrLineNotFound covers both a missing line and a line owned by
	// someone else, so existence never leaks to non-owners.
	ErrLineNotFound = errors.New("cart item not found")
	// ErrQuantityInvalid indicates a quantity below 1.
	ErrQuantityInvalid = errors.New("quantity must be at least 1")
)

// Repository persists carts and lines.
type Repository interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	ListLines(ctx context.Context, cartID string) ([]Line, error)
	// GetLineForUser fails with ErrLineNotFound when the line is missing or
	// its cart belongs to another user.
	GetLineForUser(ctx context.Context, lineID, userID string) (Line, error)
	// FindLineByProduct returns ErrLineNotFound when the cart has no line
	// for the product.
	FindLineByProduct(ctx context.Context, cartID, productID string) (Line, error)
	CreateLine(ctx context.Context, l Line) error
	UpdateLineQuantity(ctx context.Context, lineID string, quantity int) error
	DeleteLine(ctx context.Context, lineID string) error
}
