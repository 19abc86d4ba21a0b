// Package product defines the catalog entities and the contracts for
// reading and mutating them. Stock is never written through this package's
// Repository; reservations and releases go through the order unit of work so
// the version token always advances with the stock.
package product

import (
	"context"
	"errors"
	"time"
)

// Status marks whether a product is sellable. Products are never deleted,
// only deactivated.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Product is a catalog entry. Price is in minor currency units. Version is
// the optimistic-concurrency token: every stock mutation and catalog edit
// advances it.
type Product struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"categoryId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	Stock       int       `json:"stock"`
	Status      Status    `json:"status"`
	SalesCount  int       `json:"salesCount"`
	Version     int64     `json:"-"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Category is a node in the catalog tree. Depth is 1 for roots and at most
// MaxCategoryDepth.
type Category struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
}

// Image is a display image attached to a product. The bytes live elsewhere;
// only the URL is recorded.
type Image struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	URL       string `json:"url"`
	Position  int    `json:"position"`
}

// MaxCategoryDepth limits the category tree.
const MaxCategoryDepth = 3

// MaxImagesPerProduct limits images attached to one product.
const MaxImagesPerProduct = 10

// Page bounds a list query.
type Page struct {
	Offset int
	Limit  int
}

var (
	// ErrNotFound indicates the product does not exist or is not visible.
	ErrNotFound = errors.New("product not found")
	// ErrUnavailable indicates the product is INACTIVE and cannot be ordered.
	ErrUnavailable = errors.New("product unavailable")
	// ErrOutOfStock indicates the requested quantity exceeds available stock.
	ErrOutOfStock = errors.New("out of stock")
	// ErrConflict indicates a concurrent stock mutation committed first; the
	// caller must re-read before retrying.
	ErrConflict = errors.New("concurrent stock update")

	// ErrCategoryNotFound indicates the category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrCategoryDepth indicates the category tree limit would be exceeded.
	ErrCategoryDepth = errors.New("category depth exceeded")
	// ErrCategoryHasProducts blocks deleting a category that still has products.
	ErrCategoryHasProducts = errors.New("category has products")
	// ErrImageLimit blocks attaching more images than allowed.
	ErrImageLimit = errors.New("image limit exceeded")
	// ErrImageNotFound indicates the product image does not exist.
	ErrImageNotFound = errors.New("product image not found")
)

// Repository defines catalog persistence. Get returns the product in any
// status; listing is restricted to ACTIVE products.
type Repository interface {
	CreateProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context, categoryID string, page Page) ([]Product, error)
	UpdateProduct(ctx context.Context, p Product) error

	CreateCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, id string) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	DeleteCategory(ctx context.Context, id string) error

	AddImage(ctx context.Context, img Image) error
	ListImages(ctx context.Context, productID string) ([]Image, error)
	DeleteImage(ctx context.Context, imageID string) error
}
