package product

import (
	"context"

	"github.com/google/uuid"
)

// Service implements the public catalog reads and the admin mutations.
type Service struct {
	repo Repository
}

// NewService creates a catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// List returns ACTIVE products, optionally filtered by category.
func (s *Service) List(ctx context.Context, categoryID string, page Page) ([]Product, error) {
	return s.repo.ListProducts(ctx, categoryID, page)
}

// Get returns a product for public display. INACTIVE products are reported
// as not found.
func (s *Service) Get(ctx context.Context, id string) (Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if p.Status != StatusActive {
		return Product{}, ErrNotFound
	}
	return p, nil
}

// NewProduct holds the admin-supplied fields for creating a product.
type NewProduct struct {
	CategoryID  string `json:"categoryId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int    `json:"price"`
	Stock       int    `json:"stock"`
}

// Create registers a new ACTIVE product.
func (s *Service) Create(ctx context.Context, np NewProduct) (Product, error) {
	if _, err := s.repo.GetCategory(ctx, np.CategoryID); err != nil {
		return Product{}, err
	}
	p := Product{
		ID:          uuid.NewString(),
		CategoryID:  np.CategoryID,
		Name:        np.Name,
		Description: np.Description,
		Price:       np.Price,
		Stock:       np.Stock,
		Status:      StatusActive,
	}
	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Update edits catalog fields of an existing product. The category may
// change. Existing order lines keep their snapshots.
func (s *Service) Update(ctx context.Context, id string, np NewProduct) (Product, error) {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if _, err := s.repo.GetCategory(ctx, np.CategoryID); err != nil {
		return Product{}, err
	}
	p.CategoryID = np.CategoryID
	p.Name = np.Name
	p.Description = np.Description
	p.Price = np.Price
	p.Stock = np.Stock
	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Deactivate soft-deletes a product. Images and order references stay.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusInactive)
}

// Activate puts a product back on sale.
func (s *Service) Activate(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, StatusActive)
}

func (s *Service) setStatus(ctx context.Context, id string, st Status) error {
	p, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	p.Status = st
	return s.repo.UpdateProduct(ctx, p)
}

// CreateCategory adds a category under parentID, or a root when parentID is
// empty. The tree is capped at MaxCategoryDepth levels.
func (s *Service) CreateCategory(ctx context.Context, name, parentID string) (Category, error) {
	depth := 1
	if parentID != "" {
		parent, err := s.repo.GetCategory(ctx, parentID)
		if err != nil {
			return Category{}, err
		}
		depth = parent.Depth + 1
		if depth > MaxCategoryDepth {
			return Category{}, ErrCategoryDepth
		}
	}
	c := Category{ID: uuid.NewString(), ParentID: parentID, Name: name, Depth: depth}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

// DeleteCategory removes an empty category. Categories with products are
// kept (ErrCategoryHasProducts).
func (s *Service) DeleteCategory(ctx context.Context, id string) error {
	return s.repo.DeleteCategory(ctx, id)
}

// AddImage attaches an image URL to a product, up to MaxImagesPerProduct.
func (s *Service) AddImage(ctx context.Context, productID, url string) (Image, error) {
	if _, err := s.repo.GetProduct(ctx, productID); err != nil {
		return Image{}, err
	}
	existing, err := s.repo.ListImages(ctx, productID)
	if err != nil {
		return Image{}, err
	}
	if len(existing) >= MaxImagesPerProduct {
		return Image{}, ErrImageLimit
	}
	img := Image{ID: uuid.NewString(), ProductID: productID, URL: url, Position: len(existing)}
	if err := s.repo.AddImage(ctx, img); err != nil {
		return Image{}, err
	}
	return img, nil
}

// Images lists a product's images.
func (s *Service) Images(ctx context.Context, productID string) ([]Image, error) {
	return s.repo.ListImages(ctx, productID)
}

// DeleteImage removes a product image.
func (s *Service) DeleteImage(ctx context.Context, imageID string) error {
	return s.repo.DeleteImage(ctx, imageID)
}
