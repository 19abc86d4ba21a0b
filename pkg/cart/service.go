package cart

import (
	"context"

	"github.com/google/uuid"

	"shopper/pkg/product"
)

// Service implements cart viewing and editing. Stock checks here are
// advisory (against nominal stock); the binding check happens at order
// placement.
type Service struct {
	carts    Repository
	products product.Repository
}

// NewService creates a cart service.
func NewService(carts Repository, products product.Repository) *Service {
	return &Service{carts: carts, products: products}
}

// ViewLine is a cart line joined with its product for display.
type ViewLine struct {
	Line
	ProductName string `json:"productName"`
	Price       int    `json:"price"`
	Subtotal    int    `json:"subtotal"`
}

// View returns the caller's cart. Lines whose product has been deactivated
// are filtered out of the view but kept in the cart.
func (s *Service) View(ctx context.Context, userID string) (Cart, []ViewLine, error) {
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, nil, err
	}
	lines, err := s.carts.ListLines(ctx, c.ID)
	if err != nil {
		return Cart{}, nil, err
	}
	view := make([]ViewLine, 0, len(lines))
	for _, l := range lines {
		p, err := s.products.GetProduct(ctx, l.ProductID)
		if err != nil {
			return Cart{}, nil, err
		}
		if p.Status != product.StatusActive {
			continue
		}
		view = append(view, ViewLine{
			Line:        l,
			ProductName: p.Name,
			Price:       p.Price,
			Subtotal:    p.Price * l.Quantity,
		})
	}
	return c, view, nil
}

// Add puts quantity units of a product into the caller's cart. If the cart
// already holds the product the quantities merge, and the merged quantity is
// re-validated against stock.
func (s *Service) Add(ctx context.Context, userID, productID string, quantity int) error {
	if quantity < 1 {
		return ErrQuantityInvalid
	}
	c, err := s.carts.GetOrCreateCart(ctx, userID)
	if err != nil {
		return err
	}
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return err
	}
	if p.Status != product.StatusActive {
		return product.ErrNotFound
	}
	if quantity > p.Stock {
		return product.ErrOutOfStock
	}

	existing, err := s.carts.FindLineByProduct(ctx, c.ID, productID)
	if err == nil {
		merged := existing.Quantity + quantity
		if merged > p.Stock {
			return product.ErrOutOfStock
		}
		return s.carts.UpdateLineQuantity(ctx, existing.ID, merged)
	}
	if err != ErrLineNotFound {
		return err
	}
	return s.carts.CreateLine(ctx, Line{
		ID:        uuid.NewString(),
		CartID:    c.ID,
		ProductID: productID,
		Quantity:  quantity,
	})
}

// UpdateQuantity sets the quantity of an owned cart line.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID string, quantity int) error {
	if quantity < 1 {
		return ErrQuantityInvalid
	}
	l, err := s.carts.GetLineForUser(ctx, lineID, userID)
	if err != nil {
		return err
	}
	p, err := s.products.GetProduct(ctx, l.ProductID)
	if err != nil {
		return err
	}
	if quantity > p.Stock {
		return product.ErrOutOfStock
	}
	return s.carts.UpdateLineQuantity(ctx, l.ID, quantity)
}

// Remove deletes an owned cart line.
func (s *Service) Remove(ctx context.Context, userID, lineID string) error {
	l, err := s.carts.GetLineForUser(ctx, lineID, userID)
	if err != nil {
		return err
	}
	return s.carts.DeleteLine(ctx, l.ID)
}
