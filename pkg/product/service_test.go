package product_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"shopper/pkg/product"
	"shopper/pkg/store/memory"
)

func TestGetHidesInactive(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := product.NewService(store)

	if err := store.CreateProduct(ctx, product.Product{ID: "p1", Name: "Widget", Status: product.StatusInactive}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Get(ctx, "p1"); !errors.Is(err, product.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Activate(ctx, "p1"); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := svc.Get(ctx, "p1"); err != nil {
		t.Fatalf("get after activate: %v", err)
	}
}

func TestCreateRequiresCategory(t *testing.T) {
	ctx := context.Background()
	svc := product.NewService(memory.New())

	_, err := svc.Create(ctx, product.NewProduct{CategoryID: "missing", Name: "Widget", Price: 1, Stock: 1})
	if !errors.Is(err, product.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCategoryDepthLimit(t *testing.T) {
	ctx := context.Background()
	svc := product.NewService(memory.New())

	parent := ""
	for depth := 1; depth <= product.MaxCategoryDepth; depth++ {
		c, err := svc.CreateCategory(ctx, fmt.Sprintf("level-%d", depth), parent)
		if err != nil {
			t.Fatalf("depth %d: %v", depth, err)
		}
		if c.Depth != depth {
			t.Fatalf("expected depth %d, got %d", depth, c.Depth)
		}
		parent = c.ID
	}
	if _, err := svc.CreateCategory(ctx, "too-deep", parent); !errors.Is(err, product.ErrCategoryDepth) {
		t.Fatalf("expected ErrCategoryDepth, got %v", err)
	}
}

func TestImageLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := product.NewService(store)

	if err := store.CreateProduct(ctx, product.Product{ID: "p1", Status: product.StatusActive}); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < product.MaxImagesPerProduct; i++ {
		img, err := svc.AddImage(ctx, "p1", fmt.Sprintf("https://img.example.com/%d.jpg", i))
		if err != nil {
			t.Fatalf("image %d: %v", i, err)
		}
		if img.Position != i {
			t.Fatalf("expected position %d, got %d", i, img.Position)
		}
	}
	if _, err := svc.AddImage(ctx, "p1", "https://img.example.com/extra.jpg"); !errors.Is(err, product.ErrImageLimit) {
		t.Fatalf("expected ErrImageLimit, got %v", err)
	}

	imgs, err := svc.Images(ctx, "p1")
	if err != nil || len(imgs) != product.MaxImagesPerProduct {
		t.Fatalf("images: %v len=%d", err, len(imgs))
	}
	if err := svc.DeleteImage(ctx, imgs[0].ID); err != nil {
		t.Fatalf("delete image: %v", err)
	}
}
