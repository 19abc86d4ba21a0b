package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"shopper/pkg/otel"
	"shopper/pkg/product"
)

// productCacheTTL bounds how stale a cached product detail may be. Stock
// shown here is advisory; the binding check happens at placement.
const productCacheTTL = 30 * time.Second

func pageFromQuery(r *http.Request) product.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	if size <= 0 {
		size = 20
	}
	if page < 0 {
		page = 0
	}
	return product.Page{Offset: page * size, Limit: size}
}

// listProductsHandler returns ACTIVE products, optionally by category.
// @Summary List products
// @Produce json
// @Param categoryId query string false "Category filter"
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {array} product.Product
// @Router /products [get]
func listProductsHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listProductsHandler")
	defer span.End()

	list, err := catalog.List(ctx, r.URL.Query().Get("categoryId"), pageFromQuery(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// getProductHandler returns one ACTIVE product. Details are served from a
// short-lived Redis cache; admin writes invalidate the entry.
// @Summary Get product
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {object} product.Product
// @Router /products/{id} [get]
func getProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getProductHandler")
	defer span.End()

	id := mux.Vars(r)["id"]
	if cached, err := redisClient.Get(ctx, "product:"+id).Result(); err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(cached))
		return
	}

	p, err := catalog.Get(ctx, id)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	if body, err := json.Marshal(p); err == nil {
		redisClient.Set(ctx, "product:"+id, body, productCacheTTL)
	}
	respond(w, http.StatusOK, p)
}

// listProductImagesHandler returns a product's images in display order.
// @Summary List product images
// @Produce json
// @Param id path string true "Product ID"
// @Success 200 {array} product.Image
// @Router /products/{id}/images [get]
func listProductImagesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listProductImagesHandler")
	defer span.End()

	imgs, err := catalog.Images(ctx, mux.Vars(r)["id"])
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, imgs)
}

// listCategoriesHandler returns the category tree as a flat list.
// @Summary List categories
// @Produce json
// @Success 200 {array} product.Category
// @Router /categories [get]
func listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listCategoriesHandler")
	defer span.End()

	list, err := products.ListCategories(ctx)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

func invalidateProduct(ctx context.Context, id string) {
	redisClient.Del(ctx, "product:"+id)
}

// adminCreateProductHandler registers a new product.
// @Summary Create product
// @Accept json
// @Produce json
// @Param product body product.NewProduct true "Product"
// @Success 201 {object} product.Product
// @Router /admin/products [post]
func adminCreateProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminCreateProductHandler")
	defer span.End()

	var np product.NewProduct
	if err := json.NewDecoder(r.Body).Decode(&np); err != nil || np.Name == "" || np.Price < 0 || np.Stock < 0 {
		badRequest(w, "name is required; price and stock must be non-negative")
		return
	}
	p, err := catalog.Create(ctx, np)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusCreated, p)
}

// adminUpdateProductHandler edits catalog fields of a product.
// @Summary Update product
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param product body product.NewProduct true "Product"
// @Success 200 {object} product.Product
// @Router /admin/products/{id} [put]
func adminUpdateProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminUpdateProductHandler")
	defer span.End()

	var np product.NewProduct
	if err := json.NewDecoder(r.Body).Decode(&np); err != nil || np.Name == "" || np.Price < 0 || np.Stock < 0 {
		badRequest(w, "name is required; price and stock must be non-negative")
		return
	}
	id := mux.Vars(r)["id"]
	p, err := catalog.Update(ctx, id, np)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	invalidateProduct(ctx, id)
	respond(w, http.StatusOK, p)
}

// adminDeleteProductHandler deactivates a product. Order snapshots and
// images are untouched.
// @Summary Deactivate product
// @Param id path string true "Product ID"
// @Success 204
// @Router /admin/products/{id} [delete]
func adminDeleteProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminDeleteProductHandler")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := catalog.Deactivate(ctx, id); err != nil {
		respondErr(ctx, w, err)
		return
	}
	invalidateProduct(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

// adminActivateProductHandler puts a product back on sale.
// @Summary Activate product
// @Param id path string true "Product ID"
// @Success 204
// @Router /admin/products/{id}/activate [post]
func adminActivateProductHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminActivateProductHandler")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := catalog.Activate(ctx, id); err != nil {
		respondErr(ctx, w, err)
		return
	}
	invalidateProduct(ctx, id)
	w.WriteHeader(http.StatusNoContent)
}

type addImageRequest struct {
	URL string `json:"url"`
}

// adminAddImageHandler attaches an image URL to a product.
// @Summary Add product image
// @Accept json
// @Produce json
// @Param id path string true "Product ID"
// @Param image body addImageRequest true "Image"
// @Success 201 {object} product.Image
// @Router /admin/products/{id}/images [post]
func adminAddImageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminAddImageHandler")
	defer span.End()

	var req addImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		badRequest(w, "url is required")
		return
	}
	img, err := catalog.AddImage(ctx, mux.Vars(r)["id"], req.URL)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusCreated, img)
}

// adminDeleteImageHandler removes a product image.
// @Summary Delete product image
// @Param id path string true "Image ID"
// @Success 204
// @Router /admin/images/{id} [delete]
func adminDeleteImageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminDeleteImageHandler")
	defer span.End()

	if err := catalog.DeleteImage(ctx, mux.Vars(r)["id"]); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type createCategoryRequest struct {
	Name     string `json:"name"`
	ParentID string `json:"parentId"`
}

// adminCreateCategoryHandler adds a category node.
// @Summary Create category
// @Accept json
// @Produce json
// @Param category body createCategoryRequest true "Category"
// @Success 201 {object} product.Category
// @Router /admin/categories [post]
func adminCreateCategoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminCreateCategoryHandler")
	defer span.End()

	var req createCategoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	c, err := catalog.CreateCategory(ctx, req.Name, req.ParentID)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusCreated, c)
}

// adminDeleteCategoryHandler removes an empty category.
// @Summary Delete category
// @Param id path string true "Category ID"
// @Success 204
// @Router /admin/categories/{id} [delete]
func adminDeleteCategoryHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "adminDeleteCategoryHandler")
	defer span.End()

	if err := catalog.DeleteCategory(ctx, mux.Vars(r)["id"]); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
