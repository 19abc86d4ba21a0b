package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"shopper/pkg/cart"
	"shopper/pkg/otel"
)

type cartResponse struct {
	ID         string          `json:"id"`
	Items      []cart.ViewLine `json:"items"`
	TotalPrice int             `json:"totalPrice"`
}

// getCartHandler returns the caller's cart with product details joined in.
// @Summary View cart
// @Produce json
// @Success 200 {object} cartResponse
// @Router /cart [get]
func getCartHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getCartHandler")
	defer span.End()

	c, items, err := carts.View(ctx, currentUser(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	total := 0
	for _, it := range items {
		total += it.Subtotal
	}
	respond(w, http.StatusOK, cartResponse{ID: c.ID, Items: items, TotalPrice: total})
}

type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// addCartItemHandler puts a product into the cart, merging with an existing
// line for the same product.
// @Summary Add cart item
// @Accept json
// @Param item body addCartItemRequest true "Item"
// @Success 204
// @Router /cart/items [post]
func addCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "addCartItemHandler")
	defer span.End()

	var req addCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		badRequest(w, "productId is required")
		return
	}
	if err := carts.Add(ctx, currentUser(r), req.ProductID, req.Quantity); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// updateCartItemHandler sets the quantity of an owned cart line.
// @Summary Update cart item
// @Accept json
// @Param id path string true "Cart item ID"
// @Param item body updateCartItemRequest true "Quantity"
// @Success 204
// @Router /cart/items/{id} [put]
func updateCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateCartItemHandler")
	defer span.End()

	var req updateCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "quantity is required")
		return
	}
	if err := carts.UpdateQuantity(ctx, currentUser(r), mux.Vars(r)["id"], req.Quantity); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// removeCartItemHandler deletes an owned cart line.
// @Summary Remove cart item
// @Param id path string true "Cart item ID"
// @Success 204
// @Router /cart/items/{id} [delete]
func removeCartItemHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "removeCartItemHandler")
	defer span.End()

	if err := carts.Remove(ctx, currentUser(r), mux.Vars(r)["id"]); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
