package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"shopper/pkg/otel"
)

type createOrderRequest struct {
	AddressID   string   `json:"addressId"`
	CartItemIDs []string `json:"cartItemIds"`
}

// createOrderHandler turns selected cart items into a PENDING order. Stock
// is reserved atomically; on a concurrency conflict the attempt is retried
// server-side before a 409 is surfaced.
// @Summary Place order
// @Accept json
// @Produce json
// @Param order body createOrderRequest true "Selection"
// @Success 201 {object} order.Order
// @Failure 409 {object} errorResponse
// @Router /orders [post]
func createOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createOrderHandler")
	defer span.End()

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AddressID == "" {
		badRequest(w, "addressId and cartItemIds are required")
		return
	}
	o, err := orders.Place(ctx, currentUser(r), req.AddressID, req.CartItemIDs)
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusCreated, o)
}

// listOrdersHandler returns the caller's orders, newest first.
// @Summary List orders
// @Produce json
// @Param page query int false "Page number"
// @Param size query int false "Page size"
// @Success 200 {array} order.Order
// @Router /orders [get]
func listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listOrdersHandler")
	defer span.End()

	list, err := orders.List(ctx, currentUser(r), pageFromQuery(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

// getOrderHandler returns one of the caller's orders with its snapshots.
// @Summary Get order
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} order.Order
// @Router /orders/{id} [get]
func getOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "getOrderHandler")
	defer span.End()

	o, err := orders.Get(ctx, currentUser(r), mux.Vars(r)["id"])
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, o)
}

// cancelOrderHandler cancels a PENDING order and releases its stock.
// @Summary Cancel order
// @Param id path string true "Order ID"
// @Success 204
// @Failure 400 {object} errorResponse
// @Router /orders/{id}/cancel [post]
func cancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "cancelOrderHandler")
	defer span.End()

	if err := orders.Cancel(ctx, currentUser(r), mux.Vars(r)["id"]); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// payOrderHandler records an external payment confirmation for one of the
// caller's PENDING orders.
// @Summary Confirm payment
// @Param id path string true "Order ID"
// @Success 204
// @Failure 400 {object} errorResponse
// @Router /orders/{id}/pay [post]
func payOrderHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "payOrderHandler")
	defer span.End()

	// Ownership is checked before the status transition; the transition
	// itself is user-agnostic so a payment webhook can share it.
	userID := currentUser(r)
	orderID := mux.Vars(r)["id"]
	if _, err := orders.Get(ctx, userID, orderID); err != nil {
		respondErr(ctx, w, err)
		return
	}
	if err := orders.MarkPaid(ctx, orderID); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
