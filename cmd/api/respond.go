package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"shopper/pkg/cart"
	"shopper/pkg/order"
	"shopper/pkg/product"
	"shopper/pkg/user"
)

// errorResponse is the body of every failure: a stable machine-readable
// code, a human message, and whether resubmitting the same request may
// succeed.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// respondErr translates a domain error into the HTTP taxonomy. Unclassified
// errors become opaque 500s and are logged, never swallowed.
func respondErr(ctx context.Context, w http.ResponseWriter, err error) {
	status, code, retryable := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error(ctx, "unhandled error", "error", err)
		msg = "internal server error"
	}
	respond(w, status, errorResponse{Code: code, Message: msg, Retryable: retryable})
}

func classify(err error) (status int, code string, retryable bool) {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound, "USER_NOT_FOUND", false
	case errors.Is(err, user.ErrEmailExists):
		return http.StatusConflict, "EMAIL_ALREADY_EXISTS", false
	case errors.Is(err, user.ErrAddressNotFound):
		return http.StatusNotFound, "ADDRESS_NOT_FOUND", false
	case errors.Is(err, user.ErrAddressInUse):
		return http.StatusBadRequest, "ADDRESS_IN_USE", false
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND", false
	case errors.Is(err, product.ErrUnavailable):
		return http.StatusConflict, "PRODUCT_UNAVAILABLE", false
	case errors.Is(err, product.ErrOutOfStock):
		return http.StatusConflict, "OUT_OF_STOCK", false
	case errors.Is(err, product.ErrConflict):
		return http.StatusConflict, "CONCURRENCY_CONFLICT", true
	case errors.Is(err, product.ErrCategoryNotFound):
		return http.StatusNotFound, "CATEGORY_NOT_FOUND", false
	case errors.Is(err, product.ErrCategoryDepth):
		return http.StatusBadRequest, "CATEGORY_DEPTH_EXCEEDED", false
	case errors.Is(err, product.ErrCategoryHasProducts):
		return http.StatusBadRequest, "CATEGORY_HAS_PRODUCTS", false
	case errors.Is(err, product.ErrImageLimit):
		return http.StatusBadRequest, "IMAGE_LIMIT_EXCEEDED", false
	case errors.Is(err, product.ErrImageNotFound):
		return http.StatusNotFound, "PRODUCT_IMAGE_NOT_FOUND", false
	case errors.Is(err, cart.ErrLineNotFound):
		return http.StatusNotFound, "CART_ITEM_NOT_FOUND", false
	case errors.Is(err, cart.ErrQuantityInvalid):
		return http.StatusBadRequest, "CART_ITEM_QUANTITY_INVALID", false
	case errors.Is(err, order.ErrNotFound):
		return http.StatusNotFound, "ORDER_NOT_FOUND", false
	case errors.Is(err, order.ErrAlreadyPaid):
		return http.StatusBadRequest, "ORDER_ALREADY_PAID", false
	case errors.Is(err, order.ErrCancelNotAllowed):
		return http.StatusBadRequest, "ORDER_CANCEL_NOT_ALLOWED", false
	case errors.Is(err, order.ErrNotPayable):
		return http.StatusBadRequest, "ORDER_NOT_PAYABLE", false
	case errors.Is(err, order.ErrEmptySelection):
		return http.StatusBadRequest, "INVALID_INPUT", false
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", false
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	respond(w, http.StatusBadRequest, errorResponse{Code: "INVALID_INPUT", Message: msg})
}
