package main

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"shopper/pkg/otel"
	"shopper/pkg/user"
)

// meHandler returns the authenticated account.
// @Summary Current account
// @Produce json
// @Success 200 {object} user.User
// @Router /me [get]
func meHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "meHandler")
	defer span.End()

	u, err := users.GetUser(ctx, currentUser(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, u)
}

type updateMeRequest struct {
	Name string `json:"name"`
}

// updateMeHandler edits the authenticated account's profile fields.
// @Summary Update account
// @Accept json
// @Produce json
// @Param profile body updateMeRequest true "Profile"
// @Success 200 {object} user.User
// @Router /me [put]
func updateMeHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateMeHandler")
	defer span.End()

	var req updateMeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		badRequest(w, "name is required")
		return
	}
	u, err := users.GetUser(ctx, currentUser(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	u.Name = req.Name
	if err := users.UpdateUser(ctx, u); err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, u)
}

// listAddressesHandler returns the caller's address book.
// @Summary List addresses
// @Produce json
// @Success 200 {array} user.Address
// @Router /addresses [get]
func listAddressesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "listAddressesHandler")
	defer span.End()

	list, err := users.ListAddresses(ctx, currentUser(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, list)
}

type addressRequest struct {
	Label      string `json:"label"`
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postalCode"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	Default    bool   `json:"default"`
}

// createAddressHandler adds a shipping address to the caller's book.
// @Summary Create address
// @Accept json
// @Produce json
// @Param address body addressRequest true "Address"
// @Success 201 {object} user.Address
// @Router /addresses [post]
func createAddressHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "createAddressHandler")
	defer span.End()

	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Recipient == "" || req.Line1 == "" {
		badRequest(w, "recipient and line1 are required")
		return
	}
	a := user.Address{
		ID:         uuid.NewString(),
		UserID:     currentUser(r),
		Label:      req.Label,
		Recipient:  req.Recipient,
		Phone:      req.Phone,
		PostalCode: req.PostalCode,
		Line1:      req.Line1,
		Line2:      req.Line2,
		Default:    req.Default,
	}
	if err := users.CreateAddress(ctx, a); err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusCreated, a)
}

// updateAddressHandler edits an owned address.
// @Summary Update address
// @Accept json
// @Produce json
// @Param id path string true "Address ID"
// @Param address body addressRequest true "Address"
// @Success 200 {object} user.Address
// @Router /addresses/{id} [put]
func updateAddressHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "updateAddressHandler")
	defer span.End()

	var req addressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Recipient == "" || req.Line1 == "" {
		badRequest(w, "recipient and line1 are required")
		return
	}
	a, err := users.GetAddress(ctx, mux.Vars(r)["id"], currentUser(r))
	if err != nil {
		respondErr(ctx, w, err)
		return
	}
	a.Label = req.Label
	a.Recipient = req.Recipient
	a.Phone = req.Phone
	a.PostalCode = req.PostalCode
	a.Line1 = req.Line1
	a.Line2 = req.Line2
	a.Default = req.Default
	if err := users.UpdateAddress(ctx, a); err != nil {
		respondErr(ctx, w, err)
		return
	}
	respond(w, http.StatusOK, a)
}

// deleteAddressHandler removes an owned address. Addresses referenced by an
// order are kept.
// @Summary Delete address
// @Param id path string true "Address ID"
// @Success 204
// @Router /addresses/{id} [delete]
func deleteAddressHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.AddSpan(r.Context(), "deleteAddressHandler")
	defer span.End()

	if err := users.DeleteAddress(ctx, mux.Vars(r)["id"], currentUser(r)); err != nil {
		respondErr(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
