// Package user defines accounts and the address book.
package user

import (
	"context"
	"errors"
	"time"
)

// Role separates shoppers from catalog administrators.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// User is an account. PasswordHash is a bcrypt hash and is never serialized.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Address is a shipping destination owned by one user. Orders reference it
// by id; it is not copied into the order.
type Address struct {
	ID         string `json:"id"`
	UserID     string `json:"-"`
	Label      string `json:"label"`
	Recipient  string `json:"recipient"`
	Phone      string `json:"phone"`
	PostalCode string `json:"postalCode"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	Default    bool   `json:"default"`
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrEmailExists indicates the email is already registered.
	ErrEmailExists = errors.New("email already in use")
	// ErrAddressNotFound indicates the address does not exist or is not
	// owned by the caller.
	ErrAddressNotFound = errors.New("address not found")
	// ErrAddressInUse blocks deleting an address referenced by an order.
	ErrAddressInUse = errors.New("address in use by an order")
)

// Repository persists users and addresses. Address reads and writes are
// scoped to the owning user; a mismatch is indistinguishable from a missing
// row.
type Repository interface {
	CreateUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateUser(ctx context.Context, u User) error

	// CreateAddress and UpdateAddress clear the previous default when the
	// new address is marked default.
	CreateAddress(ctx context.Context, a Address) error
	GetAddress(ctx context.Context, addressID, userID string) (Address, error)
	ListAddresses(ctx context.Context, userID string) ([]Address, error)
	UpdateAddress(ctx context.Context, a Address) error
	DeleteAddress(ctx context.Context, addressID, userID string) error
}
