// Package account holds the read-only views of customers, technicians,
// admins and service addresses that bookings refer to. Their CRUD lives in
// other services.
package account

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Address is a customer's service location.
type Address struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	Name        string    `json:"name"`
	AddressLine string    `json:"address_line"`
	Landmark    string    `json:"landmark,omitempty"`
	Lat         *float64  `json:"lat,omitempty"`
	Lng         *float64  `json:"lng,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Contact is the customer information shown to the assigned technician.
type Contact struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Phone string    `json:"phone"`
}

// AddressRepository reads service addresses.
type AddressRepository interface {
	// FindOwned returns the address only if it belongs to ownerID; otherwise NotFound.
	FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*Address, error)

	// FindByID returns the address regardless of owner.
	FindByID(ctx context.Context, id uuid.UUID) (*Address, error)
}

// Directory answers identity questions about known principals.
type Directory interface {
	TechnicianExists(ctx context.Context, id uuid.UUID) (bool, error)
	CustomerExists(ctx context.Context, id uuid.UUID) (bool, error)
	AdminExists(ctx context.Context, id uuid.UUID) (bool, error)
	FindCustomer(ctx context.Context, id uuid.UUID) (*Contact, error)
}
