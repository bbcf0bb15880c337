package application

import (
	"context"
	"errors"
	"fmt"

	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
)

// Actor is the authenticated caller of a use case.
type Actor struct {
	ID   uuid.UUID
	Role auth.Role
}

// NewActor builds an Actor from a resolved identity.
func NewActor(id uuid.UUID, role auth.Role) Actor {
	return Actor{ID: id, Role: role}
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == auth.RoleAdmin }

// IsCustomer reports whether the actor holds the customer role.
func (a Actor) IsCustomer() bool { return a.Role == auth.RoleCustomer }

// IsTechnician reports whether the actor holds the technician role.
func (a Actor) IsTechnician() bool { return a.Role == auth.RoleTechnician }

// CanView reports whether the actor may see the booking: its owner, its
// assigned technician, or any admin.
func (a Actor) CanView(bk *bookingDomain.Booking) bool {
	switch {
	case a.IsAdmin():
		return true
	case a.IsCustomer():
		return bk.UserID() == a.ID
	case a.IsTechnician():
		return bk.IsAssignedTo(a.ID)
	}
	return false
}

func requireRole(a Actor, role auth.Role) error {
	if a.Role != role {
		return domain.NewForbiddenError(fmt.Sprintf("%s role required", role))
	}
	return nil
}

// findVisible loads a booking and hides it from actors who may not see it.
func findVisible(ctx context.Context, repo bookingDomain.BookingRepository, actor Actor, id uuid.UUID) (*bookingDomain.Booking, error) {
	bk, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanView(bk) {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return bk, nil
}

// explainGuardMiss turns a failed guarded update into NotFound or Conflict by
// re-reading the booking. Other errors pass through wrapped.
func explainGuardMiss(ctx context.Context, repo bookingDomain.BookingRepository, id uuid.UUID, action string, err error) error {
	if !errors.Is(err, bookingDomain.ErrGuardFailed) {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	current, findErr := repo.FindByID(ctx, id)
	if findErr != nil {
		return findErr
	}
	return domain.NewConflictError(fmt.Sprintf("cannot %s: booking is %s", action, current.Status()))
}
