package application

import (
	"testing"

	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActor_CanView(t *testing.T) {
	owner, tech := uuid.New(), uuid.New()
	spec := bookingDomain.ServiceSpec{
		TankType:     bookingDomain.TankOverhead,
		TankCapacity: "1000L",
		PackageType:  bookingDomain.PackageManual,
		ServiceDate:  "2026-11-02",
		ServiceTime:  "10:00-12:00",
	}
	bk, err := bookingDomain.NewBooking(owner, uuid.New(), spec, bookingDomain.PaymentCOD, 150000, domain.CurrencyINR)
	require.NoError(t, err)
	require.NoError(t, bk.AssignTechnician(tech))

	tests := []struct {
		name  string
		actor Actor
		want  bool
	}{
		{"any admin", NewActor(uuid.New(), auth.RoleAdmin), true},
		{"owner", NewActor(owner, auth.RoleCustomer), true},
		{"other customer", NewActor(uuid.New(), auth.RoleCustomer), false},
		{"assigned technician", NewActor(tech, auth.RoleTechnician), true},
		{"other technician", NewActor(uuid.New(), auth.RoleTechnician), false},
		{"owner id with technician role", NewActor(owner, auth.RoleTechnician), false},
		{"unknown role", NewActor(owner, auth.Role("guest")), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.actor.CanView(bk))
		})
	}
}

func TestActor_RoleHelpers(t *testing.T) {
	admin := NewActor(uuid.New(), auth.RoleAdmin)
	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.IsCustomer())
	assert.False(t, admin.IsTechnician())

	tech := NewActor(uuid.New(), auth.RoleTechnician)
	assert.True(t, tech.IsTechnician())
	assert.NoError(t, requireRole(tech, auth.RoleTechnician))
	assert.Error(t, requireRole(tech, auth.RoleAdmin))
}
