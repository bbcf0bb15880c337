package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/payment"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/cache"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/kafka"
	"github.com/aquatrack-hygiene/service-booking/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []kafka.CloudEvent
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, ce kafka.CloudEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ce)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func (p *recordingPublisher) last() kafka.CloudEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

// stubGateway fails or blocks on CreateOrder and Verify.
type stubGateway struct {
	err   error
	block bool
}

func (g *stubGateway) wait(ctx context.Context) error {
	if g.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return g.err
}

func (g *stubGateway) CreateOrder(ctx context.Context, _ payment.OrderRequest) (*payment.Order, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return &payment.Order{ID: "order_stub"}, nil
}

func (g *stubGateway) Verify(ctx context.Context, _ payment.Verification) (bool, error) {
	if err := g.wait(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (g *stubGateway) KeyID() string    { return "stub" }
func (g *stubGateway) Provider() string { return "stub" }

type fixture struct {
	repo      *repository.MemoryBookingRepository
	accounts  *repository.MemoryAccounts
	gateway   *payment.MockGateway
	locker    *cache.LocalLocker
	publisher *recordingPublisher
	bookings  *BookingService
	jobs      *JobService

	customer   Actor
	other      Actor
	technician Actor
	admin      Actor
	addressID  uuid.UUID
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithGateway(t, nil)
}

func newFixtureWithGateway(t *testing.T, gw payment.Gateway) *fixture {
	t.Helper()

	f := &fixture{
		repo:       repository.NewMemoryBookingRepository(),
		accounts:   repository.NewMemoryAccounts(),
		gateway:    payment.NewMockGateway("test-secret"),
		locker:     cache.NewLocalLocker(),
		publisher:  &recordingPublisher{},
		customer:   NewActor(uuid.New(), auth.RoleCustomer),
		other:      NewActor(uuid.New(), auth.RoleCustomer),
		technician: NewActor(uuid.New(), auth.RoleTechnician),
		admin:      NewActor(uuid.New(), auth.RoleAdmin),
		addressID:  uuid.New(),
	}
	if gw == nil {
		gw = f.gateway
	}

	f.accounts.AddCustomer(account.Contact{ID: f.customer.ID, Name: "Asha", Email: "asha@example.com", Phone: "9000000001"})
	f.accounts.AddCustomer(account.Contact{ID: f.other.ID, Name: "Ravi", Email: "ravi@example.com", Phone: "9000000002"})
	f.accounts.AddTechnician(f.technician.ID)
	f.accounts.AddAdmin(f.admin.ID)
	f.accounts.AddAddress(account.Address{
		ID:          f.addressID,
		UserID:      f.customer.ID,
		Name:        "Home",
		AddressLine: "12 Lake Road",
		CreatedAt:   fixedNow,
	})

	logger := zap.NewNop()
	f.bookings = NewBookingService(
		f.repo, f.accounts, f.accounts,
		bookingDomain.NewStandardPricingStrategy(),
		gw, f.locker, f.publisher,
		PaymentSettings{Timeout: 50 * time.Millisecond},
		logger,
	)
	f.jobs = NewJobService(f.repo, f.accounts, f.accounts, f.publisher, logger)
	f.jobs.now = func() time.Time { return fixedNow }
	return f
}

func (f *fixture) request(method string) CreateBookingRequest {
	return CreateBookingRequest{
		AddressID:     f.addressID,
		TankType:      "overhead",
		TankCapacity:  "1000L",
		PackageType:   "manual",
		ServiceDate:   "2026-03-14",
		ServiceTime:   "10:00-12:00",
		PaymentMethod: method,
	}
}

func (f *fixture) createBooking(t *testing.T, method string) *BookingDTO {
	t.Helper()
	bk, err := f.bookings.CreateBooking(context.Background(), f.customer, f.request(method))
	require.NoError(t, err)
	return bk
}

// confirmedAndAssigned returns a COD booking that is confirmed and assigned
// to the fixture technician.
func (f *fixture) confirmedAndAssigned(t *testing.T) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	bk := f.createBooking(t, "cod")
	_, err := f.bookings.CreatePaymentOrder(ctx, f.customer, bk.ID)
	require.NoError(t, err)
	_, err = f.bookings.AssignTechnician(ctx, f.admin, bk.ID, f.technician.ID)
	require.NoError(t, err)
	return bk.ID
}

func (f *fixture) startedJob(t *testing.T) uuid.UUID {
	t.Helper()
	id := f.confirmedAndAssigned(t)
	_, err := f.jobs.StartJob(context.Background(), f.technician, id)
	require.NoError(t, err)
	return id
}

func assertKind(t *testing.T, want domain.ErrorKind, err error) {
	t.Helper()
	if assert.Error(t, err) {
		assert.Equal(t, want, domain.KindOf(err), "error: %v", err)
	}
}

var errGatewayDown = errors.New("connection refused")
