package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
)

// MemoryBookingRepository keeps bookings in process. Each guarded update runs
// under one mutex, which gives the same all-or-nothing behaviour as a single
// UPDATE statement.
type MemoryBookingRepository struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*bookingDomain.Booking
}

// NewMemoryBookingRepository creates an empty MemoryBookingRepository.
func NewMemoryBookingRepository() *MemoryBookingRepository {
	return &MemoryBookingRepository{bookings: make(map[uuid.UUID]*bookingDomain.Booking)}
}

func (r *MemoryBookingRepository) Save(_ context.Context, bk *bookingDomain.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.bookings[bk.ID()]; exists {
		return domain.NewConflictError("booking already exists")
	}
	r.bookings[bk.ID()] = bk.Clone()
	return nil
}

func (r *MemoryBookingRepository) FindByID(_ context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bk, ok := r.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("Booking", id.String())
	}
	return bk.Clone(), nil
}

func (r *MemoryBookingRepository) List(_ context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	r.mu.RLock()
	var matched []*bookingDomain.Booking
	for _, bk := range r.bookings {
		if matches(bk, filter) {
			matched = append(matched, bk.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if filter.SortByServiceDate && a.Spec().ServiceDate != b.Spec().ServiceDate {
			return a.Spec().ServiceDate < b.Spec().ServiceDate
		}
		if filter.SortByServiceDate {
			return a.CreatedAt().Before(b.CreatedAt())
		}
		return a.CreatedAt().After(b.CreatedAt())
	})

	total := int64(len(matched))
	start := filter.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := len(matched)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return matched[start:end], total, nil
}

func matches(bk *bookingDomain.Booking, f bookingDomain.ListFilter) bool {
	if f.UserID != nil && bk.UserID() != *f.UserID {
		return false
	}
	if f.TechnicianID != nil && !bk.IsAssignedTo(*f.TechnicianID) {
		return false
	}
	if f.ServiceDate != "" && bk.Spec().ServiceDate != f.ServiceDate {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if bk.Status() == s {
			return true
		}
	}
	return false
}

func (r *MemoryBookingRepository) CountByStatus(_ context.Context) (map[bookingDomain.BookingStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[bookingDomain.BookingStatus]int64)
	for _, bk := range r.bookings {
		counts[bk.Status()]++
	}
	return counts, nil
}

func (r *MemoryBookingRepository) CountJobs(_ context.Context, techID uuid.UUID, today string) (bookingDomain.JobCounts, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var c bookingDomain.JobCounts
	for _, bk := range r.bookings {
		if !bk.IsAssignedTo(techID) {
			continue
		}
		c.Total++
		isToday := bk.Spec().ServiceDate == today
		if isToday {
			c.Today++
		}
		if isToday && bk.Status() == bookingDomain.StatusCompleted {
			c.CompletedToday++
		}
		if bk.Status() == bookingDomain.StatusInProgress {
			c.InProgress++
		}
	}
	return c, nil
}

// mutate applies fn to the stored booking under the write lock. Any error
// from fn is a guard miss and leaves the stored booking untouched.
func (r *MemoryBookingRepository) mutate(id uuid.UUID, fn func(*bookingDomain.Booking) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bk, ok := r.bookings[id]
	if !ok {
		return bookingDomain.ErrGuardFailed
	}
	next := bk.Clone()
	if err := fn(next); err != nil {
		return bookingDomain.ErrGuardFailed
	}
	r.bookings[id] = next
	return nil
}

func (r *MemoryBookingRepository) SetOrderRef(_ context.Context, id uuid.UUID, orderRef string) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.SetOrderRef(orderRef) })
}

func (r *MemoryBookingRepository) ConfirmPayment(_ context.Context, id uuid.UUID, expectOrderRef string, paymentStatus bookingDomain.PaymentStatus, paymentRef string) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error {
		return bk.ConfirmPayment(expectOrderRef, paymentStatus, paymentRef)
	})
}

func (r *MemoryBookingRepository) FailPayment(_ context.Context, id uuid.UUID, expectOrderRef string) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.FailPayment(expectOrderRef) })
}

func (r *MemoryBookingRepository) AssignTechnician(_ context.Context, id uuid.UUID, techID uuid.UUID) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.AssignTechnician(techID) })
}

func (r *MemoryBookingRepository) StartJob(_ context.Context, id uuid.UUID, techID uuid.UUID, checklist *bookingDomain.Checklist) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.StartJob(techID, checklist.Clone()) })
}

func (r *MemoryBookingRepository) UpdateStep(_ context.Context, id uuid.UUID, techID uuid.UUID, update bookingDomain.StepUpdate) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.UpdateStep(techID, update) })
}

func (r *MemoryBookingRepository) RecordUsage(_ context.Context, id uuid.UUID, techID uuid.UUID, usage bookingDomain.UsageUpdate) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.RecordUsage(techID, usage) })
}

func (r *MemoryBookingRepository) AppendIncident(_ context.Context, id uuid.UUID, techID uuid.UUID, incident bookingDomain.IncidentReport, escalate bool) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.AppendIncident(techID, incident, escalate) })
}

func (r *MemoryBookingRepository) Complete(_ context.Context, id uuid.UUID, techID uuid.UUID, completion bookingDomain.Completion) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.Complete(techID, completion) })
}

func (r *MemoryBookingRepository) Transition(_ context.Context, id uuid.UUID, from []bookingDomain.BookingStatus, to bookingDomain.BookingStatus) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.Transition(from, to) })
}

func (r *MemoryBookingRepository) OverrideStatus(_ context.Context, id uuid.UUID, status bookingDomain.BookingStatus) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.OverrideStatus(status) })
}

func (r *MemoryBookingRepository) Reschedule(_ context.Context, id uuid.UUID, date, slot string) error {
	return r.mutate(id, func(bk *bookingDomain.Booking) error { return bk.Reschedule(date, slot) })
}

// MemoryAccounts is an in-process AddressRepository and Directory.
type MemoryAccounts struct {
	mu          sync.RWMutex
	addresses   map[uuid.UUID]account.Address
	customers   map[uuid.UUID]account.Contact
	technicians map[uuid.UUID]bool
	admins      map[uuid.UUID]bool
}

// NewMemoryAccounts creates an empty MemoryAccounts.
func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{
		addresses:   make(map[uuid.UUID]account.Address),
		customers:   make(map[uuid.UUID]account.Contact),
		technicians: make(map[uuid.UUID]bool),
		admins:      make(map[uuid.UUID]bool),
	}
}

func (m *MemoryAccounts) AddAddress(a account.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addresses[a.ID] = a
}

func (m *MemoryAccounts) AddCustomer(c account.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

func (m *MemoryAccounts) AddTechnician(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.technicians[id] = true
}

func (m *MemoryAccounts) AddAdmin(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.admins[id] = true
}

func (m *MemoryAccounts) FindOwned(ctx context.Context, id, ownerID uuid.UUID) (*account.Address, error) {
	a, err := m.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.UserID != ownerID {
		return nil, domain.NewNotFoundError("Address", id.String())
	}
	return a, nil
}

func (m *MemoryAccounts) FindByID(_ context.Context, id uuid.UUID) (*account.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.addresses[id]
	if !ok {
		return nil, domain.NewNotFoundError("Address", id.String())
	}
	return &a, nil
}

func (m *MemoryAccounts) TechnicianExists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.technicians[id], nil
}

func (m *MemoryAccounts) CustomerExists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.customers[id]
	return ok, nil
}

func (m *MemoryAccounts) AdminExists(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admins[id], nil
}

func (m *MemoryAccounts) FindCustomer(_ context.Context, id uuid.UUID) (*account.Contact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, domain.NewNotFoundError("Customer", id.String())
	}
	return &c, nil
}
