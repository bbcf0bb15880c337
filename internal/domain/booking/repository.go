package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrGuardFailed is returned by a guarded update whose precondition did not
// hold, including when the booking does not exist. Callers re-read the booking
// to tell the two apart.
var ErrGuardFailed = errors.New("booking update guard failed")

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	UserID       *uuid.UUID
	TechnicianID *uuid.UUID
	Statuses     []BookingStatus
	ServiceDate  string
	// SortByServiceDate orders by service date ascending instead of newest first.
	SortByServiceDate bool
	Page              int
	Limit             int
}

// Offset returns the row offset for the filter's page.
func (f ListFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

// JobCounts summarises a technician's workload.
type JobCounts struct {
	Total          int64 `json:"total_jobs"`
	Today          int64 `json:"today_jobs"`
	CompletedToday int64 `json:"completed_today"`
	InProgress     int64 `json:"in_progress"`
}

// BookingRepository defines the persistence contract for booking aggregates.
//
// Every mutation is one atomic, guarded update of a single booking. List
// fields are appended, never rewritten, and step updates only touch their
// own step. A guard miss returns ErrGuardFailed.
type BookingRepository interface {
	// Save persists a new booking.
	Save(ctx context.Context, booking *Booking) error

	// FindByID retrieves a booking by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// List retrieves bookings matching the filter with pagination.
	List(ctx context.Context, filter ListFilter) ([]*Booking, int64, error)

	// CountByStatus returns booking counts grouped by status (admin).
	CountByStatus(ctx context.Context) (map[BookingStatus]int64, error)

	// CountJobs returns workload counts for a technician; today is YYYY-MM-DD.
	CountJobs(ctx context.Context, techID uuid.UUID, today string) (JobCounts, error)

	// SetOrderRef stores the gateway order. Guard: status=pending.
	SetOrderRef(ctx context.Context, id uuid.UUID, orderRef string) error

	// ConfirmPayment sets status=confirmed and the payment fields together.
	// Guard: status=pending, and order_ref=expectOrderRef when that is non-empty.
	ConfirmPayment(ctx context.Context, id uuid.UUID, expectOrderRef string, paymentStatus PaymentStatus, paymentRef string) error

	// FailPayment sets payment_status=failed. Guard as ConfirmPayment.
	FailPayment(ctx context.Context, id uuid.UUID, expectOrderRef string) error

	// AssignTechnician sets the assigned technician regardless of status.
	AssignTechnician(ctx context.Context, id uuid.UUID, techID uuid.UUID) error

	// StartJob attaches the checklist and sets status=in-progress.
	// Guard: status=confirmed, assigned to techID, no checklist yet.
	StartJob(ctx context.Context, id uuid.UUID, techID uuid.UUID, checklist *Checklist) error

	// UpdateStep patches one checklist step.
	// Guard: status=in-progress, assigned to techID, checklist present.
	UpdateStep(ctx context.Context, id uuid.UUID, techID uuid.UUID, update StepUpdate) error

	// RecordUsage appends a chemical entry and increments water usage. Guard as UpdateStep.
	RecordUsage(ctx context.Context, id uuid.UUID, techID uuid.UUID, usage UsageUpdate) error

	// AppendIncident appends an incident and, with escalate, sets status=escalated.
	// Guard: assigned to techID.
	AppendIncident(ctx context.Context, id uuid.UUID, techID uuid.UUID, incident IncidentReport, escalate bool) error

	// Complete stores the completion and sets status=completed.
	// Guard: status=in-progress, assigned to techID.
	Complete(ctx context.Context, id uuid.UUID, techID uuid.UUID, completion Completion) error

	// Transition sets status=to. Guard: current status in from.
	Transition(ctx context.Context, id uuid.UUID, from []BookingStatus, to BookingStatus) error

	// OverrideStatus sets any status unconditionally.
	OverrideStatus(ctx context.Context, id uuid.UUID, status BookingStatus) error

	// Reschedule changes the service date and time. Guard: status in (pending, confirmed).
	Reschedule(ctx context.Context, id uuid.UUID, date, slot string) error
}
