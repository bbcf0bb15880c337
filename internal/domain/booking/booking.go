package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
)

const bookingNumberChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Booking is the aggregate root for the booking domain. It doubles as the job
// record once a technician starts work.
type Booking struct {
	id            uuid.UUID
	bookingNumber string
	userID        uuid.UUID
	addressID     uuid.UUID
	spec          ServiceSpec

	paymentMethod PaymentMethod
	amount        int64
	currency      string
	paymentStatus PaymentStatus
	orderRef      string
	paymentRef    string

	status               BookingStatus
	assignedTechnicianID *uuid.UUID
	checklist            *Checklist
	incidents            []IncidentReport
	completion           *Completion

	startedAt   *time.Time
	cancelledAt *time.Time

	version   int64
	createdAt time.Time
	updatedAt time.Time
}

// generateBookingNumber creates a booking number in the format "TC-XXXXXX".
func generateBookingNumber() (string, error) {
	result := make([]byte, 6)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(bookingNumberChars))))
		if err != nil {
			return "", fmt.Errorf("failed to generate booking number: %w", err)
		}
		result[i] = bookingNumberChars[n.Int64()]
	}
	return "TC-" + string(result), nil
}

// NewBooking creates a new Booking aggregate with status=pending and payment_status=pending.
func NewBooking(
	userID uuid.UUID,
	addressID uuid.UUID,
	spec ServiceSpec,
	paymentMethod PaymentMethod,
	amount int64,
	currency string,
) (*Booking, error) {
	if userID == uuid.Nil {
		return nil, domain.NewValidationError("user ID is required")
	}
	if addressID == uuid.Nil {
		return nil, domain.NewValidationError("address ID is required")
	}
	if err := spec.Validate(); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if !paymentMethod.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid payment method: %s", paymentMethod))
	}
	if amount <= 0 {
		return nil, domain.NewValidationError("amount must be positive")
	}

	bookingNumber, err := generateBookingNumber()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Booking{
		id:            uuid.New(),
		bookingNumber: bookingNumber,
		userID:        userID,
		addressID:     addressID,
		spec:          spec,
		paymentMethod: paymentMethod,
		amount:        amount,
		currency:      currency,
		paymentStatus: PaymentPending,
		status:        StatusPending,
		incidents:     []IncidentReport{},
		version:       1,
		createdAt:     now,
		updatedAt:     now,
	}, nil
}

// ReconstructBooking rebuilds a Booking from persistence data (no validation).
func ReconstructBooking(
	id uuid.UUID,
	bookingNumber string,
	userID uuid.UUID,
	addressID uuid.UUID,
	spec ServiceSpec,
	paymentMethod PaymentMethod,
	amount int64,
	currency string,
	paymentStatus PaymentStatus,
	orderRef string,
	paymentRef string,
	status BookingStatus,
	assignedTechnicianID *uuid.UUID,
	checklist *Checklist,
	incidents []IncidentReport,
	completion *Completion,
	startedAt *time.Time,
	cancelledAt *time.Time,
	version int64,
	createdAt time.Time,
	updatedAt time.Time,
) *Booking {
	if incidents == nil {
		incidents = []IncidentReport{}
	}
	return &Booking{
		id:                   id,
		bookingNumber:        bookingNumber,
		userID:               userID,
		addressID:            addressID,
		spec:                 spec,
		paymentMethod:        paymentMethod,
		amount:               amount,
		currency:             currency,
		paymentStatus:        paymentStatus,
		orderRef:             orderRef,
		paymentRef:           paymentRef,
		status:               status,
		assignedTechnicianID: assignedTechnicianID,
		checklist:            checklist,
		incidents:            incidents,
		completion:           completion,
		startedAt:            startedAt,
		cancelledAt:          cancelledAt,
		version:              version,
		createdAt:            createdAt,
		updatedAt:            updatedAt,
	}
}

// --- Getters ---

// ID returns the booking's unique identifier.
func (b *Booking) ID() uuid.UUID { return b.id }

// BookingNumber returns the human-readable booking number.
func (b *Booking) BookingNumber() string { return b.bookingNumber }

// UserID returns the customer who owns the booking.
func (b *Booking) UserID() uuid.UUID { return b.userID }

// AddressID returns the service address.
func (b *Booking) AddressID() uuid.UUID { return b.addressID }

// Spec returns what was ordered.
func (b *Booking) Spec() ServiceSpec { return b.spec }

// PaymentMethod returns how the customer pays.
func (b *Booking) PaymentMethod() PaymentMethod { return b.paymentMethod }

// Amount returns the price in paise, fixed at creation.
func (b *Booking) Amount() int64 { return b.amount }

// Currency returns the currency code.
func (b *Booking) Currency() string { return b.currency }

// PaymentStatus returns the payment state.
func (b *Booking) PaymentStatus() PaymentStatus { return b.paymentStatus }

// OrderRef returns the gateway order reference, if one was created.
func (b *Booking) OrderRef() string { return b.orderRef }

// PaymentRef returns the gateway payment reference, if the payment was captured.
func (b *Booking) PaymentRef() string { return b.paymentRef }

// Status returns the current booking status.
func (b *Booking) Status() BookingStatus { return b.status }

// AssignedTechnicianID returns the assigned technician, or nil if unassigned.
func (b *Booking) AssignedTechnicianID() *uuid.UUID { return b.assignedTechnicianID }

// Checklist returns the job checklist, or nil before the job starts.
func (b *Booking) Checklist() *Checklist { return b.checklist }

// Incidents returns the incident reports in the order they were filed.
func (b *Booking) Incidents() []IncidentReport { return b.incidents }

// Completion returns the completion artifacts, or nil if the job is not complete.
func (b *Booking) Completion() *Completion { return b.completion }

// StartedAt returns the time the job started.
func (b *Booking) StartedAt() *time.Time { return b.startedAt }

// CancelledAt returns the time the booking was cancelled.
func (b *Booking) CancelledAt() *time.Time { return b.cancelledAt }

// Version returns the entity version for optimistic locking.
func (b *Booking) Version() int64 { return b.version }

// CreatedAt returns the creation timestamp.
func (b *Booking) CreatedAt() time.Time { return b.createdAt }

// UpdatedAt returns the last-updated timestamp.
func (b *Booking) UpdatedAt() time.Time { return b.updatedAt }

// IsAssignedTo reports whether techID is the assigned technician.
func (b *Booking) IsAssignedTo(techID uuid.UUID) bool {
	return b.assignedTechnicianID != nil && *b.assignedTechnicianID == techID
}

// --- Behavior ---
//
// Each method below is the in-process form of one guarded store update: it
// checks the same precondition the store guards on and bumps the version.

// SetOrderRef records a gateway order for a pending booking.
func (b *Booking) SetOrderRef(orderRef string) error {
	if b.status != StatusPending {
		return domain.NewConflictError(fmt.Sprintf("cannot create payment order for %s booking", b.status))
	}
	if orderRef == "" {
		return domain.NewValidationError("order reference is required")
	}
	b.orderRef = orderRef
	b.touch()
	return nil
}

// ConfirmPayment moves a pending booking to confirmed and records the payment state in one step.
// A non-empty expectOrderRef must match the stored order.
func (b *Booking) ConfirmPayment(expectOrderRef string, paymentStatus PaymentStatus, paymentRef string) error {
	if !b.status.CanTransitionTo(StatusConfirmed) {
		return domain.NewInvalidStateError(string(b.status), string(StatusConfirmed))
	}
	if expectOrderRef != "" && b.orderRef != expectOrderRef {
		return domain.NewConflictError("payment order does not match booking")
	}
	b.status = StatusConfirmed
	b.paymentStatus = paymentStatus
	if paymentRef != "" {
		b.paymentRef = paymentRef
	}
	b.touch()
	return nil
}

// FailPayment marks the payment failed. The booking status is left alone.
func (b *Booking) FailPayment(expectOrderRef string) error {
	if b.status != StatusPending {
		return domain.NewConflictError(fmt.Sprintf("cannot fail payment for %s booking", b.status))
	}
	if expectOrderRef != "" && b.orderRef != expectOrderRef {
		return domain.NewConflictError("payment order does not match booking")
	}
	b.paymentStatus = PaymentFailed
	b.touch()
	return nil
}

// AssignTechnician sets or replaces the assigned technician. Status is unchanged.
func (b *Booking) AssignTechnician(techID uuid.UUID) error {
	if techID == uuid.Nil {
		return domain.NewValidationError("technician ID is required")
	}
	b.assignedTechnicianID = &techID
	b.touch()
	return nil
}

// StartJob attaches the checklist and moves the booking to in-progress.
func (b *Booking) StartJob(techID uuid.UUID, checklist *Checklist) error {
	if !b.IsAssignedTo(techID) {
		return domain.NewForbiddenError("job is not assigned to this technician")
	}
	if b.checklist != nil {
		return domain.NewConflictError("job already started")
	}
	if !b.status.CanTransitionTo(StatusInProgress) {
		return domain.NewInvalidStateError(string(b.status), string(StatusInProgress))
	}
	startedAt := checklist.StartedAt
	b.checklist = checklist
	b.status = StatusInProgress
	b.startedAt = &startedAt
	b.touch()
	return nil
}

func (b *Booking) requireRunningJob(techID uuid.UUID) error {
	if !b.IsAssignedTo(techID) {
		return domain.NewForbiddenError("job is not assigned to this technician")
	}
	if b.status != StatusInProgress || b.checklist == nil {
		return domain.NewConflictError(fmt.Sprintf("job is not in progress (status %s)", b.status))
	}
	return nil
}

// UpdateStep applies a partial update to one checklist step.
func (b *Booking) UpdateStep(techID uuid.UUID, update StepUpdate) error {
	if err := update.Validate(); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if err := b.requireRunningJob(techID); err != nil {
		return err
	}
	b.checklist.Apply(update)
	b.touch()
	return nil
}

// RecordUsage logs consumables against a running job.
func (b *Booking) RecordUsage(techID uuid.UUID, usage UsageUpdate) error {
	if err := usage.Validate(); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if err := b.requireRunningJob(techID); err != nil {
		return err
	}
	b.checklist.RecordUsage(usage)
	b.touch()
	return nil
}

// AppendIncident files an incident. With escalate set the booking moves to
// escalated from whatever state it is in.
func (b *Booking) AppendIncident(techID uuid.UUID, incident IncidentReport, escalate bool) error {
	if !b.IsAssignedTo(techID) {
		return domain.NewForbiddenError("job is not assigned to this technician")
	}
	b.incidents = append(b.incidents, incident)
	if escalate {
		b.status = StatusEscalated
	}
	b.touch()
	return nil
}

// Complete stores the completion artifacts and moves the job to completed.
func (b *Booking) Complete(techID uuid.UUID, completion Completion) error {
	if err := completion.Validate(); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if !b.IsAssignedTo(techID) {
		return domain.NewForbiddenError("job is not assigned to this technician")
	}
	if !b.status.CanTransitionTo(StatusCompleted) {
		return domain.NewInvalidStateError(string(b.status), string(StatusCompleted))
	}
	b.status = StatusCompleted
	b.completion = &completion
	b.touch()
	return nil
}

// Transition moves the booking to target if its current status is one of from.
func (b *Booking) Transition(from []BookingStatus, target BookingStatus) error {
	allowed := false
	for _, s := range from {
		if s == b.status {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.NewInvalidStateError(string(b.status), string(target))
	}
	b.status = target
	if target == StatusCancelled {
		now := time.Now().UTC()
		b.cancelledAt = &now
	}
	b.touch()
	return nil
}

// Cancel transitions the booking to cancelled if the status table allows it.
func (b *Booking) Cancel() error {
	return b.Transition(SourcesOf(StatusCancelled), StatusCancelled)
}

// OverrideStatus sets any valid status without consulting the transition table.
func (b *Booking) OverrideStatus(status BookingStatus) error {
	if !status.IsValid() {
		return domain.NewValidationError(fmt.Sprintf("invalid booking status: %s", status))
	}
	b.status = status
	b.touch()
	return nil
}

// Reschedule moves the service slot of a booking whose job has not started.
func (b *Booking) Reschedule(date, slot string) error {
	if err := ValidateSchedule(date, slot); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if b.status != StatusPending && b.status != StatusConfirmed {
		return domain.NewConflictError(fmt.Sprintf("cannot reschedule %s booking", b.status))
	}
	b.spec.ServiceDate = date
	b.spec.ServiceTime = slot
	b.touch()
	return nil
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (b *Booking) Clone() *Booking {
	out := *b
	if b.assignedTechnicianID != nil {
		id := *b.assignedTechnicianID
		out.assignedTechnicianID = &id
	}
	out.checklist = b.checklist.Clone()
	out.incidents = make([]IncidentReport, len(b.incidents))
	for i, inc := range b.incidents {
		inc.PhotoURLs = append([]string{}, inc.PhotoURLs...)
		out.incidents[i] = inc
	}
	if b.completion != nil {
		c := *b.completion
		c.BeforePhotos = append([]string{}, c.BeforePhotos...)
		c.AfterPhotos = append([]string{}, c.AfterPhotos...)
		out.completion = &c
	}
	return &out
}

func (b *Booking) touch() {
	b.version++
	b.updatedAt = time.Now().UTC()
}
