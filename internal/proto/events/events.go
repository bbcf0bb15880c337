// Package events is the wire contract for messages the booking service
// publishes and consumes.
package events

import (
	"time"

	"github.com/google/uuid"
)

// Topics.
const (
	TopicBookingEvents = "booking.events"
	TopicPaymentEvents = "payment.events"
)

// Event types published on TopicBookingEvents.
const (
	BookingCreated            = "booking.created"
	BookingConfirmed          = "booking.confirmed"
	BookingPaymentFailed      = "booking.payment_failed"
	BookingTechnicianAssigned = "booking.technician_assigned"
	BookingStatusOverridden   = "booking.status_overridden"
	BookingCancelled          = "booking.cancelled"
	BookingRescheduled        = "booking.rescheduled"

	JobStarted          = "job.started"
	JobStepUpdated      = "job.step_updated"
	JobIncidentReported = "job.incident_reported"
	JobEscalated        = "job.escalated"
	JobCompleted        = "job.completed"
)

// Event types consumed from TopicPaymentEvents.
const (
	PaymentCaptured = "payment.captured"
	PaymentFailed   = "payment.failed"
)

// BookingCreatedEvent is published when a customer places a booking.
type BookingCreatedEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	UserID        uuid.UUID `json:"user_id"`
	AddressID     uuid.UUID `json:"address_id"`
	PackageType   string    `json:"package_type"`
	ServiceDate   string    `json:"service_date"`
	ServiceTime   string    `json:"service_time"`
	PaymentMethod string    `json:"payment_method"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// BookingConfirmedEvent is published when payment confirms a booking, or
// immediately for cash on delivery.
type BookingConfirmedEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	UserID        uuid.UUID `json:"user_id"`
	PaymentMethod string    `json:"payment_method"`
	PaymentStatus string    `json:"payment_status"`
	PaymentRef    string    `json:"payment_ref,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// BookingPaymentFailedEvent is published when a gateway call or signature check fails.
type BookingPaymentFailedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	UserID     uuid.UUID `json:"user_id"`
	OrderRef   string    `json:"order_ref,omitempty"`
	Reason     string    `json:"reason"`
	OccurredAt time.Time `json:"occurred_at"`
}

// TechnicianAssignedEvent is published when an admin assigns a technician.
type TechnicianAssignedEvent struct {
	BookingID     uuid.UUID `json:"booking_id"`
	BookingNumber string    `json:"booking_number"`
	TechnicianID  uuid.UUID `json:"technician_id"`
	AssignedBy    uuid.UUID `json:"assigned_by"`
	ServiceDate   string    `json:"service_date"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// BookingStatusChangedEvent covers admin overrides and cancellations.
type BookingStatusChangedEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	ChangedBy  uuid.UUID `json:"changed_by"`
	OccurredAt time.Time `json:"occurred_at"`
}

// BookingRescheduledEvent is published when an admin moves the service slot.
type BookingRescheduledEvent struct {
	BookingID   uuid.UUID `json:"booking_id"`
	ServiceDate string    `json:"service_date"`
	ServiceTime string    `json:"service_time"`
	ChangedBy   uuid.UUID `json:"changed_by"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// JobEvent is the payload of job.started, job.step_updated and job.completed.
type JobEvent struct {
	BookingID    uuid.UUID `json:"booking_id"`
	TechnicianID uuid.UUID `json:"technician_id"`
	Step         string    `json:"step,omitempty"`
	StepStatus   string    `json:"step_status,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// IncidentReportedEvent is the payload of job.incident_reported and job.escalated.
type IncidentReportedEvent struct {
	BookingID       uuid.UUID `json:"booking_id"`
	IncidentID      uuid.UUID `json:"incident_id"`
	TechnicianID    uuid.UUID `json:"technician_id"`
	Severity        string    `json:"severity"`
	UnableToProceed bool      `json:"unable_to_proceed"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// PaymentEvent is consumed from the payment service. The payment service has
// already verified the gateway callback.
type PaymentEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	OrderRef   string    `json:"order_ref"`
	PaymentRef string    `json:"payment_ref,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
