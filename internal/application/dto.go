package application

import (
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/google/uuid"
)

// CreateBookingRequest holds the data needed to create a new booking.
type CreateBookingRequest struct {
	AddressID       uuid.UUID `json:"address_id" binding:"required"`
	TankType        string    `json:"tank_type" binding:"required"`
	TankCapacity    string    `json:"tank_capacity" binding:"required"`
	TankPhotoURL    string    `json:"tank_photo_url"`
	PackageType     string    `json:"package_type" binding:"required"`
	AddDisinfection bool      `json:"add_disinfection"`
	AddMaintenance  bool      `json:"add_maintenance"`
	AddRepair       bool      `json:"add_repair"`
	ServiceDate     string    `json:"service_date" binding:"required"`
	ServiceTime     string    `json:"service_time" binding:"required"`
	PaymentMethod   string    `json:"payment_method" binding:"required"`
}

func (r CreateBookingRequest) spec() bookingDomain.ServiceSpec {
	return bookingDomain.ServiceSpec{
		TankType:        bookingDomain.TankType(r.TankType),
		TankCapacity:    r.TankCapacity,
		TankPhotoURL:    r.TankPhotoURL,
		PackageType:     bookingDomain.PackageType(r.PackageType),
		AddDisinfection: r.AddDisinfection,
		AddMaintenance:  r.AddMaintenance,
		AddRepair:       r.AddRepair,
		ServiceDate:     r.ServiceDate,
		ServiceTime:     r.ServiceTime,
	}
}

// CreatePaymentOrderRequest asks for a gateway order for a booking.
type CreatePaymentOrderRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
}

// VerifyPaymentRequest carries the checkout result back from the client.
type VerifyPaymentRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	Signature string    `json:"signature"`
}

// PaymentFailureRequest reports a checkout the client abandoned or the gateway declined.
type PaymentFailureRequest struct {
	BookingID uuid.UUID `json:"booking_id" binding:"required"`
	OrderID   string    `json:"order_id"`
	Reason    string    `json:"reason"`
}

// PaymentOrderDTO is what the client needs to open checkout. COD bookings
// come back already confirmed with no order.
type PaymentOrderDTO struct {
	BookingID     uuid.UUID `json:"booking_id"`
	OrderID       string    `json:"order_id,omitempty"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	KeyID         string    `json:"key_id,omitempty"`
	Provider      string    `json:"provider,omitempty"`
	ClientSecret  string    `json:"client_secret,omitempty"`
	Status        string    `json:"status"`
	PaymentStatus string    `json:"payment_status"`
}

// AssignTechnicianRequest names the technician to bind.
type AssignTechnicianRequest struct {
	TechnicianID uuid.UUID `json:"technician_id" binding:"required"`
}

// OverrideStatusRequest sets a booking status directly.
type OverrideStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// RescheduleRequest moves the service slot.
type RescheduleRequest struct {
	ServiceDate string `json:"service_date" binding:"required"`
	ServiceTime string `json:"service_time" binding:"required"`
}

// ListBookingsQuery filters a booking list. Scope fields are ignored for
// non-admin actors, who only ever see their own bookings.
type ListBookingsQuery struct {
	Status       string
	UserID       *uuid.UUID
	TechnicianID *uuid.UUID
	ServiceDate  string
	Page         int
	Limit        int
}

// UpdateStepRequest is a partial update to one checklist step.
type UpdateStepRequest struct {
	Step      string     `json:"step_name" binding:"required"`
	Status    string     `json:"status" binding:"required"`
	Notes     string     `json:"notes"`
	PhotoURL  string     `json:"photo_url"`
	Timestamp *time.Time `json:"timestamp"`
}

// ChemicalRequest is one consumable entry.
type ChemicalRequest struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity"`
	Unit     string  `json:"unit"`
}

// RecordUsageRequest adds consumables to a running job.
type RecordUsageRequest struct {
	Chemical    *ChemicalRequest `json:"chemical"`
	WaterLitres int              `json:"water_litres"`
}

// ReportIncidentRequest files an on-site problem.
type ReportIncidentRequest struct {
	Description     string   `json:"description" binding:"required"`
	Severity        string   `json:"severity" binding:"required"`
	Photos          []string `json:"photo_urls"`
	UnableToProceed bool     `json:"unable_to_proceed"`
}

// CompleteJobRequest carries the completion evidence.
type CompleteJobRequest struct {
	BeforePhotos      []string `json:"before_photo_urls"`
	AfterPhotos       []string `json:"after_photo_urls"`
	CustomerSignature string   `json:"customer_signature"`
	Notes             string   `json:"notes"`
}

// ListJobsQuery filters a technician's job list.
type ListJobsQuery struct {
	Status      string
	ServiceDate string
	Page        int
	Limit       int
}

// BookingDTO is the response representation of a booking.
type BookingDTO struct {
	ID            uuid.UUID `json:"id"`
	BookingNumber string    `json:"booking_number"`
	UserID        uuid.UUID `json:"user_id"`
	AddressID     uuid.UUID `json:"address_id"`
	bookingDomain.ServiceSpec

	PaymentMethod string `json:"payment_method"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	PaymentStatus string `json:"payment_status"`
	OrderID       string `json:"order_id,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`

	Status               string                         `json:"status"`
	AssignedTechnicianID *uuid.UUID                     `json:"assigned_technician_id"`
	Checklist            *bookingDomain.Checklist       `json:"checklist"`
	IncidentReports      []bookingDomain.IncidentReport `json:"incident_reports"`
	*bookingDomain.Completion

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// JobDetailDTO is a job with what the technician needs on site.
type JobDetailDTO struct {
	Job      BookingDTO       `json:"job"`
	Address  *account.Address `json:"address"`
	Customer *account.Contact `json:"customer"`
}

// BookingStatsDTO holds booking statistics for the admin dashboard.
type BookingStatsDTO struct {
	TotalBookings int64            `json:"total_bookings"`
	ByStatus      map[string]int64 `json:"by_status"`
}

func toBookingDTO(bk *bookingDomain.Booking) BookingDTO {
	return BookingDTO{
		ID:                   bk.ID(),
		BookingNumber:        bk.BookingNumber(),
		UserID:               bk.UserID(),
		AddressID:            bk.AddressID(),
		ServiceSpec:          bk.Spec(),
		PaymentMethod:        string(bk.PaymentMethod()),
		Amount:               bk.Amount(),
		Currency:             bk.Currency(),
		PaymentStatus:        string(bk.PaymentStatus()),
		OrderID:              bk.OrderRef(),
		PaymentID:            bk.PaymentRef(),
		Status:               string(bk.Status()),
		AssignedTechnicianID: bk.AssignedTechnicianID(),
		Checklist:            bk.Checklist(),
		IncidentReports:      bk.Incidents(),
		Completion:           bk.Completion(),
		StartedAt:            bk.StartedAt(),
		CancelledAt:          bk.CancelledAt(),
		Version:              bk.Version(),
		CreatedAt:            bk.CreatedAt(),
		UpdatedAt:            bk.UpdatedAt(),
	}
}

func toBookingDTOs(bookings []*bookingDomain.Booking) []BookingDTO {
	dtos := make([]BookingDTO, len(bookings))
	for i, bk := range bookings {
		dtos[i] = toBookingDTO(bk)
	}
	return dtos
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
