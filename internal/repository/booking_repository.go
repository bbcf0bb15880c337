package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BookingModel is the GORM model for the bookings table.
type BookingModel struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	BookingNumber   string    `gorm:"uniqueIndex;not null;size:20"`
	UserID          uuid.UUID `gorm:"type:uuid;index;not null"`
	AddressID       uuid.UUID `gorm:"type:uuid;not null"`
	TankType        string    `gorm:"not null;size:20"`
	TankCapacity    string    `gorm:"not null;size:50"`
	TankPhotoURL    string    `gorm:"size:500"`
	PackageType     string    `gorm:"not null;size:20"`
	AddDisinfection bool      `gorm:"not null;default:false"`
	AddMaintenance  bool      `gorm:"not null;default:false"`
	AddRepair       bool      `gorm:"not null;default:false"`
	ServiceDate     string    `gorm:"not null;size:10;index"`
	ServiceTime     string    `gorm:"not null;size:50"`

	PaymentMethod string `gorm:"not null;size:10"`
	Amount        int64  `gorm:"not null"`
	Currency      string `gorm:"not null;size:3;default:'INR'"`
	PaymentStatus string `gorm:"not null;size:20;default:'pending'"`
	OrderRef      string `gorm:"size:100;index"`
	PaymentRef    string `gorm:"size:100"`

	Status               string          `gorm:"not null;size:30;index"`
	AssignedTechnicianID *uuid.UUID      `gorm:"type:uuid;index"`
	Checklist            json.RawMessage `gorm:"type:jsonb"`
	IncidentReports      json.RawMessage `gorm:"type:jsonb;not null;default:'[]'"`
	Completion           json.RawMessage `gorm:"type:jsonb"`

	StartedAt   *time.Time `gorm:""`
	CancelledAt *time.Time `gorm:""`
	Version     int64      `gorm:"not null;default:1"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string {
	return "bookings"
}

// GormBookingRepository is the GORM-based implementation of BookingRepository.
// Guarded updates are single UPDATE statements; jsonb columns are patched
// in place with jsonb_set and || so concurrent writers never lose each other's appends.
type GormBookingRepository struct {
	db *gorm.DB
}

// NewGormBookingRepository creates a new GormBookingRepository.
func NewGormBookingRepository(db *gorm.DB) *GormBookingRepository {
	return &GormBookingRepository{db: db}
}

// FindByID retrieves a booking by its unique identifier.
func (r *GormBookingRepository) FindByID(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	var model BookingModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NewNotFoundError("Booking", id.String())
		}
		return nil, fmt.Errorf("failed to find booking by ID: %w", err)
	}
	return toDomainBooking(&model)
}

// Save persists a new booking.
func (r *GormBookingRepository) Save(ctx context.Context, bk *bookingDomain.Booking) error {
	model, err := toBookingModel(bk)
	if err != nil {
		return fmt.Errorf("failed to convert booking to model: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to save booking: %w", err)
	}
	return nil
}

// List retrieves bookings matching the filter with pagination.
func (r *GormBookingRepository) List(ctx context.Context, filter bookingDomain.ListFilter) ([]*bookingDomain.Booking, int64, error) {
	query := r.db.WithContext(ctx).Model(&BookingModel{})
	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}
	if filter.TechnicianID != nil {
		query = query.Where("assigned_technician_id = ?", *filter.TechnicianID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query = query.Where("status IN ?", statuses)
	}
	if filter.ServiceDate != "" {
		query = query.Where("service_date = ?", filter.ServiceDate)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	order := "created_at DESC"
	if filter.SortByServiceDate {
		order = "service_date ASC, created_at ASC"
	}

	var models []BookingModel
	if err := query.
		Order(order).
		Offset(filter.Offset()).
		Limit(filter.Limit).
		Find(&models).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	bookings := make([]*bookingDomain.Booking, len(models))
	for i := range models {
		bk, err := toDomainBooking(&models[i])
		if err != nil {
			return nil, 0, err
		}
		bookings[i] = bk
	}

	return bookings, total, nil
}

// CountByStatus returns booking counts grouped by status (admin).
func (r *GormBookingRepository) CountByStatus(ctx context.Context) (map[bookingDomain.BookingStatus]int64, error) {
	type statusCount struct {
		Status string
		Count  int64
	}
	var results []statusCount
	if err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to count by status: %w", err)
	}

	counts := make(map[bookingDomain.BookingStatus]int64)
	for _, sc := range results {
		counts[bookingDomain.BookingStatus(sc.Status)] = sc.Count
	}
	return counts, nil
}

// CountJobs returns workload counts for a technician.
func (r *GormBookingRepository) CountJobs(ctx context.Context, techID uuid.UUID, today string) (bookingDomain.JobCounts, error) {
	var counts bookingDomain.JobCounts
	err := r.db.WithContext(ctx).Model(&BookingModel{}).
		Select(
			"count(*) AS total, "+
				"count(*) FILTER (WHERE service_date = ?) AS today, "+
				"count(*) FILTER (WHERE service_date = ? AND status = ?) AS completed_today, "+
				"count(*) FILTER (WHERE status = ?) AS in_progress",
			today, today, string(bookingDomain.StatusCompleted), string(bookingDomain.StatusInProgress),
		).
		Where("assigned_technician_id = ?", techID).
		Row().
		Scan(&counts.Total, &counts.Today, &counts.CompletedToday, &counts.InProgress)
	if err != nil {
		return counts, fmt.Errorf("failed to count technician jobs: %w", err)
	}
	return counts, nil
}

// SetOrderRef stores the gateway order on a pending booking.
func (r *GormBookingRepository) SetOrderRef(ctx context.Context, id uuid.UUID, orderRef string) error {
	return r.guardedUpdate(ctx,
		r.db.Where("id = ? AND status = ?", id, string(bookingDomain.StatusPending)),
		map[string]interface{}{"order_ref": orderRef},
	)
}

// ConfirmPayment moves a pending booking to confirmed together with its payment fields.
func (r *GormBookingRepository) ConfirmPayment(ctx context.Context, id uuid.UUID, expectOrderRef string, paymentStatus bookingDomain.PaymentStatus, paymentRef string) error {
	guard := r.db.Where("id = ? AND status = ?", id, string(bookingDomain.StatusPending))
	if expectOrderRef != "" {
		guard = guard.Where("order_ref = ?", expectOrderRef)
	}
	updates := map[string]interface{}{
		"status":         string(bookingDomain.StatusConfirmed),
		"payment_status": string(paymentStatus),
	}
	if paymentRef != "" {
		updates["payment_ref"] = paymentRef
	}
	return r.guardedUpdate(ctx, guard, updates)
}

// FailPayment records a failed payment without touching the booking status.
func (r *GormBookingRepository) FailPayment(ctx context.Context, id uuid.UUID, expectOrderRef string) error {
	guard := r.db.Where("id = ? AND status = ?", id, string(bookingDomain.StatusPending))
	if expectOrderRef != "" {
		guard = guard.Where("order_ref = ?", expectOrderRef)
	}
	return r.guardedUpdate(ctx, guard, map[string]interface{}{
		"payment_status": string(bookingDomain.PaymentFailed),
	})
}

// AssignTechnician sets the assigned technician.
func (r *GormBookingRepository) AssignTechnician(ctx context.Context, id uuid.UUID, techID uuid.UUID) error {
	return r.guardedUpdate(ctx,
		r.db.Where("id = ?", id),
		map[string]interface{}{"assigned_technician_id": techID},
	)
}

// StartJob attaches the checklist exactly once.
func (r *GormBookingRepository) StartJob(ctx context.Context, id uuid.UUID, techID uuid.UUID, checklist *bookingDomain.Checklist) error {
	data, err := json.Marshal(checklist)
	if err != nil {
		return fmt.Errorf("failed to marshal checklist: %w", err)
	}
	return r.guardedUpdate(ctx,
		r.db.Where("id = ? AND status = ? AND assigned_technician_id = ? AND checklist IS NULL",
			id, string(bookingDomain.StatusConfirmed), techID),
		map[string]interface{}{
			"status":     string(bookingDomain.StatusInProgress),
			"checklist":  gorm.Expr("?::jsonb", string(data)),
			"started_at": checklist.StartedAt,
		},
	)
}

// UpdateStep patches the sub-fields of one checklist step.
func (r *GormBookingRepository) UpdateStep(ctx context.Context, id uuid.UUID, techID uuid.UUID, update bookingDomain.StepUpdate) error {
	b := newJSONBPatch("checklist")
	step := string(update.Step)
	if err := b.set(jsonPath("steps", step, "status"), update.Status); err != nil {
		return err
	}
	if err := b.set(jsonPath("steps", step, "timestamp"), update.Timestamp); err != nil {
		return err
	}
	if update.Notes != "" {
		if err := b.set(jsonPath("steps", step, "notes"), update.Notes); err != nil {
			return err
		}
	}
	if update.PhotoURL != "" {
		if err := b.appendTo(jsonPath("steps", step, "photos"), update.PhotoURL); err != nil {
			return err
		}
	}
	return r.guardedUpdate(ctx,
		r.runningJobGuard(id, techID),
		map[string]interface{}{"checklist": b.expr()},
	)
}

// RecordUsage appends a chemical entry and increments the water counter.
func (r *GormBookingRepository) RecordUsage(ctx context.Context, id uuid.UUID, techID uuid.UUID, usage bookingDomain.UsageUpdate) error {
	b := newJSONBPatch("checklist")
	if usage.Chemical != nil {
		if err := b.appendTo(jsonPath("chemicals_used"), *usage.Chemical); err != nil {
			return err
		}
	}
	if usage.WaterLitres != 0 {
		b.increment(jsonPath("water_usage"), usage.WaterLitres)
	}
	return r.guardedUpdate(ctx,
		r.runningJobGuard(id, techID),
		map[string]interface{}{"checklist": b.expr()},
	)
}

// AppendIncident appends to incident_reports and optionally escalates in the same statement.
func (r *GormBookingRepository) AppendIncident(ctx context.Context, id uuid.UUID, techID uuid.UUID, incident bookingDomain.IncidentReport, escalate bool) error {
	data, err := json.Marshal([]bookingDomain.IncidentReport{incident})
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}
	updates := map[string]interface{}{
		"incident_reports": gorm.Expr("COALESCE(incident_reports, '[]'::jsonb) || ?::jsonb", string(data)),
	}
	if escalate {
		updates["status"] = string(bookingDomain.StatusEscalated)
	}
	return r.guardedUpdate(ctx,
		r.db.Where("id = ? AND assigned_technician_id = ?", id, techID),
		updates,
	)
}

// Complete stores the completion artifacts on an in-progress job.
func (r *GormBookingRepository) Complete(ctx context.Context, id uuid.UUID, techID uuid.UUID, completion bookingDomain.Completion) error {
	data, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("failed to marshal completion: %w", err)
	}
	return r.guardedUpdate(ctx,
		r.db.Where("id = ? AND status = ? AND assigned_technician_id = ?",
			id, string(bookingDomain.StatusInProgress), techID),
		map[string]interface{}{
			"status":     string(bookingDomain.StatusCompleted),
			"completion": gorm.Expr("?::jsonb", string(data)),
		},
	)
}

// Transition moves the booking to a new status if it is currently in one of from.
func (r *GormBookingRepository) Transition(ctx context.Context, id uuid.UUID, from []bookingDomain.BookingStatus, to bookingDomain.BookingStatus) error {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}
	updates := map[string]interface{}{"status": string(to)}
	if to == bookingDomain.StatusCancelled {
		updates["cancelled_at"] = time.Now().UTC()
	}
	return r.guardedUpdate(ctx, r.db.Where("id = ? AND status IN ?", id, sources), updates)
}

// OverrideStatus sets the status unconditionally.
func (r *GormBookingRepository) OverrideStatus(ctx context.Context, id uuid.UUID, status bookingDomain.BookingStatus) error {
	return r.guardedUpdate(ctx, r.db.Where("id = ?", id), map[string]interface{}{"status": string(status)})
}

// Reschedule changes the service slot of a booking whose job has not started.
func (r *GormBookingRepository) Reschedule(ctx context.Context, id uuid.UUID, date, slot string) error {
	return r.guardedUpdate(ctx,
		r.db.Where("id = ? AND status IN ?", id, []string{
			string(bookingDomain.StatusPending),
			string(bookingDomain.StatusConfirmed),
		}),
		map[string]interface{}{"service_date": date, "service_time": slot},
	)
}

func (r *GormBookingRepository) runningJobGuard(id, techID uuid.UUID) *gorm.DB {
	return r.db.Where("id = ? AND status = ? AND assigned_technician_id = ? AND checklist IS NOT NULL",
		id, string(bookingDomain.StatusInProgress), techID)
}

// guardedUpdate runs one UPDATE constrained by guard and bumps the version.
// Zero affected rows means the guard did not hold.
func (r *GormBookingRepository) guardedUpdate(ctx context.Context, guard *gorm.DB, updates map[string]interface{}) error {
	updates["version"] = gorm.Expr("version + 1")
	updates["updated_at"] = time.Now().UTC()

	result := r.db.WithContext(ctx).
		Model(&BookingModel{}).
		Where(guard).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update booking: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return bookingDomain.ErrGuardFailed
	}
	return nil
}

// --- Conversion Helpers ---

func toBookingModel(bk *bookingDomain.Booking) (*BookingModel, error) {
	var checklistJSON json.RawMessage
	if bk.Checklist() != nil {
		data, err := json.Marshal(bk.Checklist())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal checklist: %w", err)
		}
		checklistJSON = data
	}

	incidentsJSON, err := json.Marshal(bk.Incidents())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal incidents: %w", err)
	}

	var completionJSON json.RawMessage
	if bk.Completion() != nil {
		data, err := json.Marshal(bk.Completion())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal completion: %w", err)
		}
		completionJSON = data
	}

	spec := bk.Spec()
	return &BookingModel{
		ID:                   bk.ID(),
		BookingNumber:        bk.BookingNumber(),
		UserID:               bk.UserID(),
		AddressID:            bk.AddressID(),
		TankType:             string(spec.TankType),
		TankCapacity:         spec.TankCapacity,
		TankPhotoURL:         spec.TankPhotoURL,
		PackageType:          string(spec.PackageType),
		AddDisinfection:      spec.AddDisinfection,
		AddMaintenance:       spec.AddMaintenance,
		AddRepair:            spec.AddRepair,
		ServiceDate:          spec.ServiceDate,
		ServiceTime:          spec.ServiceTime,
		PaymentMethod:        string(bk.PaymentMethod()),
		Amount:               bk.Amount(),
		Currency:             bk.Currency(),
		PaymentStatus:        string(bk.PaymentStatus()),
		OrderRef:             bk.OrderRef(),
		PaymentRef:           bk.PaymentRef(),
		Status:               string(bk.Status()),
		AssignedTechnicianID: bk.AssignedTechnicianID(),
		Checklist:            checklistJSON,
		IncidentReports:      incidentsJSON,
		Completion:           completionJSON,
		StartedAt:            bk.StartedAt(),
		CancelledAt:          bk.CancelledAt(),
		Version:              bk.Version(),
		CreatedAt:            bk.CreatedAt(),
		UpdatedAt:            bk.UpdatedAt(),
	}, nil
}

func toDomainBooking(m *BookingModel) (*bookingDomain.Booking, error) {
	var checklist *bookingDomain.Checklist
	if len(m.Checklist) > 0 && string(m.Checklist) != "null" {
		checklist = &bookingDomain.Checklist{}
		if err := json.Unmarshal(m.Checklist, checklist); err != nil {
			return nil, fmt.Errorf("failed to unmarshal checklist: %w", err)
		}
	}

	var incidents []bookingDomain.IncidentReport
	if len(m.IncidentReports) > 0 {
		if err := json.Unmarshal(m.IncidentReports, &incidents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal incidents: %w", err)
		}
	}

	var completion *bookingDomain.Completion
	if len(m.Completion) > 0 && string(m.Completion) != "null" {
		completion = &bookingDomain.Completion{}
		if err := json.Unmarshal(m.Completion, completion); err != nil {
			return nil, fmt.Errorf("failed to unmarshal completion: %w", err)
		}
	}

	status, err := bookingDomain.ParseBookingStatus(m.Status)
	if err != nil {
		return nil, err
	}

	spec := bookingDomain.ServiceSpec{
		TankType:        bookingDomain.TankType(m.TankType),
		TankCapacity:    m.TankCapacity,
		TankPhotoURL:    m.TankPhotoURL,
		PackageType:     bookingDomain.PackageType(m.PackageType),
		AddDisinfection: m.AddDisinfection,
		AddMaintenance:  m.AddMaintenance,
		AddRepair:       m.AddRepair,
		ServiceDate:     m.ServiceDate,
		ServiceTime:     m.ServiceTime,
	}

	return bookingDomain.ReconstructBooking(
		m.ID,
		m.BookingNumber,
		m.UserID,
		m.AddressID,
		spec,
		bookingDomain.PaymentMethod(m.PaymentMethod),
		m.Amount,
		m.Currency,
		bookingDomain.PaymentStatus(m.PaymentStatus),
		m.OrderRef,
		m.PaymentRef,
		status,
		m.AssignedTechnicianID,
		checklist,
		incidents,
		completion,
		m.StartedAt,
		m.CancelledAt,
		m.Version,
		m.CreatedAt,
		m.UpdatedAt,
	), nil
}
