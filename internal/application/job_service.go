package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/aquatrack-hygiene/service-booking/internal/proto/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JobService runs the technician side of a booking: starting the job,
// working through the checklist, reporting incidents and completing it.
type JobService struct {
	repo      bookingDomain.BookingRepository
	addresses account.AddressRepository
	directory account.Directory
	events    eventEmitter
	logger    *zap.Logger
	now       func() time.Time
}

// NewJobService creates a new JobService.
func NewJobService(
	repo bookingDomain.BookingRepository,
	addresses account.AddressRepository,
	directory account.Directory,
	producer EventPublisher,
	logger *zap.Logger,
) *JobService {
	return &JobService{
		repo:      repo,
		addresses: addresses,
		directory: directory,
		events:    eventEmitter{producer: producer, logger: logger},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartJob initialises the checklist and moves the booking to in-progress.
// Starting an already started job returns it unchanged.
func (s *JobService) StartJob(ctx context.Context, actor Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, err := s.findAssigned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.Checklist() != nil {
		result := toBookingDTO(bk)
		return &result, nil
	}
	if bk.Status() != bookingDomain.StatusConfirmed {
		return nil, domain.NewInvalidStateError(string(bk.Status()), string(bookingDomain.StatusInProgress))
	}

	checklist := bookingDomain.NewChecklist(s.now())
	if err := s.repo.StartJob(ctx, bookingID, actor.ID, checklist); err != nil {
		if !errors.Is(err, bookingDomain.ErrGuardFailed) {
			return nil, fmt.Errorf("failed to start job: %w", err)
		}
		// A concurrent start won; report its result rather than an error.
		current, findErr := s.findAssigned(ctx, actor, bookingID)
		if findErr != nil {
			return nil, findErr
		}
		if current.Checklist() != nil {
			result := toBookingDTO(current)
			return &result, nil
		}
		return nil, domain.NewInvalidStateError(string(current.Status()), string(bookingDomain.StatusInProgress))
	}

	s.logger.Info("job started",
		zap.String("booking_id", bookingID.String()),
		zap.String("technician_id", actor.ID.String()),
	)
	s.publishJobEvent(ctx, events.JobStarted, bookingID, actor.ID, "", "")

	return s.reload(ctx, bookingID)
}

// UpdateChecklistStep applies a partial update to one step. Status and
// timestamp are overwritten, notes only when given, and a photo is appended.
func (s *JobService) UpdateChecklistStep(ctx context.Context, actor Actor, bookingID uuid.UUID, req UpdateStepRequest) (*BookingDTO, error) {
	step, err := bookingDomain.ParseStepName(req.Step)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	ts := s.now()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}
	update := bookingDomain.StepUpdate{
		Step:      step,
		Status:    bookingDomain.StepStatus(req.Status),
		Notes:     req.Notes,
		PhotoURL:  req.PhotoURL,
		Timestamp: ts,
	}
	if err := update.Validate(); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	bk, err := s.findAssigned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireRunning(bk); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStep(ctx, bookingID, actor.ID, update); err != nil {
		return nil, s.explainJobGuardMiss(ctx, actor, bookingID, "update checklist", err)
	}

	s.publishJobEvent(ctx, events.JobStepUpdated, bookingID, actor.ID, string(step), string(update.Status))
	return s.reload(ctx, bookingID)
}

// RecordUsage logs chemicals and water consumed on a running job.
func (s *JobService) RecordUsage(ctx context.Context, actor Actor, bookingID uuid.UUID, req RecordUsageRequest) (*BookingDTO, error) {
	usage := bookingDomain.UsageUpdate{WaterLitres: req.WaterLitres}
	if req.Chemical != nil {
		usage.Chemical = &bookingDomain.ChemicalUsage{
			Name:       req.Chemical.Name,
			Quantity:   req.Chemical.Quantity,
			Unit:       req.Chemical.Unit,
			RecordedAt: s.now(),
		}
	}
	if err := usage.Validate(); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	bk, err := s.findAssigned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if err := requireRunning(bk); err != nil {
		return nil, err
	}

	if err := s.repo.RecordUsage(ctx, bookingID, actor.ID, usage); err != nil {
		return nil, s.explainJobGuardMiss(ctx, actor, bookingID, "record usage", err)
	}
	return s.reload(ctx, bookingID)
}

// ReportIncident appends an incident report. When the technician cannot
// proceed the booking is escalated whatever its current status.
func (s *JobService) ReportIncident(ctx context.Context, actor Actor, bookingID uuid.UUID, req ReportIncidentRequest) (*BookingDTO, error) {
	incident, err := bookingDomain.NewIncidentReport(
		actor.ID,
		req.Description,
		bookingDomain.Severity(req.Severity),
		req.Photos,
		req.UnableToProceed,
		s.now(),
	)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	if _, err := s.findAssigned(ctx, actor, bookingID); err != nil {
		return nil, err
	}

	if err := s.repo.AppendIncident(ctx, bookingID, actor.ID, incident, incident.UnableToProceed); err != nil {
		return nil, s.explainJobGuardMiss(ctx, actor, bookingID, "report incident", err)
	}

	s.logger.Warn("incident reported",
		zap.String("booking_id", bookingID.String()),
		zap.String("incident_id", incident.ID.String()),
		zap.String("severity", string(incident.Severity)),
		zap.Bool("unable_to_proceed", incident.UnableToProceed),
	)

	evt := events.IncidentReportedEvent{
		BookingID:       bookingID,
		IncidentID:      incident.ID,
		TechnicianID:    actor.ID,
		Severity:        string(incident.Severity),
		UnableToProceed: incident.UnableToProceed,
		OccurredAt:      incident.ReportedAt,
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, events.JobIncidentReported, bookingID.String(), evt)
	if incident.UnableToProceed {
		s.events.publishEvent(ctx, events.TopicBookingEvents, events.JobEscalated, bookingID.String(), evt)
	}

	return s.reload(ctx, bookingID)
}

// CompleteJob stores the completion evidence and moves an in-progress job to completed.
func (s *JobService) CompleteJob(ctx context.Context, actor Actor, bookingID uuid.UUID, req CompleteJobRequest) (*BookingDTO, error) {
	completion := bookingDomain.Completion{
		BeforePhotos:      req.BeforePhotos,
		AfterPhotos:       req.AfterPhotos,
		CustomerSignature: req.CustomerSignature,
		Notes:             req.Notes,
		CompletedAt:       s.now(),
	}
	if err := completion.Validate(); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	bk, err := s.findAssigned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}
	if bk.Status() != bookingDomain.StatusInProgress {
		return nil, domain.NewInvalidStateError(string(bk.Status()), string(bookingDomain.StatusCompleted))
	}

	if err := s.repo.Complete(ctx, bookingID, actor.ID, completion); err != nil {
		return nil, s.explainJobGuardMiss(ctx, actor, bookingID, "complete job", err)
	}

	s.logger.Info("job completed",
		zap.String("booking_id", bookingID.String()),
		zap.String("technician_id", actor.ID.String()),
	)
	s.publishJobEvent(ctx, events.JobCompleted, bookingID, actor.ID, "", "")

	return s.reload(ctx, bookingID)
}

// ListJobs returns the technician's jobs ordered by service date. Without a
// status filter only confirmed and in-progress jobs are listed.
func (s *JobService) ListJobs(ctx context.Context, actor Actor, q ListJobsQuery) (*domain.PaginatedResult[BookingDTO], error) {
	if err := requireRole(actor, auth.RoleTechnician); err != nil {
		return nil, err
	}

	page, limit := normalizePage(q.Page, q.Limit)
	techID := actor.ID
	filter := bookingDomain.ListFilter{
		TechnicianID:      &techID,
		Statuses:          []bookingDomain.BookingStatus{bookingDomain.StatusConfirmed, bookingDomain.StatusInProgress},
		ServiceDate:       q.ServiceDate,
		SortByServiceDate: true,
		Page:              page,
		Limit:             limit,
	}
	if q.Status != "" {
		status, err := bookingDomain.ParseBookingStatus(q.Status)
		if err != nil {
			return nil, domain.NewValidationError(err.Error())
		}
		filter.Statuses = []bookingDomain.BookingStatus{status}
	}

	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// GetJob returns a job with its service address and customer contact.
func (s *JobService) GetJob(ctx context.Context, actor Actor, bookingID uuid.UUID) (*JobDetailDTO, error) {
	bk, err := s.findAssigned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	detail := &JobDetailDTO{Job: toBookingDTO(bk)}

	address, err := s.addresses.FindByID(ctx, bk.AddressID())
	switch {
	case err == nil:
		detail.Address = address
	case domain.KindOf(err) != domain.KindNotFound:
		return nil, fmt.Errorf("failed to load job address: %w", err)
	default:
		s.logger.Warn("job address missing", zap.String("booking_id", bookingID.String()))
	}

	customer, err := s.directory.FindCustomer(ctx, bk.UserID())
	switch {
	case err == nil:
		detail.Customer = customer
	case domain.KindOf(err) != domain.KindNotFound:
		return nil, fmt.Errorf("failed to load job customer: %w", err)
	default:
		s.logger.Warn("job customer missing", zap.String("booking_id", bookingID.String()))
	}

	return detail, nil
}

// Stats returns the technician's workload counts for today.
func (s *JobService) Stats(ctx context.Context, actor Actor) (*bookingDomain.JobCounts, error) {
	if err := requireRole(actor, auth.RoleTechnician); err != nil {
		return nil, err
	}
	today := s.now().Format(bookingDomain.ServiceDateLayout)
	counts, err := s.repo.CountJobs(ctx, actor.ID, today)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	return &counts, nil
}

// --- Helpers ---

// findAssigned loads a booking for its assigned technician. A job assigned
// to someone else is reported as not found.
func (s *JobService) findAssigned(ctx context.Context, actor Actor, bookingID uuid.UUID) (*bookingDomain.Booking, error) {
	if err := requireRole(actor, auth.RoleTechnician); err != nil {
		return nil, err
	}
	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !bk.IsAssignedTo(actor.ID) {
		return nil, domain.NewNotFoundError("Job", bookingID.String())
	}
	return bk, nil
}

func requireRunning(bk *bookingDomain.Booking) error {
	if bk.Status() != bookingDomain.StatusInProgress || bk.Checklist() == nil {
		return domain.NewConflictError(fmt.Sprintf("job is not in progress (status %s)", bk.Status()))
	}
	return nil
}

// explainJobGuardMiss also covers the job being reassigned between the read
// and the update.
func (s *JobService) explainJobGuardMiss(ctx context.Context, actor Actor, bookingID uuid.UUID, action string, err error) error {
	if errors.Is(err, bookingDomain.ErrGuardFailed) {
		if _, findErr := s.findAssigned(ctx, actor, bookingID); findErr != nil {
			return findErr
		}
	}
	return explainGuardMiss(ctx, s.repo, bookingID, action, err)
}

func (s *JobService) publishJobEvent(ctx context.Context, eventType string, bookingID, techID uuid.UUID, step, stepStatus string) {
	evt := events.JobEvent{
		BookingID:    bookingID,
		TechnicianID: techID,
		Step:         step,
		StepStatus:   stepStatus,
		OccurredAt:   s.now(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, eventType, bookingID.String(), evt)
}

func (s *JobService) reload(ctx context.Context, id uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}
