package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	bookingDomain "github.com/aquatrack-hygiene/service-booking/internal/domain/booking"
	"github.com/aquatrack-hygiene/service-booking/internal/payment"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/cache"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/domain"
	"github.com/aquatrack-hygiene/service-booking/internal/proto/events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BookingService is the application service orchestrating booking use cases:
// creation, the payment gate and admin lifecycle control.
type BookingService struct {
	repo      bookingDomain.BookingRepository
	addresses account.AddressRepository
	directory account.Directory
	pricing   bookingDomain.PricingStrategy
	gateway   payment.Gateway
	locker    Locker
	settings  PaymentSettings
	events    eventEmitter
	logger    *zap.Logger
}

// NewBookingService creates a new BookingService.
func NewBookingService(
	repo bookingDomain.BookingRepository,
	addresses account.AddressRepository,
	directory account.Directory,
	pricing bookingDomain.PricingStrategy,
	gateway payment.Gateway,
	locker Locker,
	producer EventPublisher,
	settings PaymentSettings,
	logger *zap.Logger,
) *BookingService {
	return &BookingService{
		repo:      repo,
		addresses: addresses,
		directory: directory,
		pricing:   pricing,
		gateway:   gateway,
		locker:    locker,
		settings:  settings.withDefaults(),
		events:    eventEmitter{producer: producer, logger: logger},
		logger:    logger,
	}
}

// CreateBooking creates a pending booking for the calling customer at one of
// their own addresses.
func (s *BookingService) CreateBooking(ctx context.Context, actor Actor, req CreateBookingRequest) (*BookingDTO, error) {
	if err := requireRole(actor, auth.RoleCustomer); err != nil {
		return nil, err
	}

	spec := req.spec()
	if err := spec.Validate(); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	method := bookingDomain.PaymentMethod(req.PaymentMethod)
	if !method.IsValid() {
		return nil, domain.NewValidationError(fmt.Sprintf("invalid payment method: %s", req.PaymentMethod))
	}

	// Another customer's address is reported exactly like a missing one.
	if _, err := s.addresses.FindOwned(ctx, req.AddressID, actor.ID); err != nil {
		return nil, err
	}

	amount := s.pricing.Calculate(bookingDomain.ParamsFor(spec))

	bk, err := bookingDomain.NewBooking(actor.ID, req.AddressID, spec, method, amount, domain.CurrencyINR)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Save(ctx, bk); err != nil {
		return nil, fmt.Errorf("failed to save booking: %w", err)
	}

	s.logger.Info("booking created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("booking_number", bk.BookingNumber()),
		zap.Int64("amount", bk.Amount()),
		zap.String("payment_method", string(bk.PaymentMethod())),
	)

	evt := events.BookingCreatedEvent{
		BookingID:     bk.ID(),
		BookingNumber: bk.BookingNumber(),
		UserID:        bk.UserID(),
		AddressID:     bk.AddressID(),
		PackageType:   string(spec.PackageType),
		ServiceDate:   spec.ServiceDate,
		ServiceTime:   spec.ServiceTime,
		PaymentMethod: string(bk.PaymentMethod()),
		Amount:        bk.Amount(),
		Currency:      bk.Currency(),
		OccurredAt:    time.Now().UTC(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, events.BookingCreated, bk.ID().String(), evt)

	result := toBookingDTO(bk)
	return &result, nil
}

// --- Payment gate ---

// CreatePaymentOrder opens a gateway order for a pending booking. Cash on
// delivery skips the gateway and confirms immediately. A booking whose last
// payment failed may ask for a new order.
func (s *BookingService) CreatePaymentOrder(ctx context.Context, actor Actor, bookingID uuid.UUID) (*PaymentOrderDTO, error) {
	bk, err := s.findOwned(ctx, actor, bookingID)
	if err != nil {
		return nil, err
	}

	if !bk.PaymentMethod().UsesGateway() {
		confirmed, err := s.confirmCashOnDelivery(ctx, bk)
		if err != nil {
			return nil, err
		}
		return &PaymentOrderDTO{
			BookingID:     confirmed.ID(),
			Amount:        confirmed.Amount(),
			Currency:      confirmed.Currency(),
			Status:        string(confirmed.Status()),
			PaymentStatus: string(confirmed.PaymentStatus()),
		}, nil
	}

	if bk.Status() != bookingDomain.StatusPending {
		return nil, domain.NewConflictError(fmt.Sprintf("booking is %s, not awaiting payment", bk.Status()))
	}

	release, err := s.locker.Acquire(ctx, "payment-order:"+bk.ID().String(), s.settings.LockTTL)
	if err != nil {
		if errors.Is(err, cache.ErrLockHeld) {
			return nil, domain.NewConflictError("a payment order is already being created for this booking")
		}
		return nil, fmt.Errorf("failed to lock booking for payment: %w", err)
	}
	defer release()

	gatewayCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	order, err := s.gateway.CreateOrder(gatewayCtx, payment.OrderRequest{
		Amount:   bk.Amount(),
		Currency: bk.Currency(),
		Receipt:  bk.BookingNumber(),
	})
	cancel()
	if err != nil {
		s.recordPaymentFailure(ctx, bk, "", err.Error())
		return nil, domain.NewPaymentFailedError("payment order could not be created", err)
	}

	if err := s.repo.SetOrderRef(ctx, bk.ID(), order.ID); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bk.ID(), "store payment order", err)
	}

	s.logger.Info("payment order created",
		zap.String("booking_id", bk.ID().String()),
		zap.String("order_id", order.ID),
		zap.String("provider", s.gateway.Provider()),
	)

	return &PaymentOrderDTO{
		BookingID:     bk.ID(),
		OrderID:       order.ID,
		Amount:        bk.Amount(),
		Currency:      bk.Currency(),
		KeyID:         s.gateway.KeyID(),
		Provider:      s.gateway.Provider(),
		ClientSecret:  order.ClientSecret,
		Status:        string(bk.Status()),
		PaymentStatus: string(bk.PaymentStatus()),
	}, nil
}

// ConfirmPayment verifies a checkout with the gateway and, on success, moves
// the booking to confirmed with payment_status=completed in one update. A
// rejected or unverifiable payment leaves the booking pending with
// payment_status=failed.
func (s *BookingService) ConfirmPayment(ctx context.Context, actor Actor, req VerifyPaymentRequest) (*BookingDTO, error) {
	bk, err := s.findOwned(ctx, actor, req.BookingID)
	if err != nil {
		return nil, err
	}

	if !bk.PaymentMethod().UsesGateway() {
		confirmed, err := s.confirmCashOnDelivery(ctx, bk)
		if err != nil {
			return nil, err
		}
		result := toBookingDTO(confirmed)
		return &result, nil
	}

	if bk.PaymentStatus() == bookingDomain.PaymentCompleted {
		// A retried verify for the payment we already accepted is not an error.
		if req.PaymentID != "" && req.PaymentID == bk.PaymentRef() {
			result := toBookingDTO(bk)
			return &result, nil
		}
		return nil, domain.NewConflictError("booking is already paid")
	}
	if bk.Status() != bookingDomain.StatusPending {
		return nil, domain.NewConflictError(fmt.Sprintf("booking is %s, not awaiting payment", bk.Status()))
	}
	if req.OrderID == "" || req.PaymentID == "" {
		return nil, domain.NewValidationError("order_id and payment_id are required")
	}
	if bk.OrderRef() == "" {
		return nil, domain.NewConflictError("no payment order has been created for this booking")
	}
	if bk.OrderRef() != req.OrderID {
		return nil, domain.NewValidationError("payment order does not belong to this booking")
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	ok, err := s.gateway.Verify(gatewayCtx, payment.Verification{
		OrderRef:   req.OrderID,
		PaymentRef: req.PaymentID,
		Signature:  req.Signature,
	})
	cancel()
	if err != nil {
		s.recordPaymentFailure(ctx, bk, req.OrderID, err.Error())
		return nil, domain.NewPaymentFailedError("payment could not be verified", err)
	}
	if !ok {
		s.recordPaymentFailure(ctx, bk, req.OrderID, "signature verification failed")
		return nil, domain.NewPaymentFailedError("payment signature is invalid", nil)
	}

	if err := s.repo.ConfirmPayment(ctx, bk.ID(), req.OrderID, bookingDomain.PaymentCompleted, req.PaymentID); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bk.ID(), "confirm payment", err)
	}

	confirmed, err := s.afterConfirm(ctx, bk.ID())
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(confirmed)
	return &result, nil
}

// FailPayment records a payment the client reports as failed. The booking
// stays pending and may be paid again.
func (s *BookingService) FailPayment(ctx context.Context, actor Actor, req PaymentFailureRequest) (*BookingDTO, error) {
	bk, err := s.findOwned(ctx, actor, req.BookingID)
	if err != nil {
		return nil, err
	}
	if !bk.PaymentMethod().UsesGateway() {
		return nil, domain.NewConflictError("cash on delivery bookings have no online payment")
	}

	if err := s.repo.FailPayment(ctx, bk.ID(), req.OrderID); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bk.ID(), "record payment failure", err)
	}
	s.publishPaymentFailed(ctx, bk, req.OrderID, req.Reason)

	return s.reload(ctx, bk.ID())
}

// ApplyPaymentEvent applies a payment outcome reported by the payment
// service. Redelivered and stale events are no-ops.
func (s *BookingService) ApplyPaymentEvent(ctx context.Context, eventType string, evt events.PaymentEvent) error {
	bk, err := s.repo.FindByID(ctx, evt.BookingID)
	if err != nil {
		if domain.KindOf(err) == domain.KindNotFound {
			s.logger.Warn("payment event for unknown booking",
				zap.String("booking_id", evt.BookingID.String()),
				zap.String("type", eventType),
			)
			return nil
		}
		return err
	}

	if bk.Status() != bookingDomain.StatusPending || bk.PaymentStatus() == bookingDomain.PaymentCompleted {
		s.logger.Debug("payment event ignored",
			zap.String("booking_id", bk.ID().String()),
			zap.String("type", eventType),
			zap.String("status", string(bk.Status())),
		)
		return nil
	}

	switch eventType {
	case events.PaymentCaptured:
		err = s.repo.ConfirmPayment(ctx, bk.ID(), evt.OrderRef, bookingDomain.PaymentCompleted, evt.PaymentRef)
		if err == nil {
			_, err = s.afterConfirm(ctx, bk.ID())
			return err
		}
	case events.PaymentFailed:
		err = s.repo.FailPayment(ctx, bk.ID(), evt.OrderRef)
		if err == nil {
			s.publishPaymentFailed(ctx, bk, evt.OrderRef, evt.Reason)
			return nil
		}
	default:
		return nil
	}

	if errors.Is(err, bookingDomain.ErrGuardFailed) {
		s.logger.Warn("payment event did not match booking state",
			zap.String("booking_id", bk.ID().String()),
			zap.String("type", eventType),
			zap.String("order_ref", evt.OrderRef),
		)
		return nil
	}
	return fmt.Errorf("failed to apply %s: %w", eventType, err)
}

func (s *BookingService) confirmCashOnDelivery(ctx context.Context, bk *bookingDomain.Booking) (*bookingDomain.Booking, error) {
	switch bk.Status() {
	case bookingDomain.StatusConfirmed:
		return bk, nil
	case bookingDomain.StatusPending:
	default:
		return nil, domain.NewConflictError(fmt.Sprintf("booking is %s, not awaiting payment", bk.Status()))
	}

	// Cash is collected on site, so payment_status stays pending.
	err := s.repo.ConfirmPayment(ctx, bk.ID(), "", bookingDomain.PaymentPending, "")
	if err != nil {
		if errors.Is(err, bookingDomain.ErrGuardFailed) {
			current, findErr := s.repo.FindByID(ctx, bk.ID())
			if findErr == nil && current.Status() == bookingDomain.StatusConfirmed {
				return current, nil
			}
		}
		return nil, explainGuardMiss(ctx, s.repo, bk.ID(), "confirm booking", err)
	}

	return s.afterConfirm(ctx, bk.ID())
}

// afterConfirm reloads a just-confirmed booking and announces it.
func (s *BookingService) afterConfirm(ctx context.Context, id uuid.UUID) (*bookingDomain.Booking, error) {
	bk, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info("booking confirmed",
		zap.String("booking_id", bk.ID().String()),
		zap.String("payment_status", string(bk.PaymentStatus())),
	)

	evt := events.BookingConfirmedEvent{
		BookingID:     bk.ID(),
		BookingNumber: bk.BookingNumber(),
		UserID:        bk.UserID(),
		PaymentMethod: string(bk.PaymentMethod()),
		PaymentStatus: string(bk.PaymentStatus()),
		PaymentRef:    bk.PaymentRef(),
		OccurredAt:    time.Now().UTC(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, events.BookingConfirmed, bk.ID().String(), evt)
	return bk, nil
}

// recordPaymentFailure sets payment_status=failed after a gateway problem so
// the booking is never left in an indeterminate payment state.
func (s *BookingService) recordPaymentFailure(ctx context.Context, bk *bookingDomain.Booking, orderRef, reason string) {
	if err := s.repo.FailPayment(ctx, bk.ID(), orderRef); err != nil {
		s.logger.Error("failed to record payment failure",
			zap.String("booking_id", bk.ID().String()),
			zap.Error(err),
		)
		return
	}
	s.logger.Warn("payment failed",
		zap.String("booking_id", bk.ID().String()),
		zap.String("order_id", orderRef),
		zap.String("reason", reason),
	)
	s.publishPaymentFailed(ctx, bk, orderRef, reason)
}

func (s *BookingService) publishPaymentFailed(ctx context.Context, bk *bookingDomain.Booking, orderRef, reason string) {
	evt := events.BookingPaymentFailedEvent{
		BookingID:  bk.ID(),
		UserID:     bk.UserID(),
		OrderRef:   orderRef,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, events.BookingPaymentFailed, bk.ID().String(), evt)
}

// --- Admin operations ---

// AssignTechnician binds a technician to a booking. Status and payment state
// are not consulted or changed, and an existing assignment is replaced.
func (s *BookingService) AssignTechnician(ctx context.Context, actor Actor, bookingID, technicianID uuid.UUID) (*BookingDTO, error) {
	if err := requireRole(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}

	exists, err := s.directory.TechnicianExists(ctx, technicianID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up technician: %w", err)
	}
	if !exists {
		return nil, domain.NewNotFoundError("Technician", technicianID.String())
	}

	if err := s.repo.AssignTechnician(ctx, bookingID, technicianID); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bookingID, "assign technician", err)
	}

	bk, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("technician assigned",
		zap.String("booking_id", bookingID.String()),
		zap.String("technician_id", technicianID.String()),
	)

	evt := events.TechnicianAssignedEvent{
		BookingID:     bk.ID(),
		BookingNumber: bk.BookingNumber(),
		TechnicianID:  technicianID,
		AssignedBy:    actor.ID,
		ServiceDate:   bk.Spec().ServiceDate,
		OccurredAt:    time.Now().UTC(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, events.BookingTechnicianAssigned, bk.ID().String(), evt)

	result := toBookingDTO(bk)
	return &result, nil
}

// OverrideStatus sets any valid status without consulting the transition table.
func (s *BookingService) OverrideStatus(ctx context.Context, actor Actor, bookingID uuid.UUID, status string) (*BookingDTO, error) {
	if err := requireRole(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	target, err := bookingDomain.ParseBookingStatus(status)
	if err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	prior, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.OverrideStatus(ctx, bookingID, target); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bookingID, "override status", err)
	}

	s.logger.Warn("booking status overridden",
		zap.String("booking_id", bookingID.String()),
		zap.String("from", string(prior.Status())),
		zap.String("to", string(target)),
		zap.String("admin_id", actor.ID.String()),
	)
	s.publishStatusChange(ctx, events.BookingStatusOverridden, bookingID, prior.Status(), target, actor.ID)

	return s.reload(ctx, bookingID)
}

// CancelBooking cancels a pending, confirmed or in-progress booking.
func (s *BookingService) CancelBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	if err := requireRole(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}

	prior, err := s.repo.FindByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if !prior.Status().CanBeCancelled() {
		return nil, domain.NewInvalidStateError(string(prior.Status()), string(bookingDomain.StatusCancelled))
	}

	sources := bookingDomain.SourcesOf(bookingDomain.StatusCancelled)
	if err := s.repo.Transition(ctx, bookingID, sources, bookingDomain.StatusCancelled); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bookingID, "cancel booking", err)
	}

	s.logger.Info("booking cancelled",
		zap.String("booking_id", bookingID.String()),
		zap.String("from", string(prior.Status())),
	)
	s.publishStatusChange(ctx, events.BookingCancelled, bookingID, prior.Status(), bookingDomain.StatusCancelled, actor.ID)

	return s.reload(ctx, bookingID)
}

// RescheduleBooking moves the service slot of a booking whose job has not started.
func (s *BookingService) RescheduleBooking(ctx context.Context, actor Actor, bookingID uuid.UUID, req RescheduleRequest) (*BookingDTO, error) {
	if err := requireRole(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}
	if err := bookingDomain.ValidateSchedule(req.ServiceDate, req.ServiceTime); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	if err := s.repo.Reschedule(ctx, bookingID, req.ServiceDate, req.ServiceTime); err != nil {
		return nil, explainGuardMiss(ctx, s.repo, bookingID, "reschedule booking", err)
	}

	evt := events.BookingRescheduledEvent{
		BookingID:   bookingID,
		ServiceDate: req.ServiceDate,
		ServiceTime: req.ServiceTime,
		ChangedBy:   actor.ID,
		OccurredAt:  time.Now().UTC(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, events.BookingRescheduled, bookingID.String(), evt)

	return s.reload(ctx, bookingID)
}

func (s *BookingService) publishStatusChange(ctx context.Context, eventType string, id uuid.UUID, from, to bookingDomain.BookingStatus, by uuid.UUID) {
	evt := events.BookingStatusChangedEvent{
		BookingID:  id,
		From:       string(from),
		To:         string(to),
		ChangedBy:  by,
		OccurredAt: time.Now().UTC(),
	}
	s.events.publishEvent(ctx, events.TopicBookingEvents, eventType, id.String(), evt)
}

// --- Queries ---

// GetBooking returns a booking visible to the actor.
func (s *BookingService) GetBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*BookingDTO, error) {
	bk, err := findVisible(ctx, s.repo, actor, bookingID)
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}

// ListBookings returns one page of the bookings the actor can see, newest first.
func (s *BookingService) ListBookings(ctx context.Context, actor Actor, q ListBookingsQuery) (*domain.PaginatedResult[BookingDTO], error) {
	page, limit := normalizePage(q.Page, q.Limit)
	filter := bookingDomain.ListFilter{
		ServiceDate: q.ServiceDate,
		Page:        page,
		Limit:       limit,
	}

	if q.Status != "" {
		status, err := bookingDomain.ParseBookingStatus(q.Status)
		if err != nil {
			return nil, domain.NewValidationError(err.Error())
		}
		filter.Statuses = []bookingDomain.BookingStatus{status}
	}

	switch {
	case actor.IsAdmin():
		filter.UserID = q.UserID
		filter.TechnicianID = q.TechnicianID
	case actor.IsCustomer():
		id := actor.ID
		filter.UserID = &id
	case actor.IsTechnician():
		id := actor.ID
		filter.TechnicianID = &id
	default:
		return nil, domain.NewForbiddenError("unknown role")
	}

	bookings, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	result := domain.NewPaginatedResult(toBookingDTOs(bookings), total, page, limit)
	return &result, nil
}

// Stats returns booking counts by status (admin).
func (s *BookingService) Stats(ctx context.Context, actor Actor) (*BookingStatsDTO, error) {
	if err := requireRole(actor, auth.RoleAdmin); err != nil {
		return nil, err
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking stats: %w", err)
	}

	byStatus := make(map[string]int64, len(bookingDomain.AllStatuses))
	for _, st := range bookingDomain.AllStatuses {
		byStatus[string(st)] = 0
	}
	var total int64
	for st, c := range counts {
		byStatus[string(st)] = c
		total += c
	}

	return &BookingStatsDTO{
		TotalBookings: total,
		ByStatus:      byStatus,
	}, nil
}

// --- Helpers ---

// findOwned loads a booking for its owning customer. Other actors that can
// see the booking are refused; everyone else gets NotFound.
func (s *BookingService) findOwned(ctx context.Context, actor Actor, id uuid.UUID) (*bookingDomain.Booking, error) {
	bk, err := findVisible(ctx, s.repo, actor, id)
	if err != nil {
		return nil, err
	}
	if bk.UserID() != actor.ID {
		return nil, domain.NewForbiddenError("only the booking owner can pay for it")
	}
	return bk, nil
}

func (s *BookingService) reload(ctx context.Context, id uuid.UUID) (*BookingDTO, error) {
	bk, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	result := toBookingDTO(bk)
	return &result, nil
}
