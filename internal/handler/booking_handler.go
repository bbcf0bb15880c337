package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/aquatrack-hygiene/service-booking/internal/application"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/middleware"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/response"
)

// BookingHandler handles HTTP requests for customer booking and payment operations.
type BookingHandler struct {
	service *application.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(service *application.BookingService) *BookingHandler {
	return &BookingHandler{service: service}
}

// RegisterRoutes registers booking and payment routes. authMW authenticates the caller.
func (h *BookingHandler) RegisterRoutes(r *gin.RouterGroup, authMW ...gin.HandlerFunc) {
	customer := middleware.RequireRole(auth.RoleCustomer)

	bookings := r.Group("/api/v1/bookings")
	bookings.Use(authMW...)
	{
		bookings.POST("", customer, h.CreateBooking)
		bookings.GET("", h.ListBookings)
		bookings.GET("/:id", h.GetBooking)
	}

	payments := r.Group("/api/v1/payments")
	payments.Use(authMW...)
	payments.Use(customer)
	{
		payments.POST("/create-order", h.CreatePaymentOrder)
		payments.POST("/verify", h.VerifyPayment)
		payments.POST("/failed", h.PaymentFailed)
	}
}

// CreateBooking handles POST /api/v1/bookings.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req application.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreateBooking(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// ListBookings handles GET /api/v1/bookings. Customers see their own
// bookings and technicians the ones assigned to them.
func (h *BookingHandler) ListBookings(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	page, limit := parsePaging(c)
	result, err := h.service.ListBookings(c.Request.Context(), actor, application.ListBookingsQuery{
		Status: c.Query("status"),
		Page:   page,
		Limit:  limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetBooking handles GET /api/v1/bookings/:id.
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	result, err := h.service.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// CreatePaymentOrder handles POST /api/v1/payments/create-order.
func (h *BookingHandler) CreatePaymentOrder(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req application.CreatePaymentOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CreatePaymentOrder(c.Request.Context(), actor, req.BookingID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// VerifyPayment handles POST /api/v1/payments/verify.
func (h *BookingHandler) VerifyPayment(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req application.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ConfirmPayment(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// PaymentFailed handles POST /api/v1/payments/failed.
func (h *BookingHandler) PaymentFailed(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	var req application.PaymentFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.FailPayment(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}
