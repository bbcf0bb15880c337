package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/aquatrack-hygiene/service-booking/internal/application"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/middleware"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/response"
)

// FieldHandler serves the technician app.
type FieldHandler struct {
	service *application.JobService
}

// NewFieldHandler creates a new FieldHandler.
func NewFieldHandler(service *application.JobService) *FieldHandler {
	return &FieldHandler{service: service}
}

// RegisterRoutes registers technician routes under /api/v1/field.
func (h *FieldHandler) RegisterRoutes(r *gin.RouterGroup, authMW ...gin.HandlerFunc) {
	field := r.Group("/api/v1/field")
	field.Use(authMW...)
	field.Use(middleware.RequireRole(auth.RoleTechnician))
	{
		field.GET("/jobs", h.ListJobs)
		field.GET("/jobs/:id", h.GetJob)
		field.POST("/jobs/:id/start", h.StartJob)
		field.PUT("/jobs/:id/checklist", h.UpdateChecklist)
		field.POST("/jobs/:id/usage", h.RecordUsage)
		field.POST("/jobs/:id/incident", h.ReportIncident)
		field.POST("/jobs/:id/complete", h.CompleteJob)
		field.GET("/stats", h.Stats)
	}
}

// ListJobs handles GET /api/v1/field/jobs.
func (h *FieldHandler) ListJobs(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	page, limit := parsePaging(c)
	result, err := h.service.ListJobs(c.Request.Context(), actor, application.ListJobsQuery{
		Status:      c.Query("status"),
		ServiceDate: c.Query("date"),
		Page:        page,
		Limit:       limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Paginated(c, result.Items, result.Total, result.Page, result.Limit)
}

// GetJob handles GET /api/v1/field/jobs/:id.
func (h *FieldHandler) GetJob(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	result, err := h.service.GetJob(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// StartJob handles POST /api/v1/field/jobs/:id/start.
func (h *FieldHandler) StartJob(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	result, err := h.service.StartJob(c.Request.Context(), actor, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// UpdateChecklist handles PUT /api/v1/field/jobs/:id/checklist.
func (h *FieldHandler) UpdateChecklist(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req application.UpdateStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.UpdateChecklistStep(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// RecordUsage handles POST /api/v1/field/jobs/:id/usage.
func (h *FieldHandler) RecordUsage(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req application.RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.RecordUsage(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// ReportIncident handles POST /api/v1/field/jobs/:id/incident.
func (h *FieldHandler) ReportIncident(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req application.ReportIncidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.ReportIncident(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, result)
}

// CompleteJob handles POST /api/v1/field/jobs/:id/complete.
func (h *FieldHandler) CompleteJob(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	var req application.CompleteJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.CompleteJob(c.Request.Context(), actor, id, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, result)
}

// Stats handles GET /api/v1/field/stats.
func (h *FieldHandler) Stats(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}

	stats, err := h.service.Stats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, stats)
}
