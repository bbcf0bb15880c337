package handler

import (
	"fmt"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aquatrack-hygiene/service-booking/internal/application"
	"github.com/aquatrack-hygiene/service-booking/internal/domain/account"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/auth"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/middleware"
	"github.com/aquatrack-hygiene/service-booking/internal/platform/response"
)

// RequireKnownActor rejects tokens whose subject no longer exists in the
// directory for its role. It must run after middleware.AuthMiddleware.
func RequireKnownActor(directory account.Directory) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := actorFrom(c)
		if !ok {
			response.Unauthorized(c, "not authenticated")
			return
		}

		var (
			exists bool
			err    error
		)
		ctx := c.Request.Context()
		switch actor.Role {
		case auth.RoleCustomer:
			exists, err = directory.CustomerExists(ctx, actor.ID)
		case auth.RoleTechnician:
			exists, err = directory.TechnicianExists(ctx, actor.ID)
		case auth.RoleAdmin:
			exists, err = directory.AdminExists(ctx, actor.ID)
		}
		if err != nil {
			response.Error(c, fmt.Errorf("failed to resolve actor: %w", err))
			return
		}
		if !exists {
			response.Unauthorized(c, "account not found")
			return
		}
		c.Next()
	}
}

func actorFrom(c *gin.Context) (application.Actor, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return application.Actor{}, false
	}
	role, ok := middleware.GetUserRole(c)
	if !ok {
		return application.Actor{}, false
	}
	return application.NewActor(userID, role), true
}

// mustActor returns the actor or writes a 401 and reports false.
func mustActor(c *gin.Context) (application.Actor, bool) {
	actor, ok := actorFrom(c)
	if !ok {
		response.Unauthorized(c, "not authenticated")
	}
	return actor, ok
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid id")
		return uuid.Nil, false
	}
	return id, true
}

func parsePaging(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	return page, limit
}

func parseOptionalUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.BadRequest(c, "invalid "+key)
		return nil, false
	}
	return &id, true
}
