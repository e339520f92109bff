package handlers

import (
	"errors"
	"log"
	"strconv"

	apierrors "github.com/RabbitBoii/habit-tracker/internal/errors"
	"github.com/RabbitBoii/habit-tracker/internal/middleware"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-gonic/gin"
)

// respondServiceError translates a service error into the API error envelope.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		apierrors.Unauthorized(c, "User not synced")
	case errors.Is(err, services.ErrProjectAccessDenied):
		apierrors.Forbidden(c, err.Error())
	case errors.Is(err, services.ErrProjectNotFound),
		errors.Is(err, services.ErrTaskNotFound):
		apierrors.NotFound(c, err.Error())
	case errors.Is(err, services.ErrInvalidProjectName),
		errors.Is(err, services.ErrInvalidProjectColor),
		errors.Is(err, services.ErrTitleRequired),
		errors.Is(err, services.ErrTitleEmpty),
		errors.Is(err, services.ErrInvalidPriority),
		errors.Is(err, services.ErrInvalidStatus),
		errors.Is(err, services.ErrEmptyTaskOrder),
		errors.Is(err, services.ErrDuplicateTaskIDs),
		errors.Is(err, services.ErrMissingExternalID):
		apierrors.BadRequest(c, err.Error())
	case errors.Is(err, services.ErrInsufficientCredits):
		apierrors.PreconditionFailed(c, err.Error())
	case errors.Is(err, services.ErrAIServiceNotConfigured):
		apierrors.ServiceUnavailable(c, "AI service is not configured")
	case errors.Is(err, services.ErrAIEmptyResponse):
		apierrors.InternalError(c, "AI returned empty")
	case errors.Is(err, services.ErrAIInvalidResponse),
		errors.Is(err, services.ErrAINoTasksGenerated):
		apierrors.InternalError(c, "Failed to parse AI response")
	default:
		log.Printf("[%s] %s %s: %v", middleware.GetRequestID(c), c.Request.Method, c.FullPath(), err)
		apierrors.InternalError(c, "")
	}
}

// parseIDParam reads a positive integer path parameter, answering 400 otherwise.
func parseIDParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		apierrors.BadRequest(c, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// requireUserID answers 401 when the caller has no local user record yet.
func requireUserID(c *gin.Context) (uint64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		apierrors.Unauthorized(c, "User not synced")
		return 0, false
	}
	return userID, true
}
