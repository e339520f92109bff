package handlers

import (
	"net/http"

	"github.com/RabbitBoii/habit-tracker/internal/dto"
	apierrors "github.com/RabbitBoii/habit-tracker/internal/errors"
	"github.com/RabbitBoii/habit-tracker/internal/middleware"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-gonic/gin"
)

// UserHandler serves the current user's profile.
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// GetMe returns the caller's local user, creating it on first sight.
func (h *UserHandler) GetMe(c *gin.Context) {
	identity, ok := middleware.GetIdentity(c)
	if !ok {
		apierrors.Unauthorized(c, "")
		return
	}

	user, err := h.userService.GetOrCreateCurrentUser(c.Request.Context(), identity)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}
