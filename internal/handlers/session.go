package handlers

import (
	"net/http"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	"github.com/RabbitBoii/habit-tracker/internal/dto"
	apierrors "github.com/RabbitBoii/habit-tracker/internal/errors"
	"github.com/RabbitBoii/habit-tracker/internal/jwtauth"
	"github.com/RabbitBoii/habit-tracker/internal/middleware"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionHandler exchanges an identity-provider token for a session cookie.
type SessionHandler struct {
	userService *services.UserService
	verifier    jwtauth.TokenVerifier
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(userService *services.UserService, verifier jwtauth.TokenVerifier) *SessionHandler {
	return &SessionHandler{
		userService: userService,
		verifier:    verifier,
	}
}

// CreateSession verifies the bearer token, syncs the local user and starts a session.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok || h.verifier == nil {
		apierrors.Unauthorized(c, "Bearer token required")
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), token)
	if err != nil {
		apierrors.Unauthorized(c, "Invalid or expired token")
		return
	}

	user, err := h.userService.GetOrCreateCurrentUser(c.Request.Context(), claims.Identity())
	if err != nil {
		respondServiceError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(constants.SessionKeyIdentity, user.ExternalID)
	session.Set(constants.ContextKeyUserID, user.ID)
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to save session")
		return
	}

	c.JSON(http.StatusOK, dto.ToUserDTO(*user))
}

// DeleteSession removes the session.
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to logout")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}
