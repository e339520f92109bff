package middleware

import (
	"strings"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	apierrors "github.com/RabbitBoii/habit-tracker/internal/errors"
	"github.com/RabbitBoii/habit-tracker/internal/jwtauth"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// RequireAuth resolves the caller's identity from the session cookie or a
// bearer token and aborts with 401 when neither is present and valid.
func RequireAuth(verifier jwtauth.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		if externalID, ok := session.Get(constants.SessionKeyIdentity).(string); ok && externalID != "" {
			c.Set(constants.ContextKeyIdentity, jwtauth.Identity{ExternalID: externalID})
			if userID, ok := session.Get(constants.ContextKeyUserID).(uint64); ok {
				c.Set(constants.ContextKeyUserID, userID)
			}
			c.Next()
			return
		}

		token, ok := BearerToken(c)
		if !ok || verifier == nil {
			apierrors.Unauthorized(c, "")
			c.Abort()
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			apierrors.Unauthorized(c, "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyIdentity, claims.Identity())
		c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(constants.HeaderAuthorization)
	if len(header) <= len(constants.BearerPrefix) || !strings.EqualFold(header[:len(constants.BearerPrefix)], constants.BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(constants.BearerPrefix):])
	return token, token != ""
}

// GetIdentity retrieves the caller's identity from context
func GetIdentity(c *gin.Context) (jwtauth.Identity, bool) {
	value, exists := c.Get(constants.ContextKeyIdentity)
	if !exists {
		return jwtauth.Identity{}, false
	}
	identity, ok := value.(jwtauth.Identity)
	return identity, ok && identity.ExternalID != ""
}

// GetUserID retrieves the current local user ID from context
func GetUserID(c *gin.Context) (uint64, bool) {
	userID, exists := c.Get(constants.ContextKeyUserID)
	if !exists {
		return 0, false
	}

	switch v := userID.(type) {
	case uint64:
		return v, true
	case uint:
		return uint64(v), true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint64(v), true
	default:
		return 0, false
	}
}
