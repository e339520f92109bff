package middleware

import (
	"context"
	"errors"

	"github.com/RabbitBoii/habit-tracker/internal/constants"
	apierrors "github.com/RabbitBoii/habit-tracker/internal/errors"
	"github.com/RabbitBoii/habit-tracker/internal/models"
	"github.com/RabbitBoii/habit-tracker/internal/services"
	"github.com/gin-gonic/gin"
)

// UserFinder looks up the local user for an identity-provider subject.
type UserFinder interface {
	FindByExternalID(ctx context.Context, externalID string) (*models.User, error)
}

// LoadCurrentUser attaches the caller's local user ID when one exists. A
// caller without a local record passes through so reads can answer with
// empty results; handlers that mutate reject it themselves.
func LoadCurrentUser(users UserFinder) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := GetUserID(c); ok {
			c.Next()
			return
		}

		identity, ok := GetIdentity(c)
		if !ok {
			c.Next()
			return
		}

		user, err := users.FindByExternalID(c.Request.Context(), identity.ExternalID)
		if err != nil {
			if errors.Is(err, services.ErrUserNotFound) {
				c.Next()
				return
			}
			apierrors.InternalError(c, "Failed to load user")
			c.Abort()
			return
		}

		c.Set(constants.ContextKeyUserID, user.ID)
		c.Next()
	}
}
