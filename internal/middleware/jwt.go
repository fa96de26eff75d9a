package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

// ContextUserKey is the gin context key storing the verified identity.
const ContextUserKey = "currentUser"

type credentialVerifier interface {
	VerifyCredential(ctx context.Context, token string) (*models.Identity, error)
}

// JWT protects routes by requiring a valid access token for an active account.
func JWT(verifier credentialVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		identity, err := verifier.VerifyCredential(c.Request.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, identity)
		c.Next()
	}
}

// IdentityFromContext returns the identity stored by JWT, or nil.
func IdentityFromContext(c *gin.Context) *models.Identity {
	value, exists := c.Get(ContextUserKey)
	if !exists {
		return nil
	}
	identity, ok := value.(*models.Identity)
	if !ok {
		return nil
	}
	return identity
}
