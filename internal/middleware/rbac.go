package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/driving-school-api/internal/models"
	appErrors "github.com/noah-isme/driving-school-api/pkg/errors"
	"github.com/noah-isme/driving-school-api/pkg/response"
)

// RequireRoles admits identities holding one of roles. SUPER_ADMIN passes every check.
// An identity whose account was deactivated after its token was issued is refused.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		identity := IdentityFromContext(c)
		switch {
		case identity == nil:
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		case identity.Status != "" && identity.Status != models.UserStatusActive:
			response.Error(c, appErrors.ErrInactiveAccount)
			c.Abort()
			return
		}

		if _, ok := allowed[identity.Role]; ok || identity.Role == models.RoleSuperAdmin {
			c.Next()
			return
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(identity.Role)+" cannot perform this action"))
		c.Abort()
	}
}
