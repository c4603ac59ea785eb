package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
	"github.com/vantage-academy/portal-api/pkg/response"
)

// Route authorization comes in two modes. Flag-gated routes accept any
// session whose account holds one of the listed roles, whatever persona is
// currently active. Persona-gated routes demand that the active role itself
// matches, so a teacher browsing as student is treated as a student.

// RequireFlag authorizes sessions whose account holds at least one of the
// given role flags.
func RequireFlag(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, role := range roles {
			if claims.HasRole(role) {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}

// RequireCurrentRole authorizes sessions whose active persona is one of the
// given roles.
func RequireCurrentRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, role := range roles {
			if claims.CurrentRole == role {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
