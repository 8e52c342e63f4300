package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/Anuj-afk/TimeTable-Generator/internal/models"
	appErrors "github.com/Anuj-afk/TimeTable-Generator/pkg/errors"
)

// RBAC admits only the listed roles. It must run after JWT.
func RBAC(allowed ...models.UserRole) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	for _, role := range allowed {
		roles[role] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := roles[claims.Role]; !ok {
			abort(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" may not access this route"))
			return
		}
		c.Next()
	}
}
