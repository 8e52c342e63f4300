package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/Anuj-afk/TimeTable-Generator/internal/middleware"
)

// actorID is recorded as created_by on runs. It is empty when auth is disabled.
func actorID(c *gin.Context) string {
	if claims := middleware.Claims(c); claims != nil {
		return claims.UserID
	}
	return ""
}
