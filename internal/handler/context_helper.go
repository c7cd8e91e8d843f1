package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/church-attendance-api/internal/middleware"
	"github.com/noah-isme/church-attendance-api/internal/models"
)

// claimsFromContext returns the claims set by middleware.JWT, or nil on public routes.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	if value, ok := c.Get(middleware.ContextUserKey); ok {
		if claims, ok := value.(*models.JWTClaims); ok {
			return claims
		}
	}
	return nil
}
