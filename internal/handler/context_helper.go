package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/classbridge/classbridge-api/internal/middleware"
	"github.com/classbridge/classbridge-api/internal/models"
)

// claimsFromContext pulls the authenticated user's claims set by the
// JWT middleware. Nil means the route was registered without it.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
