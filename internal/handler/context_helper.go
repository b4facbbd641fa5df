package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/course-eval-api/internal/middleware"
	"github.com/noah-isme/course-eval-api/internal/models"
	appErrors "github.com/noah-isme/course-eval-api/pkg/errors"
	"github.com/noah-isme/course-eval-api/pkg/response"
)

// requireUser returns the authenticated user's claims or answers 401 and reports false.
func requireUser(c *gin.Context) (*models.JWTClaims, bool) {
	value, _ := c.Get(middleware.ContextUserKey)
	claims, ok := value.(*models.JWTClaims)
	if !ok || claims == nil || claims.UserID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}
