package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maap-api/internal/middleware"
	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
	"github.com/noah-isme/maap-api/pkg/response"
)

// requireClaims writes 401 and returns false when the request carries no teammate identity.
func requireClaims(c *gin.Context) (*models.JWTClaims, bool) {
	claims := middleware.Claims(c)
	if claims == nil || claims.TeammateID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return claims, true
}

func isManager(claims *models.JWTClaims) bool {
	return claims.Role == models.RoleManager || claims.Role == models.RoleAdmin
}

func queryInt(c *gin.Context, key string) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
