package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maap-api/internal/dto"
	"github.com/noah-isme/maap-api/internal/middleware"
	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
	"github.com/noah-isme/maap-api/pkg/response"
)

type statsService interface {
	Summary(ctx context.Context, query models.StatsQuery) (*models.StatsSummary, bool, error)
	SystemMetrics() models.SystemMetrics
}

// StatsHandler serves read-only rollups.
type StatsHandler struct {
	service statsService
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service statsService) *StatsHandler {
	return &StatsHandler{service: service}
}

// Summary godoc
// @Summary Feedback, participation, rating, weekly and team rollups
// @Tags Stats
// @Produce json
// @Param kind query string false "position, assignment (default) or aspiration"
// @Param organization_id query string false "Organization, defaults to the caller's"
// @Param from query string false "Range start (RFC3339 or YYYY-MM-DD)"
// @Param to query string false "Range end, exclusive"
// @Success 200 {object} response.Envelope
// @Router /stats [get]
func (h *StatsHandler) Summary(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var params dto.StatsQueryParams
	if err := c.ShouldBindQuery(&params); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid stats query"))
		return
	}
	query, err := params.ToQuery()
	if err != nil {
		response.Error(c, err)
		return
	}
	if query.OrganizationID == "" {
		query.OrganizationID = claims.OrganizationID
	}
	if query.OrganizationID != claims.OrganizationID && claims.Role != models.RoleAdmin {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	summary, cached, err := h.service.Summary(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, summary, middleware.ExtractMeta(c))
}

// System godoc
// @Summary Service instrumentation snapshot
// @Tags Stats
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /stats/system [get]
func (h *StatsHandler) System(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.SystemMetrics())
}
