package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/maap-api/internal/dto"
	"github.com/noah-isme/maap-api/internal/models"
	"github.com/noah-isme/maap-api/internal/service"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
	"github.com/noah-isme/maap-api/pkg/response"
)

type checkInService interface {
	OpenOrCreate(ctx context.Context, kind models.CheckInKind, teammateID, itemID string) (*models.CheckIn, error)
	Get(ctx context.Context, id string) (*models.CheckIn, error)
	SaveSide(ctx context.Context, input service.SaveSideInput, actor string) (*models.CheckIn, error)
	ReadyForFinalization(ci *models.CheckIn) bool
	Finalize(ctx context.Context, input service.FinalizeInput, actor string) (*models.CheckIn, error)
	History(ctx context.Context, filter models.CheckInHistoryFilter) ([]models.CheckIn, error)
}

// CheckInHandler exposes the check-in lifecycle.
type CheckInHandler struct {
	service checkInService
}

// NewCheckInHandler constructs the handler.
func NewCheckInHandler(service checkInService) *CheckInHandler {
	return &CheckInHandler{service: service}
}

// Open godoc
// @Summary Open or fetch the open check-in for a teammate and item
// @Tags CheckIns
// @Accept json
// @Produce json
// @Param payload body dto.OpenCheckInRequest true "Check-in target"
// @Success 200 {object} response.Envelope
// @Router /check-ins/open [post]
func (h *CheckInHandler) Open(c *gin.Context) {
	if _, ok := requireClaims(c); !ok {
		return
	}
	var req dto.OpenCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid check-in payload"))
		return
	}
	ci, err := h.service.OpenOrCreate(c.Request.Context(), models.CheckInKind(strings.ToLower(string(req.Kind))), req.TeammateID, req.ItemID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ci)
}

// Get godoc
// @Summary Get a check-in
// @Tags CheckIns
// @Produce json
// @Param id path string true "Check-in ID"
// @Success 200 {object} response.Envelope
// @Router /check-ins/{id} [get]
func (h *CheckInHandler) Get(c *gin.Context) {
	if _, ok := requireClaims(c); !ok {
		return
	}
	ci, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ci)
}

// SaveSide godoc
// @Summary Save the employee or manager side of a check-in
// @Tags CheckIns
// @Accept json
// @Produce json
// @Param id path string true "Check-in ID"
// @Param side path string true "employee or manager"
// @Param payload body dto.SaveSideRequest true "Side values"
// @Success 200 {object} response.Envelope
// @Router /check-ins/{id}/sides/{side} [put]
func (h *CheckInHandler) SaveSide(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	side := models.Side(strings.ToLower(c.Param("side")))
	if side == models.SideManager && !isManager(claims) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only managers may save the manager side"))
		return
	}
	var req dto.SaveSideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid side payload"))
		return
	}
	ci, err := h.service.SaveSide(c.Request.Context(), service.SaveSideInput{
		CheckInID:    c.Param("id"),
		Side:         side,
		Rating:       req.Rating,
		Notes:        req.Notes,
		MarkComplete: req.MarkComplete,
	}, claims.TeammateID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ci)
}

// Ready godoc
// @Summary Report whether a check-in can be finalized
// @Tags CheckIns
// @Produce json
// @Param id path string true "Check-in ID"
// @Success 200 {object} response.Envelope
// @Router /check-ins/{id}/ready [get]
func (h *CheckInHandler) Ready(c *gin.Context) {
	if _, ok := requireClaims(c); !ok {
		return
	}
	ci, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ReadinessResponse{CheckInID: ci.ID, Ready: h.service.ReadyForFinalization(ci)})
}

// Finalize godoc
// @Summary Record the official assessment
// @Tags CheckIns
// @Accept json
// @Produce json
// @Param id path string true "Check-in ID"
// @Param payload body dto.FinalizeCheckInRequest true "Official rating"
// @Success 200 {object} response.Envelope
// @Router /check-ins/{id}/finalize [post]
func (h *CheckInHandler) Finalize(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.FinalizeCheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid finalize payload"))
		return
	}
	ci, err := h.service.Finalize(c.Request.Context(), service.FinalizeInput{
		CheckInID:   c.Param("id"),
		FinalRating: req.FinalRating,
		SharedNotes: req.SharedNotes,
	}, claims.TeammateID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ci)
}

// History godoc
// @Summary List finalized check-ins
// @Tags CheckIns
// @Produce json
// @Param teammate_id query string false "Teammate, defaults to the caller"
// @Param kind query string false "position, assignment or aspiration"
// @Param item_id query string false "Item ID"
// @Param limit query int false "Maximum rows"
// @Success 200 {object} response.Envelope
// @Router /check-ins/history [get]
func (h *CheckInHandler) History(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	teammateID := strings.TrimSpace(c.Query("teammate_id"))
	if teammateID == "" {
		teammateID = claims.TeammateID
	}
	if teammateID != claims.TeammateID && !isManager(claims) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	limit, valid := queryInt(c, "limit")
	if !valid {
		response.Error(c, appErrors.WithFields(appErrors.ErrValidation, "invalid history query", map[string]string{"limit": "must be a non-negative integer"}))
		return
	}
	history, err := h.service.History(c.Request.Context(), models.CheckInHistoryFilter{
		Kind:       models.CheckInKind(strings.ToLower(c.Query("kind"))),
		TeammateID: teammateID,
		ItemID:     strings.TrimSpace(c.Query("item_id")),
		Limit:      limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, history, limit, 0, len(history))
}
