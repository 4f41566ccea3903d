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

type snapshotService interface {
	BuildForSubjectWithChanges(ctx context.Context, input service.BuildSnapshotInput) (*models.ChangeSnapshot, error)
	Get(ctx context.Context, id string) (*models.ChangeSnapshot, error)
	ListForTeammate(ctx context.Context, teammateID string, filter models.SnapshotFilter) ([]models.ChangeSnapshot, error)
	Acknowledge(ctx context.Context, id, teammateID string) (*models.ChangeSnapshot, error)
}

type snapshotExecutor interface {
	Execute(ctx context.Context, snapshotID, actorID string) (*models.ExecutionResult, error)
}

// SnapshotHandler exposes change snapshot capture, review and execution.
type SnapshotHandler struct {
	snapshots snapshotService
	executor  snapshotExecutor
}

// NewSnapshotHandler constructs the handler.
func NewSnapshotHandler(snapshots snapshotService, executor snapshotExecutor) *SnapshotHandler {
	return &SnapshotHandler{snapshots: snapshots, executor: executor}
}

// Create godoc
// @Summary Capture a change snapshot for a teammate
// @Tags Snapshots
// @Accept json
// @Produce json
// @Param payload body dto.CreateSnapshotRequest true "Snapshot payload with flat edits"
// @Success 201 {object} response.Envelope
// @Router /snapshots [post]
func (h *SnapshotHandler) Create(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.CreateSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid snapshot payload"))
		return
	}
	edits, err := dto.ParseFlatEdits(req.Edits)
	if err != nil {
		response.Error(c, err)
		return
	}
	organizationID := strings.TrimSpace(req.OrganizationID)
	if organizationID == "" {
		organizationID = claims.OrganizationID
	}
	snapshot, err := h.snapshots.BuildForSubjectWithChanges(c.Request.Context(), service.BuildSnapshotInput{
		TeammateID:     strings.TrimSpace(req.TeammateID),
		CreatedBy:      claims.TeammateID,
		OrganizationID: organizationID,
		ChangeType:     req.ChangeType,
		Reason:         req.Reason,
		Edits:          edits,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, snapshot)
}

// Get godoc
// @Summary Get a change snapshot
// @Tags Snapshots
// @Produce json
// @Param id path string true "Snapshot ID"
// @Success 200 {object} response.Envelope
// @Router /snapshots/{id} [get]
func (h *SnapshotHandler) Get(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	snapshot, err := h.snapshots.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if snapshot.TeammateID != claims.TeammateID && snapshot.CreatedBy != claims.TeammateID && !isManager(claims) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}

// ListForTeammate godoc
// @Summary List a teammate's change snapshots
// @Tags Snapshots
// @Produce json
// @Param id path string true "Teammate ID"
// @Param status query string false "Comma separated statuses"
// @Param change_type query string false "Change type"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /teammates/{id}/snapshots [get]
func (h *SnapshotHandler) ListForTeammate(c *gin.Context) {
	if _, ok := requireClaims(c); !ok {
		return
	}
	var query dto.SnapshotListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid snapshot query"))
		return
	}
	snapshots, err := h.snapshots.ListForTeammate(c.Request.Context(), c.Param("id"), query.ToFilter())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.List(c, snapshots, query.Limit, query.Offset, len(snapshots))
}

// Execute godoc
// @Summary Execute a pending snapshot
// @Description Item failures roll back every change and respond 422 with the itemised result.
// @Tags Snapshots
// @Produce json
// @Param id path string true "Snapshot ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /snapshots/{id}/execute [post]
func (h *SnapshotHandler) Execute(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	result, err := h.executor.Execute(c.Request.Context(), c.Param("id"), claims.TeammateID)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Status == models.SnapshotStatusFailed {
		status = http.StatusUnprocessableEntity
	}
	response.JSON(c, status, result)
}

// Acknowledge godoc
// @Summary Acknowledge a snapshot as its subject
// @Tags Snapshots
// @Produce json
// @Param id path string true "Snapshot ID"
// @Success 200 {object} response.Envelope
// @Router /snapshots/{id}/acknowledge [post]
func (h *SnapshotHandler) Acknowledge(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	snapshot, err := h.snapshots.Acknowledge(c.Request.Context(), c.Param("id"), claims.TeammateID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}
