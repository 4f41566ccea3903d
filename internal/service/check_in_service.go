package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

type checkInStore interface {
	OpenOrCreate(ctx context.Context, kind models.CheckInKind, teammateID, itemID string, startedOn time.Time) (*models.CheckIn, error)
	GetByID(ctx context.Context, id string) (*models.CheckIn, error)
	UpdateSide(ctx context.Context, id string, side models.Side, assessment models.SideAssessment, updatedAt time.Time) error
	Finalize(ctx context.Context, id string, official models.OfficialAssessment) error
	History(ctx context.Context, filter models.CheckInHistoryFilter) ([]models.CheckIn, error)
}

// SaveSideInput describes a write to one side of a check-in. Nil fields keep stored values.
type SaveSideInput struct {
	CheckInID    string
	Side         models.Side
	Rating       *string
	Notes        *string
	MarkComplete bool
}

// FinalizeInput carries the official assessment.
type FinalizeInput struct {
	CheckInID   string
	FinalRating string
	SharedNotes string
}

// CheckInService drives the check-in lifecycle for every check-in kind.
type CheckInService struct {
	repo        checkInStore
	audit       auditTrail
	metrics     *MetricsService
	invalidator StatsInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// CheckInServiceOption configures the service.
type CheckInServiceOption func(*CheckInService)

// WithCheckInClock overrides the time source.
func WithCheckInClock(now func() time.Time) CheckInServiceOption {
	return func(s *CheckInService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCheckInMetrics records lifecycle transitions.
func WithCheckInMetrics(metrics *MetricsService) CheckInServiceOption {
	return func(s *CheckInService) {
		s.metrics = metrics
	}
}

// WithCheckInStatsInvalidator invalidates cached stats after finalization.
func WithCheckInStatsInvalidator(invalidator StatsInvalidator) CheckInServiceOption {
	return func(s *CheckInService) {
		s.invalidator = invalidator
	}
}

// NewCheckInService constructs the service.
func NewCheckInService(repo checkInStore, audit auditLogger, logger *zap.Logger, opts ...CheckInServiceOption) *CheckInService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &CheckInService{
		repo:   repo,
		audit:  auditTrail{store: audit, source: "check-in-service", logger: logger},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// OpenOrCreate returns the single open check-in for the pair, creating it if needed.
func (s *CheckInService) OpenOrCreate(ctx context.Context, kind models.CheckInKind, teammateID, itemID string) (*models.CheckIn, error) {
	fields := map[string]string{}
	if !kind.Valid() {
		fields["kind"] = "must be one of position, assignment, aspiration"
	}
	if strings.TrimSpace(teammateID) == "" {
		fields["teammate_id"] = "is required"
	}
	if strings.TrimSpace(itemID) == "" {
		fields["item_id"] = "is required"
	}
	if len(fields) > 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "invalid check-in reference", fields)
	}
	ci, err := s.repo.OpenOrCreate(ctx, kind, teammateID, itemID, truncateToDay(s.now()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "check-in was finalized while opening; retry")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open check-in")
	}
	s.metrics.RecordCheckInTransition(kind, "opened")
	return ci, nil
}

// Get loads a check-in by id.
func (s *CheckInService) Get(ctx context.Context, id string) (*models.CheckIn, error) {
	ci, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "check-in not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load check-in")
	}
	return ci, nil
}

// SaveSide writes one side's rating and notes and sets or clears its completion.
func (s *CheckInService) SaveSide(ctx context.Context, input SaveSideInput, actor string) (*models.CheckIn, error) {
	if !input.Side.Valid() {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "invalid side", map[string]string{"side": "must be employee or manager"})
	}
	ci, err := s.Get(ctx, input.CheckInID)
	if err != nil {
		return nil, err
	}
	if input.Rating != nil && !models.ValidRating(ci.Kind, strings.TrimSpace(*input.Rating)) {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "invalid rating", map[string]string{
			"rating": fmt.Sprintf("%q is not on the %s scale", *input.Rating, ci.Kind),
		})
	}
	now := s.now()
	if err := ci.ApplySide(input.Side, models.SideDraft{Rating: input.Rating, Notes: input.Notes}, actor, input.MarkComplete, now); err != nil {
		return nil, lifecycleError(err)
	}
	assessment, _ := ci.SideOf(input.Side)
	if err := s.repo.UpdateSide(ctx, ci.ID, input.Side, assessment, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, s.explainLostWrite(ctx, ci.ID, appErrors.Clone(appErrors.ErrConflict, "check-in changed concurrently"))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save check-in side")
	}
	s.metrics.RecordCheckInTransition(ci.Kind, "side_saved")
	return ci, nil
}

// ReadyForFinalization reports whether both sides are complete and the check-in is still open.
func (s *CheckInService) ReadyForFinalization(ci *models.CheckIn) bool {
	return ci != nil && ci.ReadyForFinalization()
}

// Finalize records the official rating. A finalized check-in is never re-finalized.
func (s *CheckInService) Finalize(ctx context.Context, input FinalizeInput, actor string) (*models.CheckIn, error) {
	ci, err := s.Get(ctx, input.CheckInID)
	if err != nil {
		return nil, err
	}
	before := *ci
	if err := ci.Finalize(input.FinalRating, input.SharedNotes, actor, s.now()); err != nil {
		return nil, lifecycleError(err)
	}
	if _, ok := models.RatingScale(ci.Kind, ci.Official.Rating); !ok {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "invalid final rating", map[string]string{
			"final_rating": fmt.Sprintf("%q is not on the %s scale", ci.Official.Rating, ci.Kind),
		})
	}
	if err := s.repo.Finalize(ctx, ci.ID, *ci.Official); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// a side was reopened or another finalizer won
			return nil, s.explainLostWrite(ctx, ci.ID, appErrors.ErrNotReady)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize check-in")
	}

	s.audit.record(ctx, actor, models.AuditActionCheckInFinalize, "check_in:"+string(ci.Kind), ci.ID, before, ci)
	s.metrics.RecordCheckInTransition(ci.Kind, "finalized")
	if s.invalidator != nil {
		s.invalidator.InvalidateStats(ctx, "check_in_finalized")
	}
	s.logger.Info("check-in finalized",
		zap.String("check_in_id", ci.ID),
		zap.String("kind", string(ci.Kind)),
		zap.String("teammate_id", ci.TeammateID),
		zap.String("actor", actor),
	)
	return ci, nil
}

// History lists finalized check-ins, newest first.
func (s *CheckInService) History(ctx context.Context, filter models.CheckInHistoryFilter) ([]models.CheckIn, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "invalid kind", map[string]string{"kind": "must be one of position, assignment, aspiration"})
	}
	if strings.TrimSpace(filter.TeammateID) == "" {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "teammate is required", map[string]string{"teammate_id": "is required"})
	}
	items, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load check-in history")
	}
	return items, nil
}

// explainLostWrite reloads a check-in after a guarded write affected no rows.
func (s *CheckInService) explainLostWrite(ctx context.Context, id string, fallback error) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Finalized() {
		return appErrors.ErrAlreadyFinalized
	}
	return fallback
}

func lifecycleError(err error) error {
	switch {
	case errors.Is(err, models.ErrCheckInFinalized):
		return appErrors.ErrAlreadyFinalized
	case errors.Is(err, models.ErrCheckInNotReady):
		return appErrors.ErrNotReady
	case errors.Is(err, models.ErrMissingFinalRating):
		return appErrors.ErrMissingRating
	case errors.Is(err, models.ErrSideRatingRequired):
		return appErrors.WithFields(appErrors.ErrValidation, "rating required to complete side", map[string]string{"rating": "is required to mark the side complete"})
	case errors.Is(err, models.ErrUnknownSide):
		return appErrors.WithFields(appErrors.ErrValidation, "invalid side", map[string]string{"side": "must be employee or manager"})
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "check-in transition failed")
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
