package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

const (
	statsSummaryKeyPrefix = "summary"
	defaultStatsWindow    = 30 * 24 * time.Hour
	maxStatsWindow        = 366 * 24 * time.Hour
)

type finalizedCheckInReader interface {
	ListFinalized(ctx context.Context, filter models.FinalizedCheckInFilter) ([]models.CheckIn, error)
}

type feedbackReader interface {
	ListBetween(ctx context.Context, filter models.FeedbackFilter) ([]models.Feedback, error)
}

type teammateLister interface {
	ActiveTeammateIDs(ctx context.Context, organizationID string, at time.Time) ([]string, error)
}

// StatsService loads records for a range, rolls them up and caches the summary.
type StatsService struct {
	checkIns  finalizedCheckInReader
	feedback  feedbackReader
	teammates teammateLister
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
	now       func() time.Time
}

// NewStatsService constructs the service.
func NewStatsService(checkIns finalizedCheckInReader, feedback feedbackReader, teammates teammateLister, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{
		checkIns:  checkIns,
		feedback:  feedback,
		teammates: teammates,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Summary returns the rollups for query. The boolean reports whether it came from cache.
func (s *StatsService) Summary(ctx context.Context, query models.StatsQuery) (*models.StatsSummary, bool, error) {
	query, err := s.normalize(query)
	if err != nil {
		return nil, false, err
	}
	key := cacheKey(statsSummaryKeyPrefix, query.OrganizationID, string(query.Kind), query.From.Format(time.RFC3339), query.To.Format(time.RFC3339))

	var cached models.StatsSummary
	if hit, err := s.cache.Get(ctx, key, &cached); err != nil {
		s.logger.Warn("stats cache read failed, recomputing", zap.String("key", key), zap.Error(err))
	} else if hit {
		return &cached, true, nil
	}

	start := time.Now()
	checkIns, err := s.checkIns.ListFinalized(ctx, models.FinalizedCheckInFilter{
		Kind:           query.Kind,
		OrganizationID: query.OrganizationID,
		From:           query.From,
		To:             query.To,
	})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load finalized check-ins")
	}
	s.metrics.ObserveDBQuery("stats_check_ins", time.Since(start))

	start = time.Now()
	feedback, err := s.feedback.ListBetween(ctx, models.FeedbackFilter{OrganizationID: query.OrganizationID, From: query.From, To: query.To})
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load feedback")
	}
	s.metrics.ObserveDBQuery("stats_feedback", time.Since(start))

	start = time.Now()
	teammates, err := s.teammates.ActiveTeammateIDs(ctx, query.OrganizationID, query.To)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teammates")
	}
	s.metrics.ObserveDBQuery("stats_teammates", time.Since(start))

	aggregator := NewStatsAggregator(StatsInput{
		Kind:      query.Kind,
		From:      query.From,
		To:        query.To,
		CheckIns:  checkIns,
		Feedback:  feedback,
		Teammates: teammates,
	})
	summary := aggregator.Summary(query, s.now())
	if err := s.cache.Set(ctx, key, summary, 0); err != nil {
		s.logger.Warn("stats cache write failed", zap.String("key", key), zap.Error(err))
	}
	return &summary, false, nil
}

// SystemMetrics returns the instrumentation snapshot.
func (s *StatsService) SystemMetrics() models.SystemMetrics {
	return s.metrics.Snapshot()
}

func (s *StatsService) normalize(query models.StatsQuery) (models.StatsQuery, error) {
	fields := map[string]string{}
	if query.Kind == "" {
		query.Kind = models.CheckInKindAssignment
	}
	if !query.Kind.Valid() {
		fields["kind"] = "must be one of position, assignment, aspiration"
	}
	query.OrganizationID = strings.TrimSpace(query.OrganizationID)
	if query.OrganizationID == "" {
		fields["organization_id"] = "is required"
	}
	if query.To.IsZero() {
		query.To = truncateToDay(s.now()).AddDate(0, 0, 1)
	}
	if query.From.IsZero() {
		query.From = query.To.Add(-defaultStatsWindow)
	}
	query.From, query.To = query.From.UTC(), query.To.UTC()
	switch {
	case !query.From.Before(query.To):
		fields["from"] = "must be before to"
	case query.To.Sub(query.From) > maxStatsWindow:
		fields["to"] = fmt.Sprintf("range must not exceed %d days", int(maxStatsWindow.Hours()/24))
	}
	if len(fields) > 0 {
		return query, appErrors.WithFields(appErrors.ErrValidation, "invalid stats query", fields)
	}
	return query, nil
}
