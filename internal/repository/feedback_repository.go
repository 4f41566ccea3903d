package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/maap-api/internal/models"
)

// FeedbackRepository reads huddle feedback for stats.
type FeedbackRepository struct {
	db sqlx.ExtContext
}

// NewFeedbackRepository constructs the repository.
func NewFeedbackRepository(db sqlx.ExtContext) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// ListBetween returns feedback submitted in [From, To) for an organization.
func (r *FeedbackRepository) ListBetween(ctx context.Context, filter models.FeedbackFilter) ([]models.Feedback, error) {
	const query = `SELECT id, organization_id, teammate_id, giver_id, rating, conflict_style, submitted_at
	FROM feedback
	WHERE organization_id = $1 AND submitted_at >= $2 AND submitted_at < $3
	ORDER BY submitted_at`
	var feedback []models.Feedback
	if err := sqlx.SelectContext(ctx, r.db, &feedback, query, filter.OrganizationID, filter.From, filter.To); err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return feedback, nil
}
