package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/maap-api/internal/models"
)

// EmploymentRepository reads employment tenures, milestones and aspirations for a teammate.
type EmploymentRepository struct {
	db sqlx.ExtContext
}

// NewEmploymentRepository constructs the repository over a database handle or transaction.
func NewEmploymentRepository(db sqlx.ExtContext) *EmploymentRepository {
	return &EmploymentRepository{db: db}
}

// ActiveTenure returns the teammate's open employment tenure or sql.ErrNoRows.
func (r *EmploymentRepository) ActiveTenure(ctx context.Context, teammateID string) (*models.EmploymentTenure, error) {
	const query = `SELECT id, teammate_id, organization_id, position_id, manager_id, started_at, ended_at
	FROM employment_tenures WHERE teammate_id = $1 AND ended_at IS NULL
	ORDER BY started_at DESC LIMIT 1`
	var tenure models.EmploymentTenure
	if err := sqlx.GetContext(ctx, r.db, &tenure, query, teammateID); err != nil {
		return nil, err
	}
	return &tenure, nil
}

// ActiveTeammateIDs lists teammates employed by the organization at the given instant.
func (r *EmploymentRepository) ActiveTeammateIDs(ctx context.Context, organizationID string, at time.Time) ([]string, error) {
	const query = `SELECT DISTINCT teammate_id FROM employment_tenures
	WHERE organization_id = $1 AND started_at <= $2 AND (ended_at IS NULL OR ended_at > $2)
	ORDER BY teammate_id`
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, query, organizationID, at); err != nil {
		return nil, fmt.Errorf("list active teammates: %w", err)
	}
	return ids, nil
}

// Milestones lists the teammate's attained milestones.
func (r *EmploymentRepository) Milestones(ctx context.Context, teammateID string) ([]models.TeammateMilestone, error) {
	const query = `SELECT id, teammate_id, ability_id, milestone_level, attained_at, certified_by
	FROM teammate_milestones WHERE teammate_id = $1 ORDER BY ability_id, milestone_level`
	var milestones []models.TeammateMilestone
	if err := sqlx.SelectContext(ctx, r.db, &milestones, query, teammateID); err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	return milestones, nil
}

// AwardMilestone inserts a milestone unless the teammate already holds it. It reports whether a row was written.
func (r *EmploymentRepository) AwardMilestone(ctx context.Context, milestone *models.TeammateMilestone) (bool, error) {
	if milestone.ID == "" {
		milestone.ID = uuid.NewString()
	}
	const query = `INSERT INTO teammate_milestones (id, teammate_id, ability_id, milestone_level, attained_at, certified_by)
	VALUES (:id, :teammate_id, :ability_id, :milestone_level, :attained_at, :certified_by)
	ON CONFLICT (teammate_id, ability_id, milestone_level) DO NOTHING`
	result, err := sqlx.NamedExecContext(ctx, r.db, query, milestone)
	if err != nil {
		return false, fmt.Errorf("award milestone: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("award milestone rows: %w", err)
	}
	return rows > 0, nil
}

// AbilityExists reports whether an ability id is known.
func (r *EmploymentRepository) AbilityExists(ctx context.Context, abilityID string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM abilities WHERE id = $1)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.db, &exists, query, abilityID); err != nil {
		return false, fmt.Errorf("check ability: %w", err)
	}
	return exists, nil
}

// Aspirations lists the organization's aspirations.
func (r *EmploymentRepository) Aspirations(ctx context.Context, organizationID string) ([]models.Aspiration, error) {
	const query = `SELECT id, organization_id, name FROM aspirations WHERE organization_id = $1 ORDER BY name`
	var aspirations []models.Aspiration
	if err := sqlx.SelectContext(ctx, r.db, &aspirations, query, organizationID); err != nil {
		return nil, fmt.Errorf("list aspirations: %w", err)
	}
	return aspirations, nil
}
