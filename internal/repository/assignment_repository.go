package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/maap-api/internal/models"
)

const tenureColumns = `id, teammate_id, assignment_id, anticipated_energy_percentage, started_at, ended_at`

// AssignmentRepository manages assignments and the teammate tenures on them.
type AssignmentRepository struct {
	db sqlx.ExtContext
}

// NewAssignmentRepository constructs the repository over a database handle or transaction.
func NewAssignmentRepository(db sqlx.ExtContext) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// GetByID fetches an assignment, returning sql.ErrNoRows when missing.
func (r *AssignmentRepository) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	const query = `SELECT id, organization_id, title, created_at FROM assignments WHERE id = $1`
	var assignment models.Assignment
	if err := sqlx.GetContext(ctx, r.db, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// ListByIDs returns the assignments that exist among ids keyed by id.
func (r *AssignmentRepository) ListByIDs(ctx context.Context, ids []string) (map[string]models.Assignment, error) {
	result := make(map[string]models.Assignment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, organization_id, title, created_at FROM assignments WHERE id IN (%s)`, strings.Join(placeholders, ","))
	var assignments []models.Assignment
	if err := sqlx.SelectContext(ctx, r.db, &assignments, query, args...); err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	for _, a := range assignments {
		result[a.ID] = a
	}
	return result, nil
}

// LatestTenures returns the most recent tenure per assignment for a teammate.
func (r *AssignmentRepository) LatestTenures(ctx context.Context, teammateID string) ([]models.AssignmentTenure, error) {
	query := `SELECT DISTINCT ON (assignment_id) ` + tenureColumns + `
	FROM assignment_tenures
	WHERE teammate_id = $1
	ORDER BY assignment_id, started_at DESC, ended_at DESC NULLS FIRST`
	var tenures []models.AssignmentTenure
	if err := sqlx.SelectContext(ctx, r.db, &tenures, query, teammateID); err != nil {
		return nil, fmt.Errorf("list latest tenures: %w", err)
	}
	return tenures, nil
}

// LatestTenureForUpdate locks and returns the most recent tenure on an assignment.
// It returns sql.ErrNoRows when the teammate was never tenured on it.
func (r *AssignmentRepository) LatestTenureForUpdate(ctx context.Context, teammateID, assignmentID string) (*models.AssignmentTenure, error) {
	query := `SELECT ` + tenureColumns + ` FROM assignment_tenures
	WHERE teammate_id = $1 AND assignment_id = $2
	ORDER BY started_at DESC, ended_at DESC NULLS FIRST
	LIMIT 1 FOR UPDATE`
	var tenure models.AssignmentTenure
	if err := sqlx.GetContext(ctx, r.db, &tenure, query, teammateID, assignmentID); err != nil {
		return nil, err
	}
	return &tenure, nil
}

// CreateTenure inserts a new tenure row.
func (r *AssignmentRepository) CreateTenure(ctx context.Context, tenure *models.AssignmentTenure) error {
	if tenure.ID == "" {
		tenure.ID = uuid.NewString()
	}
	const query = `INSERT INTO assignment_tenures (id, teammate_id, assignment_id, anticipated_energy_percentage, started_at, ended_at)
	VALUES (:id, :teammate_id, :assignment_id, :anticipated_energy_percentage, :started_at, :ended_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, tenure); err != nil {
		return fmt.Errorf("create tenure: %w", err)
	}
	return nil
}

// UpdateTenureEnergy changes the anticipated energy of an active tenure.
func (r *AssignmentRepository) UpdateTenureEnergy(ctx context.Context, id string, energy int) error {
	const query = `UPDATE assignment_tenures SET anticipated_energy_percentage = $2 WHERE id = $1 AND ended_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, energy)
	if err != nil {
		return fmt.Errorf("update tenure energy: %w", err)
	}
	return expectAffected(result, "update tenure energy")
}

// EndTenure closes an active tenure.
func (r *AssignmentRepository) EndTenure(ctx context.Context, id string, endedAt time.Time) error {
	const query = `UPDATE assignment_tenures SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, endedAt)
	if err != nil {
		return fmt.Errorf("end tenure: %w", err)
	}
	return expectAffected(result, "end tenure")
}
