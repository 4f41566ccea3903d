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

const snapshotColumns = `id, teammate_id, created_by, organization_id, change_type, reason,
       captured_state, proposed_changes, request_info, status, failure_reason,
       executed_at, employee_acknowledged_at, created_at`

// SnapshotRepository persists MAAP change snapshots.
type SnapshotRepository struct {
	db sqlx.ExtContext
}

// NewSnapshotRepository constructs the repository over a database handle or transaction.
func NewSnapshotRepository(db sqlx.ExtContext) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create inserts a snapshot in a single statement.
func (r *SnapshotRepository) Create(ctx context.Context, snapshot *models.ChangeSnapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	if snapshot.Status == "" {
		snapshot.Status = models.SnapshotStatusPending
	}
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO change_snapshots
	(id, teammate_id, created_by, organization_id, change_type, reason, captured_state, proposed_changes, request_info, status, created_at)
	VALUES (:id, :teammate_id, :created_by, :organization_id, :change_type, :reason, :captured_state, :proposed_changes, :request_info, :status, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, snapshot); err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

// GetByID fetches a snapshot by identifier.
func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*models.ChangeSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM change_snapshots WHERE id = $1`
	var snapshot models.ChangeSnapshot
	if err := sqlx.GetContext(ctx, r.db, &snapshot, query, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// GetForUpdate locks and returns a snapshot. Only meaningful inside a transaction.
func (r *SnapshotRepository) GetForUpdate(ctx context.Context, id string) (*models.ChangeSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM change_snapshots WHERE id = $1 FOR UPDATE`
	var snapshot models.ChangeSnapshot
	if err := sqlx.GetContext(ctx, r.db, &snapshot, query, id); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

// List returns snapshots matching the filter, newest first.
func (r *SnapshotRepository) List(ctx context.Context, filter models.SnapshotFilter) ([]models.ChangeSnapshot, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + snapshotColumns + ` FROM change_snapshots`)

	conditions := make([]string, 0, 3)
	if filter.TeammateID != "" {
		args = append(args, filter.TeammateID)
		conditions = append(conditions, fmt.Sprintf("teammate_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ChangeType != "" {
		args = append(args, filter.ChangeType)
		conditions = append(conditions, fmt.Sprintf("change_type = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var snapshots []models.ChangeSnapshot
	if err := sqlx.SelectContext(ctx, r.db, &snapshots, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// MarkExecuted moves a pending snapshot to executed. It returns sql.ErrNoRows if it was not pending.
func (r *SnapshotRepository) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE change_snapshots SET status = $2, executed_at = $3 WHERE id = $1 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, id, models.SnapshotStatusExecuted, at, models.SnapshotStatusPending)
	if err != nil {
		return fmt.Errorf("mark snapshot executed: %w", err)
	}
	return expectAffected(result, "mark snapshot executed")
}

// MarkFailed moves a pending snapshot to failed. It returns sql.ErrNoRows if it was not pending.
func (r *SnapshotRepository) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	const query = `UPDATE change_snapshots SET status = $2, failure_reason = $3, executed_at = $4 WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, models.SnapshotStatusFailed, reason, at, models.SnapshotStatusPending)
	if err != nil {
		return fmt.Errorf("mark snapshot failed: %w", err)
	}
	return expectAffected(result, "mark snapshot failed")
}

// Acknowledge records the subject's acknowledgement once. It returns sql.ErrNoRows if already set.
func (r *SnapshotRepository) Acknowledge(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE change_snapshots SET employee_acknowledged_at = $2 WHERE id = $1 AND employee_acknowledged_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("acknowledge snapshot: %w", err)
	}
	return expectAffected(result, "acknowledge snapshot")
}
