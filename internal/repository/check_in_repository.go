package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/maap-api/internal/models"
)

const checkInColumns = `id, kind, teammate_id, item_id, started_on,
       employee_rating, employee_notes, employee_completed_at, employee_completed_by,
       manager_rating, manager_notes, manager_completed_at, manager_completed_by,
       official_rating, shared_notes, official_completed_at, official_completed_by,
       created_at, updated_at`

// checkInRecord is the flat row shape of the check_ins table.
type checkInRecord struct {
	ID                  string     `db:"id"`
	Kind                string     `db:"kind"`
	TeammateID          string     `db:"teammate_id"`
	ItemID              string     `db:"item_id"`
	StartedOn           time.Time  `db:"started_on"`
	EmployeeRating      *string    `db:"employee_rating"`
	EmployeeNotes       *string    `db:"employee_notes"`
	EmployeeCompletedAt *time.Time `db:"employee_completed_at"`
	EmployeeCompletedBy *string    `db:"employee_completed_by"`
	ManagerRating       *string    `db:"manager_rating"`
	ManagerNotes        *string    `db:"manager_notes"`
	ManagerCompletedAt  *time.Time `db:"manager_completed_at"`
	ManagerCompletedBy  *string    `db:"manager_completed_by"`
	OfficialRating      *string    `db:"official_rating"`
	SharedNotes         *string    `db:"shared_notes"`
	OfficialCompletedAt *time.Time `db:"official_completed_at"`
	OfficialCompletedBy *string    `db:"official_completed_by"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

func (r checkInRecord) toModel() *models.CheckIn {
	ci := &models.CheckIn{
		ID:         r.ID,
		Kind:       models.CheckInKind(r.Kind),
		TeammateID: r.TeammateID,
		ItemID:     r.ItemID,
		StartedOn:  r.StartedOn,
		Employee:   sideFromColumns(r.EmployeeRating, r.EmployeeNotes, r.EmployeeCompletedAt, r.EmployeeCompletedBy),
		Manager:    sideFromColumns(r.ManagerRating, r.ManagerNotes, r.ManagerCompletedAt, r.ManagerCompletedBy),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.OfficialCompletedAt != nil {
		ci.Official = &models.OfficialAssessment{
			Rating:      deref(r.OfficialRating),
			SharedNotes: deref(r.SharedNotes),
			CompletedAt: *r.OfficialCompletedAt,
			CompletedBy: deref(r.OfficialCompletedBy),
		}
	}
	return ci
}

func sideFromColumns(rating, notes *string, completedAt *time.Time, completedBy *string) models.SideAssessment {
	side := models.SideAssessment{Rating: deref(rating), Notes: deref(notes)}
	if completedAt != nil && completedBy != nil {
		side.Completion = &models.Completion{At: *completedAt, By: *completedBy}
	}
	return side
}

// CheckInRepository persists check-ins of every kind.
type CheckInRepository struct {
	db sqlx.ExtContext
}

// NewCheckInRepository constructs the repository over a database handle or transaction.
func NewCheckInRepository(db sqlx.ExtContext) *CheckInRepository {
	return &CheckInRepository{db: db}
}

// OpenOrCreate returns the open check-in for the pair, inserting one when none exists.
// The partial unique index on open rows makes concurrent callers converge on one record.
// If the conflicting row is finalized before it can be read, the insert is retried once.
func (r *CheckInRepository) OpenOrCreate(ctx context.Context, kind models.CheckInKind, teammateID, itemID string, startedOn time.Time) (*models.CheckIn, error) {
	const insert = `INSERT INTO check_ins (id, kind, teammate_id, item_id, started_on, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $6)
	ON CONFLICT (kind, teammate_id, item_id) WHERE official_completed_at IS NULL DO NOTHING`
	for attempt := 0; ; attempt++ {
		now := time.Now().UTC()
		if _, err := r.db.ExecContext(ctx, insert, uuid.NewString(), kind, teammateID, itemID, startedOn, now); err != nil {
			return nil, fmt.Errorf("insert open check-in: %w", err)
		}
		ci, err := r.FindOpen(ctx, kind, teammateID, itemID)
		if errors.Is(err, sql.ErrNoRows) && attempt == 0 {
			continue
		}
		return ci, err
	}
}

// FindOpen returns the open check-in for the pair or sql.ErrNoRows.
func (r *CheckInRepository) FindOpen(ctx context.Context, kind models.CheckInKind, teammateID, itemID string) (*models.CheckIn, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_ins
	WHERE kind = $1 AND teammate_id = $2 AND item_id = $3 AND official_completed_at IS NULL`
	var rec checkInRecord
	if err := sqlx.GetContext(ctx, r.db, &rec, query, kind, teammateID, itemID); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// GetByID fetches a check-in by identifier.
func (r *CheckInRepository) GetByID(ctx context.Context, id string) (*models.CheckIn, error) {
	query := `SELECT ` + checkInColumns + ` FROM check_ins WHERE id = $1`
	var rec checkInRecord
	if err := sqlx.GetContext(ctx, r.db, &rec, query, id); err != nil {
		return nil, err
	}
	return rec.toModel(), nil
}

// UpdateSide writes one side's columns while the check-in is still open.
// It returns sql.ErrNoRows when the row is missing or already finalized.
func (r *CheckInRepository) UpdateSide(ctx context.Context, id string, side models.Side, assessment models.SideAssessment, updatedAt time.Time) error {
	if !side.Valid() {
		return fmt.Errorf("update check-in side: %w", models.ErrUnknownSide)
	}
	var completedAt *time.Time
	var completedBy *string
	if assessment.Completion != nil {
		at := assessment.Completion.At
		by := assessment.Completion.By
		completedAt, completedBy = &at, &by
	}
	prefix := string(side)
	query := fmt.Sprintf(`UPDATE check_ins SET %[1]s_rating = $2, %[1]s_notes = $3, %[1]s_completed_at = $4, %[1]s_completed_by = $5, updated_at = $6
	WHERE id = $1 AND official_completed_at IS NULL`, prefix)
	result, err := r.db.ExecContext(ctx, query, id, nullable(assessment.Rating), nullable(assessment.Notes), completedAt, completedBy, updatedAt)
	if err != nil {
		return fmt.Errorf("update check-in %s side: %w", prefix, err)
	}
	return expectAffected(result, "update check-in side")
}

// Finalize records the official assessment if the row is still open and both sides are complete.
// It returns sql.ErrNoRows when the compare-and-set loses.
func (r *CheckInRepository) Finalize(ctx context.Context, id string, official models.OfficialAssessment) error {
	const query = `UPDATE check_ins
	SET official_rating = $2, shared_notes = $3, official_completed_at = $4, official_completed_by = $5, updated_at = $4
	WHERE id = $1
	  AND official_completed_at IS NULL
	  AND employee_completed_at IS NOT NULL
	  AND manager_completed_at IS NOT NULL`
	result, err := r.db.ExecContext(ctx, query, id, official.Rating, nullable(official.SharedNotes), official.CompletedAt, official.CompletedBy)
	if err != nil {
		return fmt.Errorf("finalize check-in: %w", err)
	}
	return expectAffected(result, "finalize check-in")
}

// History lists finalized check-ins for a teammate, newest first.
func (r *CheckInRepository) History(ctx context.Context, filter models.CheckInHistoryFilter) ([]models.CheckIn, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT ` + checkInColumns + ` FROM check_ins WHERE official_completed_at IS NOT NULL`)
	if filter.Kind != "" {
		args = append(args, filter.Kind)
		builder.WriteString(fmt.Sprintf(" AND kind = $%d", len(args)))
	}
	if filter.TeammateID != "" {
		args = append(args, filter.TeammateID)
		builder.WriteString(fmt.Sprintf(" AND teammate_id = $%d", len(args)))
	}
	if filter.ItemID != "" {
		args = append(args, filter.ItemID)
		builder.WriteString(fmt.Sprintf(" AND item_id = $%d", len(args)))
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	builder.WriteString(fmt.Sprintf(" ORDER BY official_completed_at DESC LIMIT %d", limit))

	var records []checkInRecord
	if err := sqlx.SelectContext(ctx, r.db, &records, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list check-in history: %w", err)
	}
	return toCheckIns(records), nil
}

// ListFinalized returns check-ins finalized within the range for an organization's teammates.
func (r *CheckInRepository) ListFinalized(ctx context.Context, filter models.FinalizedCheckInFilter) ([]models.CheckIn, error) {
	query := `SELECT ` + prefixColumns("ci", checkInColumns) + ` FROM check_ins ci
	JOIN employment_tenures et ON et.teammate_id = ci.teammate_id AND et.ended_at IS NULL
	WHERE ci.kind = $1 AND et.organization_id = $2
	  AND ci.official_completed_at >= $3 AND ci.official_completed_at < $4
	ORDER BY ci.official_completed_at`
	var records []checkInRecord
	if err := sqlx.SelectContext(ctx, r.db, &records, query, filter.Kind, filter.OrganizationID, filter.From, filter.To); err != nil {
		return nil, fmt.Errorf("list finalized check-ins: %w", err)
	}
	return toCheckIns(records), nil
}

func toCheckIns(records []checkInRecord) []models.CheckIn {
	result := make([]models.CheckIn, 0, len(records))
	for _, rec := range records {
		result = append(result, *rec.toModel())
	}
	return result
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}

func expectAffected(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
