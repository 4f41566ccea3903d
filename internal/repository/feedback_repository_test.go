package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/maap-api/internal/models"
)

func TestFeedbackRepositoryListBetween(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewFeedbackRepository(db)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(regexp.QuoteMeta("FROM feedback")).
		WithArgs("org-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "teammate_id", "giver_id", "rating", "conflict_style", "submitted_at"}).
			AddRow("fb-1", "org-1", "tm-1", "tm-2", 2, "collaborative", from.Add(time.Hour)))

	feedback, err := repo.ListBetween(context.Background(), models.FeedbackFilter{OrganizationID: "org-1", From: from, To: to})
	require.NoError(t, err)
	require.Len(t, feedback, 1)
	assert.Equal(t, "tm-2", feedback[0].GiverID)
	assert.Equal(t, 2, feedback[0].Rating)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryFillsDefaults(t *testing.T) {
	db, mock := newRepoMock(t)
	repo := NewAuditRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	entry := &models.AuditLog{Action: models.AuditActionSnapshotView, Resource: "change_snapshot", IPAddress: "10.0.0.1"}
	require.NoError(t, repo.CreateAuditLog(context.Background(), entry))
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
