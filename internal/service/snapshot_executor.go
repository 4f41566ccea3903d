package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/internal/models"
	"github.com/noah-isme/maap-api/internal/repository"
	"github.com/noah-isme/maap-api/pkg/database"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

// Failure codes reported per item in ExecutionResult.Failures.
const (
	FailureUnresolvableReference = "UNRESOLVABLE_REFERENCE"
	FailureCheckInFinalized      = "CHECK_IN_FINALIZED"
	FailureMissingRating         = "MISSING_RATING"
)

type executionSnapshotStore interface {
	GetForUpdate(ctx context.Context, id string) (*models.ChangeSnapshot, error)
	MarkExecuted(ctx context.Context, id string, at time.Time) error
}

type executionAssignmentStore interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	LatestTenureForUpdate(ctx context.Context, teammateID, assignmentID string) (*models.AssignmentTenure, error)
	CreateTenure(ctx context.Context, tenure *models.AssignmentTenure) error
	UpdateTenureEnergy(ctx context.Context, id string, energy int) error
	EndTenure(ctx context.Context, id string, endedAt time.Time) error
}

type executionCheckInStore interface {
	GetByID(ctx context.Context, id string) (*models.CheckIn, error)
	UpdateSide(ctx context.Context, id string, side models.Side, assessment models.SideAssessment, updatedAt time.Time) error
}

type executionMilestoneStore interface {
	AbilityExists(ctx context.Context, abilityID string) (bool, error)
	AwardMilestone(ctx context.Context, milestone *models.TeammateMilestone) (bool, error)
}

// ExecutionStores are the stores bound to one execution transaction.
type ExecutionStores struct {
	Snapshots   executionSnapshotStore
	Assignments executionAssignmentStore
	CheckIns    executionCheckInStore
	Milestones  executionMilestoneStore
}

// TxRunner runs fn inside a transaction, committing only when fn returns nil.
type TxRunner interface {
	InTx(ctx context.Context, fn func(stores ExecutionStores) error) error
}

// SQLTxRunner binds repositories to a sqlx transaction.
type SQLTxRunner struct {
	db *sqlx.DB
}

// NewSQLTxRunner constructs the runner.
func NewSQLTxRunner(db *sqlx.DB) *SQLTxRunner {
	return &SQLTxRunner{db: db}
}

// InTx implements TxRunner.
func (r *SQLTxRunner) InTx(ctx context.Context, fn func(stores ExecutionStores) error) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		return fn(ExecutionStores{
			Snapshots:   repository.NewSnapshotRepository(tx),
			Assignments: repository.NewAssignmentRepository(tx),
			CheckIns:    repository.NewCheckInRepository(tx),
			Milestones:  repository.NewEmploymentRepository(tx),
		})
	})
}

type snapshotFailureMarker interface {
	GetByID(ctx context.Context, id string) (*models.ChangeSnapshot, error)
	MarkFailed(ctx context.Context, id, reason string, at time.Time) error
}

var (
	errSnapshotProcessed = errors.New("snapshot no longer pending")
	errItemsFailed       = errors.New("snapshot items failed")
)

// SnapshotExecutor applies a pending snapshot's proposed changes to live records.
// Execution is all-or-nothing: any item failure rolls back every live write.
type SnapshotExecutor struct {
	snapshots   snapshotFailureMarker
	tx          TxRunner
	audit       auditTrail
	metrics     *MetricsService
	invalidator StatsInvalidator
	logger      *zap.Logger
	now         func() time.Time
}

// SnapshotExecutorOption configures the executor.
type SnapshotExecutorOption func(*SnapshotExecutor)

// WithExecutorClock overrides the time source.
func WithExecutorClock(now func() time.Time) SnapshotExecutorOption {
	return func(e *SnapshotExecutor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithExecutorMetrics records execution outcomes.
func WithExecutorMetrics(metrics *MetricsService) SnapshotExecutorOption {
	return func(e *SnapshotExecutor) {
		e.metrics = metrics
	}
}

// WithExecutorStatsInvalidator invalidates cached stats after a successful execution.
func WithExecutorStatsInvalidator(invalidator StatsInvalidator) SnapshotExecutorOption {
	return func(e *SnapshotExecutor) {
		e.invalidator = invalidator
	}
}

// NewSnapshotExecutor constructs the executor.
func NewSnapshotExecutor(snapshots snapshotFailureMarker, tx TxRunner, audit auditLogger, logger *zap.Logger, opts ...SnapshotExecutorOption) *SnapshotExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	exec := &SnapshotExecutor{
		snapshots: snapshots,
		tx:        tx,
		audit:     auditTrail{store: audit, source: "snapshot-executor", logger: logger},
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(exec)
		}
	}
	return exec
}

// Execute applies the snapshot on behalf of actorID, who must be its creator.
// Item failures come back in the result with status failed and a nil error.
func (e *SnapshotExecutor) Execute(ctx context.Context, snapshotID, actorID string) (*models.ExecutionResult, error) {
	snapshot, err := e.snapshots.GetByID(ctx, snapshotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	if snapshot.CreatedBy != actorID {
		return nil, appErrors.ErrNotAuthorized
	}
	if snapshot.Status != models.SnapshotStatusPending {
		return nil, appErrors.ErrAlreadyProcessed
	}

	now := e.now()
	result := &models.ExecutionResult{SnapshotID: snapshotID, Applied: []models.AppliedChange{}}
	err = e.tx.InTx(ctx, func(stores ExecutionStores) error {
		locked, err := stores.Snapshots.GetForUpdate(ctx, snapshotID)
		if err != nil {
			return fmt.Errorf("lock snapshot: %w", err)
		}
		if locked.Status != models.SnapshotStatusPending {
			return errSnapshotProcessed
		}
		applied, failures, err := applyProposed(ctx, stores, locked, actorID, now)
		if err != nil {
			return err
		}
		if len(failures) > 0 {
			result.Failures = failures
			return errItemsFailed
		}
		if err := stores.Snapshots.MarkExecuted(ctx, snapshotID, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return errSnapshotProcessed
			}
			return fmt.Errorf("mark executed: %w", err)
		}
		result.Applied = applied
		return nil
	})

	switch {
	case err == nil:
		result.Status = models.SnapshotStatusExecuted
		e.audit.record(ctx, actorID, models.AuditActionSnapshotExecute, "change_snapshot", snapshotID, snapshot.CapturedState, result)
		e.metrics.RecordSnapshotExecution(models.SnapshotStatusExecuted)
		if e.invalidator != nil {
			e.invalidator.InvalidateStats(ctx, "snapshot_executed")
		}
		e.logger.Info("snapshot executed",
			zap.String("snapshot_id", snapshotID),
			zap.String("actor", actorID),
			zap.Int("applied", len(result.Applied)),
		)
		return result, nil
	case errors.Is(err, errSnapshotProcessed):
		return nil, appErrors.ErrAlreadyProcessed
	case errors.Is(err, errItemsFailed):
		result.Applied = []models.AppliedChange{}
		result.Status = models.SnapshotStatusFailed
		e.markFailed(ctx, snapshotID, actorID, summarizeFailures(result.Failures), now, result)
		return result, nil
	default:
		e.markFailed(ctx, snapshotID, actorID, "transaction failed: "+err.Error(), now, nil)
		return nil, appErrors.Wrap(err, appErrors.ErrTransactionFailed.Code, appErrors.ErrTransactionFailed.Status, appErrors.ErrTransactionFailed.Message)
	}
}

func (e *SnapshotExecutor) markFailed(ctx context.Context, snapshotID, actorID, reason string, now time.Time, result *models.ExecutionResult) {
	// the request may already be cancelled; the failed status must still land
	if err := e.snapshots.MarkFailed(context.WithoutCancel(ctx), snapshotID, reason, now); err != nil {
		e.logger.Error("failed to mark snapshot failed", zap.String("snapshot_id", snapshotID), zap.Error(err))
	}
	e.audit.record(ctx, actorID, models.AuditActionSnapshotFail, "change_snapshot", snapshotID, nil, result)
	e.metrics.RecordSnapshotExecution(models.SnapshotStatusFailed)
	e.logger.Warn("snapshot execution failed",
		zap.String("snapshot_id", snapshotID),
		zap.String("actor", actorID),
		zap.String("reason", reason),
	)
}

// applyProposed performs the live writes. Item failures are collected, errors abort.
func applyProposed(ctx context.Context, stores ExecutionStores, snapshot *models.ChangeSnapshot, actorID string, now time.Time) ([]models.AppliedChange, []models.ItemFailure, error) {
	applied := []models.AppliedChange{}
	var failures []models.ItemFailure
	teammateID := snapshot.TeammateID

	for _, entry := range snapshot.ProposedChanges.Assignments {
		if _, err := stores.Assignments.GetByID(ctx, entry.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				failures = append(failures, models.ItemFailure{
					AssignmentID: entry.ID,
					Code:         FailureUnresolvableReference,
					Message:      "assignment no longer exists",
				})
				continue
			}
			return nil, nil, fmt.Errorf("resolve assignment %s: %w", entry.ID, err)
		}
		captured, _ := snapshot.CapturedState.Assignment(entry.ID)
		if !assignmentChanged(captured, &entry) {
			continue
		}
		if entry.Tenure != nil && entry.Tenure.Action != models.TenureActionNone {
			change, err := applyTenure(ctx, stores.Assignments, teammateID, entry.ID, entry.Tenure, now)
			if err != nil {
				return nil, nil, err
			}
			if change != "" {
				applied = append(applied, models.AppliedChange{AssignmentID: entry.ID, Change: change})
			}
		}
		if entry.CheckIn != nil {
			var before *models.CheckInState
			if captured != nil {
				before = captured.CheckIn
			}
			changes, failure, err := applyCheckIn(ctx, stores.CheckIns, before, entry.CheckIn, actorID, now)
			if err != nil {
				return nil, nil, err
			}
			if failure != nil {
				failure.AssignmentID = entry.ID
				failures = append(failures, *failure)
				continue
			}
			for _, change := range changes {
				applied = append(applied, models.AppliedChange{AssignmentID: entry.ID, Change: change})
			}
		}
	}

	for _, m := range snapshot.ProposedChanges.Milestones {
		if !m.Proposed {
			continue
		}
		exists, err := stores.Milestones.AbilityExists(ctx, m.AbilityID)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve ability %s: %w", m.AbilityID, err)
		}
		if !exists {
			failures = append(failures, models.ItemFailure{
				AbilityID: m.AbilityID,
				Code:      FailureUnresolvableReference,
				Message:   "ability no longer exists",
			})
			continue
		}
		inserted, err := stores.Milestones.AwardMilestone(ctx, &models.TeammateMilestone{
			TeammateID:     teammateID,
			AbilityID:      m.AbilityID,
			MilestoneLevel: m.MilestoneLevel,
			AttainedAt:     now,
			CertifiedBy:    actorID,
		})
		if err != nil {
			return nil, nil, err
		}
		if inserted {
			applied = append(applied, models.AppliedChange{AbilityID: m.AbilityID, Change: fmt.Sprintf("milestone_awarded:%d", m.MilestoneLevel)})
		}
	}
	return applied, failures, nil
}

func assignmentChanged(captured, proposed *models.AssignmentState) bool {
	if proposed.Tenure != nil && proposed.Tenure.Action != models.TenureActionNone {
		return true
	}
	if captured == nil || captured.CheckIn == nil || proposed.CheckIn == nil {
		return proposed.CheckIn != nil
	}
	return !sameSide(captured.CheckIn.Employee, proposed.CheckIn.Employee) ||
		!sameSide(captured.CheckIn.Manager, proposed.CheckIn.Manager)
}

// applyTenure converges the live tenure onto the proposed one.
func applyTenure(ctx context.Context, store executionAssignmentStore, teammateID, assignmentID string, proposed *models.TenureState, now time.Time) (string, error) {
	live, err := store.LatestTenureForUpdate(ctx, teammateID, assignmentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("lock tenure for %s: %w", assignmentID, err)
	}
	active := live != nil && live.Active()
	today := truncateToDay(now)

	switch proposed.Action {
	case models.TenureActionEnd:
		if !active {
			return "", nil
		}
		if err := store.EndTenure(ctx, live.ID, today); err != nil {
			return "", fmt.Errorf("end tenure %s: %w", live.ID, err)
		}
		return "tenure_ended", nil
	case models.TenureActionUpdate, models.TenureActionCreate:
		if active {
			if live.AnticipatedEnergyPercentage == proposed.AnticipatedEnergyPercentage {
				return "", nil
			}
			if err := store.UpdateTenureEnergy(ctx, live.ID, proposed.AnticipatedEnergyPercentage); err != nil {
				return "", fmt.Errorf("update tenure %s: %w", live.ID, err)
			}
			return "tenure_updated", nil
		}
		tenure := &models.AssignmentTenure{
			TeammateID:                  teammateID,
			AssignmentID:                assignmentID,
			AnticipatedEnergyPercentage: proposed.AnticipatedEnergyPercentage,
			StartedAt:                   today,
		}
		if err := store.CreateTenure(ctx, tenure); err != nil {
			return "", fmt.Errorf("create tenure for %s: %w", assignmentID, err)
		}
		return "tenure_created", nil
	}
	return "", nil
}

// applyCheckIn writes each side the snapshot changed whose proposed state differs from the live row.
func applyCheckIn(ctx context.Context, store executionCheckInStore, captured, proposed *models.CheckInState, actorID string, now time.Time) ([]string, *models.ItemFailure, error) {
	if captured != nil && sameSide(captured.Employee, proposed.Employee) && sameSide(captured.Manager, proposed.Manager) {
		return nil, nil, nil
	}
	live, err := store.GetByID(ctx, proposed.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &models.ItemFailure{Code: FailureUnresolvableReference, Message: "check-in no longer exists"}, nil
		}
		return nil, nil, fmt.Errorf("load check-in %s: %w", proposed.ID, err)
	}

	var changes []string
	for _, side := range []models.Side{models.SideEmployee, models.SideManager} {
		want := proposed.Employee
		if side == models.SideManager {
			want = proposed.Manager
		}
		if captured != nil {
			before := captured.Employee
			if side == models.SideManager {
				before = captured.Manager
			}
			if sameSide(before, want) {
				continue
			}
		}
		current, _ := live.SideOf(side)
		if sameSide(sideState(current), want) {
			continue
		}
		if live.Finalized() {
			return nil, &models.ItemFailure{Code: FailureCheckInFinalized, Message: "check-in was finalized after the snapshot was taken"}, nil
		}
		rating, notes := want.Rating, want.Notes
		if err := live.ApplySide(side, models.SideDraft{Rating: &rating, Notes: &notes}, actorID, want.Completed, now); err != nil {
			if errors.Is(err, models.ErrSideRatingRequired) {
				return nil, &models.ItemFailure{Code: FailureMissingRating, Message: "a completed " + string(side) + " side needs a rating"}, nil
			}
			return nil, nil, fmt.Errorf("apply %s side to %s: %w", side, live.ID, err)
		}
		if want.Completed && current.Completion != nil {
			keepCompletion(live, side, current.Completion)
		}
		assessment, _ := live.SideOf(side)
		if err := store.UpdateSide(ctx, live.ID, side, assessment, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, &models.ItemFailure{Code: FailureCheckInFinalized, Message: "check-in was finalized during execution"}, nil
			}
			return nil, nil, fmt.Errorf("update %s side of %s: %w", side, live.ID, err)
		}
		changes = append(changes, "check_in_"+string(side)+"_updated")
	}
	return changes, nil, nil
}

// keepCompletion preserves who completed a side when it stays completed.
func keepCompletion(ci *models.CheckIn, side models.Side, completion *models.Completion) {
	switch side {
	case models.SideEmployee:
		ci.Employee.Completion = completion
	case models.SideManager:
		ci.Manager.Completion = completion
	}
}

func sameSide(a, b models.SideState) bool {
	return a.Rating == b.Rating && a.Notes == b.Notes && a.Completed == b.Completed
}

func summarizeFailures(failures []models.ItemFailure) string {
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		ref := f.AssignmentID
		if ref == "" {
			ref = f.AbilityID
		}
		parts = append(parts, fmt.Sprintf("%s: %s (%s)", ref, f.Message, f.Code))
	}
	return strings.Join(parts, "; ")
}
