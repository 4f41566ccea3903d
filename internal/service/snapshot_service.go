package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
	"github.com/noah-isme/maap-api/pkg/requestinfo"
)

type snapshotStore interface {
	Create(ctx context.Context, snapshot *models.ChangeSnapshot) error
	GetByID(ctx context.Context, id string) (*models.ChangeSnapshot, error)
	List(ctx context.Context, filter models.SnapshotFilter) ([]models.ChangeSnapshot, error)
	Acknowledge(ctx context.Context, id string, at time.Time) error
}

type employmentReader interface {
	ActiveTenure(ctx context.Context, teammateID string) (*models.EmploymentTenure, error)
	Milestones(ctx context.Context, teammateID string) ([]models.TeammateMilestone, error)
	AbilityExists(ctx context.Context, abilityID string) (bool, error)
	Aspirations(ctx context.Context, organizationID string) ([]models.Aspiration, error)
}

type assignmentReader interface {
	ListByIDs(ctx context.Context, ids []string) (map[string]models.Assignment, error)
	LatestTenures(ctx context.Context, teammateID string) ([]models.AssignmentTenure, error)
}

type checkInOpener interface {
	OpenOrCreate(ctx context.Context, kind models.CheckInKind, teammateID, itemID string, startedOn time.Time) (*models.CheckIn, error)
}

// BuildSnapshotInput describes a snapshot request. Edits are already parsed into typed values.
type BuildSnapshotInput struct {
	TeammateID     string            `validate:"required"`
	CreatedBy      string            `validate:"required"`
	OrganizationID string            `validate:"required"`
	ChangeType     models.ChangeType `validate:"required,change_type"`
	Reason         string            `validate:"required,max=2000"`
	Edits          []models.Edit
}

// SnapshotService captures current employment state and proposed edits into pending snapshots.
type SnapshotService struct {
	snapshots   snapshotStore
	employment  employmentReader
	assignments assignmentReader
	checkIns    checkInOpener
	audit       auditTrail
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// SnapshotServiceOption configures the service.
type SnapshotServiceOption func(*SnapshotService)

// WithSnapshotClock overrides the time source.
func WithSnapshotClock(now func() time.Time) SnapshotServiceOption {
	return func(s *SnapshotService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSnapshotService constructs the service.
func NewSnapshotService(
	snapshots snapshotStore,
	employment employmentReader,
	assignments assignmentReader,
	checkIns checkInOpener,
	audit auditLogger,
	validate *validator.Validate,
	logger *zap.Logger,
	opts ...SnapshotServiceOption,
) *SnapshotService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &SnapshotService{
		snapshots:   snapshots,
		employment:  employment,
		assignments: assignments,
		checkIns:    checkIns,
		audit:       auditTrail{store: audit, source: "snapshot-service", logger: logger},
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
	_ = svc.validator.RegisterValidation("change_type", func(fl validator.FieldLevel) bool {
		return models.ChangeType(fl.Field().String()).Valid()
	})
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// BuildForSubjectWithChanges validates the request, captures the teammate's current state,
// applies the edits to a deep copy and persists both as one pending snapshot.
func (s *SnapshotService) BuildForSubjectWithChanges(ctx context.Context, input BuildSnapshotInput) (*models.ChangeSnapshot, error) {
	if err := s.validate(input); err != nil {
		return nil, err
	}
	if err := s.resolveAbilities(ctx, input.Edits); err != nil {
		return nil, err
	}

	now := s.now()
	today := truncateToDay(now)
	captured, err := s.capture(ctx, input, today)
	if err != nil {
		return nil, err
	}
	proposed, err := proposeChanges(captured, input.Edits, input.CreatedBy, now)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build proposed state")
	}

	snapshot := &models.ChangeSnapshot{
		TeammateID:      input.TeammateID,
		CreatedBy:       input.CreatedBy,
		OrganizationID:  input.OrganizationID,
		ChangeType:      input.ChangeType,
		Reason:          strings.TrimSpace(input.Reason),
		CapturedState:   captured,
		ProposedChanges: proposed,
		RequestInfo:     s.requestInfo(ctx, now),
		Status:          models.SnapshotStatusPending,
		CreatedAt:       now,
	}
	if err := s.snapshots.Create(ctx, snapshot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create snapshot")
	}
	s.audit.record(ctx, input.CreatedBy, models.AuditActionSnapshotCreate, "change_snapshot", snapshot.ID, nil, snapshot.ProposedChanges)
	s.logger.Info("snapshot created",
		zap.String("snapshot_id", snapshot.ID),
		zap.String("teammate_id", snapshot.TeammateID),
		zap.String("change_type", string(snapshot.ChangeType)),
		zap.Int("edits", len(input.Edits)),
		zap.String("request_id", snapshot.RequestInfo.RequestID),
	)
	return snapshot, nil
}

// Get loads a snapshot by id.
func (s *SnapshotService) Get(ctx context.Context, id string) (*models.ChangeSnapshot, error) {
	snapshot, err := s.snapshots.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "snapshot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load snapshot")
	}
	return snapshot, nil
}

// ListForTeammate lists the teammate's snapshots, newest first.
func (s *SnapshotService) ListForTeammate(ctx context.Context, teammateID string, filter models.SnapshotFilter) ([]models.ChangeSnapshot, error) {
	if strings.TrimSpace(teammateID) == "" {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "teammate is required", map[string]string{"teammate_id": "is required"})
	}
	filter.TeammateID = teammateID
	snapshots, err := s.snapshots.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list snapshots")
	}
	return snapshots, nil
}

// Acknowledge records that the subject has seen the snapshot. It can happen once, in any status.
func (s *SnapshotService) Acknowledge(ctx context.Context, id, teammateID string) (*models.ChangeSnapshot, error) {
	snapshot, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snapshot.TeammateID != teammateID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the subject may acknowledge a snapshot")
	}
	if snapshot.EmployeeAcknowledgedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "snapshot already acknowledged")
	}
	now := s.now()
	if err := s.snapshots.Acknowledge(ctx, id, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "snapshot already acknowledged")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acknowledge snapshot")
	}
	snapshot.EmployeeAcknowledgedAt = &now
	s.audit.record(ctx, teammateID, models.AuditActionSnapshotAcknowledge, "change_snapshot", id, nil, nil)
	return snapshot, nil
}

func (s *SnapshotService) validate(input BuildSnapshotInput) error {
	if err := s.validator.Struct(input); err != nil {
		return validationError(err, "invalid snapshot request", "")
	}
	fields := map[string]string{}
	for i, edit := range input.Edits {
		prefix := fmt.Sprintf("edits[%d].", i)
		if edit == nil {
			fields[fmt.Sprintf("edits[%d]", i)] = "is empty"
			continue
		}
		if err := s.validator.Struct(edit); err != nil {
			var appErr *appErrors.Error
			if errors.As(validationError(err, "", prefix), &appErr) {
				for k, v := range appErr.Fields {
					fields[k] = v
				}
			}
			continue
		}
		if ci, ok := edit.(models.CheckInEdit); ok && ci.Rating != nil {
			if !models.ValidRating(models.CheckInKindAssignment, strings.TrimSpace(*ci.Rating)) {
				fields[prefix+"rating"] = "must be one of working_to_meet, meeting, exceeding"
			}
		}
	}
	if len(fields) > 0 {
		return appErrors.WithFields(appErrors.ErrValidation, "invalid snapshot edits", fields)
	}
	return nil
}

func (s *SnapshotService) resolveAbilities(ctx context.Context, edits []models.Edit) error {
	for _, edit := range edits {
		m, ok := edit.(models.MilestoneEdit)
		if !ok {
			continue
		}
		exists, err := s.employment.AbilityExists(ctx, m.AbilityID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve ability")
		}
		if !exists {
			return appErrors.WithFields(appErrors.ErrUnresolvableReference, "unknown ability", map[string]string{
				"milestone_" + m.AbilityID + "_level": "ability not found",
			})
		}
	}
	return nil
}

// capture reads the live state. Assignments with an active tenure are always included;
// edited assignments are included with their latest tenure, active or not.
func (s *SnapshotService) capture(ctx context.Context, input BuildSnapshotInput, today time.Time) (models.SnapshotState, error) {
	state := models.SnapshotState{
		Assignments: []models.AssignmentState{},
		Milestones:  []models.MilestoneState{},
		Aspirations: []models.AspirationState{},
	}

	tenure, err := s.employment.ActiveTenure(ctx, input.TeammateID)
	switch {
	case err == nil:
		state.EmploymentTenure = &models.EmploymentTenureState{
			ID:         tenure.ID,
			PositionID: tenure.PositionID,
			ManagerID:  tenure.ManagerID,
			StartedAt:  tenure.StartedAt,
			EndedAt:    tenure.EndedAt,
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employment tenure")
	}

	tenures, err := s.assignments.LatestTenures(ctx, input.TeammateID)
	if err != nil {
		return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment tenures")
	}
	latest := make(map[string]models.AssignmentTenure, len(tenures))
	ids := make([]string, 0, len(tenures))
	included := make(map[string]struct{})
	for _, t := range tenures {
		latest[t.AssignmentID] = t
		if t.Active() {
			ids = append(ids, t.AssignmentID)
			included[t.AssignmentID] = struct{}{}
		}
	}
	for _, id := range models.EditedAssignmentIDs(input.Edits) {
		if _, ok := included[id]; !ok {
			ids = append(ids, id)
			included[id] = struct{}{}
		}
	}

	assignments, err := s.assignments.ListByIDs(ctx, ids)
	if err != nil {
		return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	missing := map[string]string{}
	for _, id := range ids {
		if _, ok := assignments[id]; !ok {
			missing["assignment_"+id] = "assignment not found"
		}
	}
	if len(missing) > 0 {
		return state, appErrors.WithFields(appErrors.ErrUnresolvableReference, "unknown assignment", missing)
	}

	for _, id := range ids {
		entry := models.AssignmentState{ID: id, Title: assignments[id].Title}
		if t, ok := latest[id]; ok {
			entry.Tenure = &models.TenureState{
				ID:                          t.ID,
				AnticipatedEnergyPercentage: t.AnticipatedEnergyPercentage,
				StartedAt:                   t.StartedAt,
				EndedAt:                     t.EndedAt,
			}
		}
		ci, err := s.checkIns.OpenOrCreate(ctx, models.CheckInKindAssignment, input.TeammateID, id, today)
		if err != nil {
			return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open assignment check-in")
		}
		entry.CheckIn = checkInState(ci)
		state.Assignments = append(state.Assignments, entry)
	}

	milestones, err := s.employment.Milestones(ctx, input.TeammateID)
	if err != nil {
		return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load milestones")
	}
	for _, m := range milestones {
		attained := m.AttainedAt
		state.Milestones = append(state.Milestones, models.MilestoneState{
			AbilityID:      m.AbilityID,
			MilestoneLevel: m.MilestoneLevel,
			AttainedAt:     &attained,
		})
	}

	aspirations, err := s.employment.Aspirations(ctx, input.OrganizationID)
	if err != nil {
		return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load aspirations")
	}
	for _, a := range aspirations {
		ci, err := s.checkIns.OpenOrCreate(ctx, models.CheckInKindAspiration, input.TeammateID, a.ID, today)
		if err != nil {
			return state, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open aspiration check-in")
		}
		state.Aspirations = append(state.Aspirations, models.AspirationState{ID: a.ID, Name: a.Name, CheckIn: checkInState(ci)})
	}
	return state, nil
}

func (s *SnapshotService) requestInfo(ctx context.Context, now time.Time) models.RequestInfo {
	info, _ := requestinfo.FromContext(ctx)
	out := models.RequestInfo{
		IPAddress: info.IPAddress,
		UserAgent: info.UserAgent,
		SessionID: info.SessionID,
		RequestID: info.RequestID,
		Timestamp: now,
	}
	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}
	return out
}

// proposeChanges applies edits to a deep copy of captured. Edits matching current values change nothing.
func proposeChanges(captured models.SnapshotState, edits []models.Edit, actor string, now time.Time) (models.SnapshotState, error) {
	proposed, err := captured.Clone()
	if err != nil {
		return models.SnapshotState{}, err
	}
	today := truncateToDay(now)
	for _, edit := range edits {
		switch e := edit.(type) {
		case models.TenureEdit:
			entry, ok := proposed.Assignment(e.AssignmentID)
			if !ok {
				return models.SnapshotState{}, fmt.Errorf("assignment %s missing from captured state", e.AssignmentID)
			}
			original, _ := captured.Assignment(e.AssignmentID)
			entry.Tenure = proposeTenure(original.Tenure, entry.Tenure, e.AnticipatedEnergy, today)
		case models.CheckInEdit:
			entry, ok := proposed.Assignment(e.AssignmentID)
			if !ok || entry.CheckIn == nil {
				return models.SnapshotState{}, fmt.Errorf("assignment %s has no open check-in", e.AssignmentID)
			}
			side := &entry.CheckIn.Employee
			if e.Side == models.SideManager {
				side = &entry.CheckIn.Manager
			}
			if err := proposeSide(side, e, actor, now); err != nil {
				return models.SnapshotState{}, appErrors.WithFields(appErrors.ErrValidation, "invalid snapshot edits", map[string]string{
					fmt.Sprintf("check_in_%s_%s_rating", e.AssignmentID, e.Side): "is required to mark the side complete",
				})
			}
		case models.MilestoneEdit:
			if !hasMilestone(proposed.Milestones, e.AbilityID, e.MilestoneLevel) {
				proposed.Milestones = append(proposed.Milestones, models.MilestoneState{
					AbilityID:      e.AbilityID,
					MilestoneLevel: e.MilestoneLevel,
					Proposed:       true,
				})
			}
		}
	}
	return proposed, nil
}

// proposeTenure returns the tenure a proposed assignment should carry for energy.
// original is the captured tenure, current is the proposed one after earlier edits.
func proposeTenure(original, current *models.TenureState, energy int, today time.Time) *models.TenureState {
	if current != nil && current.Action == models.TenureActionCreate {
		if energy == 0 {
			return copyTenure(original)
		}
		current.AnticipatedEnergyPercentage = energy
		return current
	}
	active := original != nil && original.EndedAt == nil
	if !active {
		if energy == 0 {
			return copyTenure(original)
		}
		return &models.TenureState{
			AnticipatedEnergyPercentage: energy,
			StartedAt:                   today,
			Action:                      models.TenureActionCreate,
		}
	}
	next := copyTenure(original)
	switch {
	case energy == original.AnticipatedEnergyPercentage:
	case energy == 0:
		ended := today
		next.EndedAt = &ended
		next.Action = models.TenureActionEnd
	default:
		next.AnticipatedEnergyPercentage = energy
		next.Action = models.TenureActionUpdate
	}
	return next
}

func copyTenure(t *models.TenureState) *models.TenureState {
	if t == nil {
		return nil
	}
	out := *t
	if t.EndedAt != nil {
		ended := *t.EndedAt
		out.EndedAt = &ended
	}
	return &out
}

// proposeSide applies edit to side. A side that ends up completed must carry a rating.
func proposeSide(side *models.SideState, edit models.CheckInEdit, actor string, now time.Time) error {
	rating := side.Rating
	if edit.Rating != nil {
		rating = models.NormalizeRating(models.CheckInKindAssignment, *edit.Rating)
	}
	completed := side.Completed
	if edit.Complete != nil {
		completed = *edit.Complete
	}
	if completed && rating == "" {
		return models.ErrSideRatingRequired
	}
	side.Rating = rating
	if edit.Notes != nil {
		side.Notes = *edit.Notes
	}
	if completed == side.Completed {
		return nil
	}
	if completed {
		at := now
		side.Completed = true
		side.CompletedAt = &at
		side.CompletedBy = actor
		return nil
	}
	side.Completed = false
	side.CompletedAt = nil
	side.CompletedBy = ""
	return nil
}

func hasMilestone(milestones []models.MilestoneState, abilityID string, level int) bool {
	for _, m := range milestones {
		if m.AbilityID == abilityID && m.MilestoneLevel == level {
			return true
		}
	}
	return false
}

func checkInState(ci *models.CheckIn) *models.CheckInState {
	if ci == nil {
		return nil
	}
	state := &models.CheckInState{
		ID:       ci.ID,
		Employee: sideState(ci.Employee),
		Manager:  sideState(ci.Manager),
	}
	if ci.Official != nil {
		state.Official = &models.OfficialState{
			Rating:      ci.Official.Rating,
			SharedNotes: ci.Official.SharedNotes,
			CompletedAt: ci.Official.CompletedAt,
			CompletedBy: ci.Official.CompletedBy,
		}
	}
	return state
}

func sideState(side models.SideAssessment) models.SideState {
	out := models.SideState{Rating: side.Rating, Notes: side.Notes}
	if side.Completion != nil {
		at := side.Completion.At
		out.Completed = true
		out.CompletedAt = &at
		out.CompletedBy = side.Completion.By
	}
	return out
}
