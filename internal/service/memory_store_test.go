package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/maap-api/internal/models"
)

// memWorld is an in-memory stand-in for the relational store. Reads return copies.
type memWorld struct {
	mu          sync.Mutex
	seq         int
	checkIns    map[string]*models.CheckIn
	assignments map[string]models.Assignment
	tenures     []models.AssignmentTenure
	employment  map[string]models.EmploymentTenure
	milestones  []models.TeammateMilestone
	abilities   map[string]bool
	aspirations []models.Aspiration
	snapshots   map[string]*models.ChangeSnapshot
	feedback    []models.Feedback

	failUpdateEnergy error
}

func newMemWorld() *memWorld {
	return &memWorld{
		checkIns:    map[string]*models.CheckIn{},
		assignments: map[string]models.Assignment{},
		employment:  map[string]models.EmploymentTenure{},
		abilities:   map[string]bool{},
		snapshots:   map[string]*models.ChangeSnapshot{},
	}
}

func (w *memWorld) nextID(prefix string) string {
	w.seq++
	return fmt.Sprintf("%s-%d", prefix, w.seq)
}

func (w *memWorld) clone() *memWorld {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := newMemWorld()
	out.seq = w.seq
	for id, ci := range w.checkIns {
		out.checkIns[id] = cloneCheckIn(ci)
	}
	for id, a := range w.assignments {
		out.assignments[id] = a
	}
	out.tenures = append([]models.AssignmentTenure(nil), w.tenures...)
	for id, e := range w.employment {
		out.employment[id] = e
	}
	out.milestones = append([]models.TeammateMilestone(nil), w.milestones...)
	for id, ok := range w.abilities {
		out.abilities[id] = ok
	}
	out.aspirations = append([]models.Aspiration(nil), w.aspirations...)
	for id, s := range w.snapshots {
		copied := *s
		out.snapshots[id] = &copied
	}
	out.feedback = append([]models.Feedback(nil), w.feedback...)
	out.failUpdateEnergy = w.failUpdateEnergy
	return out
}

func (w *memWorld) replace(other *memWorld) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.seq = other.seq
	w.checkIns = other.checkIns
	w.assignments = other.assignments
	w.tenures = other.tenures
	w.employment = other.employment
	w.milestones = other.milestones
	w.abilities = other.abilities
	w.aspirations = other.aspirations
	w.snapshots = other.snapshots
}

func cloneCheckIn(ci *models.CheckIn) *models.CheckIn {
	out := *ci
	if ci.Employee.Completion != nil {
		c := *ci.Employee.Completion
		out.Employee.Completion = &c
	}
	if ci.Manager.Completion != nil {
		c := *ci.Manager.Completion
		out.Manager.Completion = &c
	}
	if ci.Official != nil {
		o := *ci.Official
		out.Official = &o
	}
	return &out
}

func (w *memWorld) addTenure(t models.AssignmentTenure) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.ID == "" {
		t.ID = w.nextID("ten")
	}
	w.tenures = append(w.tenures, t)
}

func (w *memWorld) tenuresFor(teammateID, assignmentID string) []models.AssignmentTenure {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []models.AssignmentTenure
	for _, t := range w.tenures {
		if t.TeammateID == teammateID && t.AssignmentID == assignmentID {
			out = append(out, t)
		}
	}
	return out
}

type memCheckIns struct{ w *memWorld }

func (m memCheckIns) OpenOrCreate(ctx context.Context, kind models.CheckInKind, teammateID, itemID string, startedOn time.Time) (*models.CheckIn, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	for _, ci := range m.w.checkIns {
		if ci.Kind == kind && ci.TeammateID == teammateID && ci.ItemID == itemID && ci.Official == nil {
			return cloneCheckIn(ci), nil
		}
	}
	ci := &models.CheckIn{ID: m.w.nextID("ci"), Kind: kind, TeammateID: teammateID, ItemID: itemID, StartedOn: startedOn}
	m.w.checkIns[ci.ID] = ci
	return cloneCheckIn(ci), nil
}

func (m memCheckIns) GetByID(ctx context.Context, id string) (*models.CheckIn, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	ci, ok := m.w.checkIns[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return cloneCheckIn(ci), nil
}

func (m memCheckIns) UpdateSide(ctx context.Context, id string, side models.Side, assessment models.SideAssessment, updatedAt time.Time) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	ci, ok := m.w.checkIns[id]
	if !ok || ci.Official != nil {
		return sql.ErrNoRows
	}
	switch side {
	case models.SideEmployee:
		ci.Employee = assessment
	case models.SideManager:
		ci.Manager = assessment
	default:
		return models.ErrUnknownSide
	}
	ci.UpdatedAt = updatedAt
	return nil
}

func (m memCheckIns) Finalize(ctx context.Context, id string, official models.OfficialAssessment) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	ci, ok := m.w.checkIns[id]
	if !ok || ci.Official != nil || ci.Employee.Completion == nil || ci.Manager.Completion == nil {
		return sql.ErrNoRows
	}
	ci.Official = &official
	return nil
}

func (m memCheckIns) History(ctx context.Context, filter models.CheckInHistoryFilter) ([]models.CheckIn, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var out []models.CheckIn
	for _, ci := range m.w.checkIns {
		if ci.Official == nil || ci.TeammateID != filter.TeammateID {
			continue
		}
		if filter.Kind != "" && ci.Kind != filter.Kind {
			continue
		}
		out = append(out, *cloneCheckIn(ci))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Official.CompletedAt.After(out[j].Official.CompletedAt) })
	return out, nil
}

func (m memCheckIns) ListFinalized(ctx context.Context, filter models.FinalizedCheckInFilter) ([]models.CheckIn, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var out []models.CheckIn
	for _, ci := range m.w.checkIns {
		if ci.Official != nil && ci.Kind == filter.Kind {
			out = append(out, *cloneCheckIn(ci))
		}
	}
	return out, nil
}

type memAssignments struct{ w *memWorld }

func (m memAssignments) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	a, ok := m.w.assignments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &a, nil
}

func (m memAssignments) ListByIDs(ctx context.Context, ids []string) (map[string]models.Assignment, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	out := map[string]models.Assignment{}
	for _, id := range ids {
		if a, ok := m.w.assignments[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m memAssignments) LatestTenures(ctx context.Context, teammateID string) ([]models.AssignmentTenure, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	latest := map[string]models.AssignmentTenure{}
	for _, t := range m.w.tenures {
		if t.TeammateID != teammateID {
			continue
		}
		if cur, ok := latest[t.AssignmentID]; !ok || t.StartedAt.After(cur.StartedAt) {
			latest[t.AssignmentID] = t
		}
	}
	out := make([]models.AssignmentTenure, 0, len(latest))
	for _, t := range latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssignmentID < out[j].AssignmentID })
	return out, nil
}

func (m memAssignments) LatestTenureForUpdate(ctx context.Context, teammateID, assignmentID string) (*models.AssignmentTenure, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var found *models.AssignmentTenure
	for i := range m.w.tenures {
		t := m.w.tenures[i]
		if t.TeammateID == teammateID && t.AssignmentID == assignmentID && (found == nil || t.StartedAt.After(found.StartedAt)) {
			found = &t
		}
	}
	if found == nil {
		return nil, sql.ErrNoRows
	}
	return found, nil
}

func (m memAssignments) CreateTenure(ctx context.Context, tenure *models.AssignmentTenure) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	tenure.ID = m.w.nextID("ten")
	m.w.tenures = append(m.w.tenures, *tenure)
	return nil
}

func (m memAssignments) UpdateTenureEnergy(ctx context.Context, id string, energy int) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if m.w.failUpdateEnergy != nil {
		return m.w.failUpdateEnergy
	}
	for i := range m.w.tenures {
		if m.w.tenures[i].ID == id && m.w.tenures[i].EndedAt == nil {
			m.w.tenures[i].AnticipatedEnergyPercentage = energy
			return nil
		}
	}
	return sql.ErrNoRows
}

func (m memAssignments) EndTenure(ctx context.Context, id string, endedAt time.Time) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	for i := range m.w.tenures {
		if m.w.tenures[i].ID == id && m.w.tenures[i].EndedAt == nil {
			ended := endedAt
			m.w.tenures[i].EndedAt = &ended
			return nil
		}
	}
	return sql.ErrNoRows
}

type memEmployment struct{ w *memWorld }

func (m memEmployment) ActiveTenure(ctx context.Context, teammateID string) (*models.EmploymentTenure, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	t, ok := m.w.employment[teammateID]
	if !ok || t.EndedAt != nil {
		return nil, sql.ErrNoRows
	}
	return &t, nil
}

func (m memEmployment) ActiveTeammateIDs(ctx context.Context, organizationID string, at time.Time) ([]string, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var ids []string
	for id, t := range m.w.employment {
		if t.OrganizationID == organizationID && t.EndedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m memEmployment) Milestones(ctx context.Context, teammateID string) ([]models.TeammateMilestone, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var out []models.TeammateMilestone
	for _, ms := range m.w.milestones {
		if ms.TeammateID == teammateID {
			out = append(out, ms)
		}
	}
	return out, nil
}

func (m memEmployment) AbilityExists(ctx context.Context, abilityID string) (bool, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	return m.w.abilities[abilityID], nil
}

func (m memEmployment) AwardMilestone(ctx context.Context, milestone *models.TeammateMilestone) (bool, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	for _, ms := range m.w.milestones {
		if ms.TeammateID == milestone.TeammateID && ms.AbilityID == milestone.AbilityID && ms.MilestoneLevel == milestone.MilestoneLevel {
			return false, nil
		}
	}
	milestone.ID = m.w.nextID("ms")
	m.w.milestones = append(m.w.milestones, *milestone)
	return true, nil
}

func (m memEmployment) Aspirations(ctx context.Context, organizationID string) ([]models.Aspiration, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var out []models.Aspiration
	for _, a := range m.w.aspirations {
		if a.OrganizationID == organizationID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memFeedback struct{ w *memWorld }

func (m memFeedback) ListBetween(ctx context.Context, filter models.FeedbackFilter) ([]models.Feedback, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var out []models.Feedback
	for _, f := range m.w.feedback {
		if f.OrganizationID == filter.OrganizationID {
			out = append(out, f)
		}
	}
	return out, nil
}

type memSnapshots struct{ w *memWorld }

func (m memSnapshots) Create(ctx context.Context, snapshot *models.ChangeSnapshot) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	if snapshot.ID == "" {
		snapshot.ID = m.w.nextID("snap")
	}
	stored, err := copySnapshot(snapshot)
	if err != nil {
		return err
	}
	m.w.snapshots[snapshot.ID] = stored
	return nil
}

func (m memSnapshots) GetByID(ctx context.Context, id string) (*models.ChangeSnapshot, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	s, ok := m.w.snapshots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return copySnapshot(s)
}

func (m memSnapshots) GetForUpdate(ctx context.Context, id string) (*models.ChangeSnapshot, error) {
	return m.GetByID(ctx, id)
}

func (m memSnapshots) List(ctx context.Context, filter models.SnapshotFilter) ([]models.ChangeSnapshot, error) {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	var out []models.ChangeSnapshot
	for _, s := range m.w.snapshots {
		if s.TeammateID == filter.TeammateID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m memSnapshots) MarkExecuted(ctx context.Context, id string, at time.Time) error {
	return m.transition(id, models.SnapshotStatusExecuted, nil, at)
}

func (m memSnapshots) MarkFailed(ctx context.Context, id, reason string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.transition(id, models.SnapshotStatusFailed, &reason, at)
}

func (m memSnapshots) transition(id string, status models.SnapshotStatus, reason *string, at time.Time) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	s, ok := m.w.snapshots[id]
	if !ok || s.Status != models.SnapshotStatusPending {
		return sql.ErrNoRows
	}
	s.Status = status
	s.FailureReason = reason
	s.ExecutedAt = &at
	return nil
}

func (m memSnapshots) Acknowledge(ctx context.Context, id string, at time.Time) error {
	m.w.mu.Lock()
	defer m.w.mu.Unlock()
	s, ok := m.w.snapshots[id]
	if !ok || s.EmployeeAcknowledgedAt != nil {
		return sql.ErrNoRows
	}
	s.EmployeeAcknowledgedAt = &at
	return nil
}

// copySnapshot deep-copies the JSON documents so stored snapshots never alias caller state.
func copySnapshot(s *models.ChangeSnapshot) (*models.ChangeSnapshot, error) {
	out := *s
	var err error
	if out.CapturedState, err = s.CapturedState.Clone(); err != nil {
		return nil, err
	}
	if out.ProposedChanges, err = s.ProposedChanges.Clone(); err != nil {
		return nil, err
	}
	return &out, nil
}

// memTxRunner applies fn to a copy of the world and publishes it only on success.
type memTxRunner struct {
	w         *memWorld
	commits   int
	rollbacks int
}

func (r *memTxRunner) InTx(ctx context.Context, fn func(stores ExecutionStores) error) error {
	draft := r.w.clone()
	err := fn(ExecutionStores{
		Snapshots:   memSnapshots{draft},
		Assignments: memAssignments{draft},
		CheckIns:    memCheckIns{draft},
		Milestones:  memEmployment{draft},
	})
	if err != nil {
		r.rollbacks++
		return err
	}
	r.w.replace(draft)
	r.commits++
	return nil
}

type auditRecorder struct {
	mu   sync.Mutex
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func (a *auditRecorder) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

type invalidationRecorder struct {
	reasons []string
}

func (r *invalidationRecorder) InvalidateStats(ctx context.Context, reason string) {
	r.reasons = append(r.reasons, reason)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// cancellingTxRunner cancels the caller's context mid-transaction, as a client disconnect would.
type cancellingTxRunner struct {
	cancel context.CancelFunc
}

func (r cancellingTxRunner) InTx(ctx context.Context, _ func(stores ExecutionStores) error) error {
	r.cancel()
	return ctx.Err()
}
