package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ChangeType classifies the bundle of changes a snapshot proposes.
type ChangeType string

const (
	ChangeTypeAssignmentManagement ChangeType = "assignment_management"
	ChangeTypePositionTenure       ChangeType = "position_tenure"
	ChangeTypeMilestoneManagement  ChangeType = "milestone_management"
	ChangeTypeAspirationManagement ChangeType = "aspiration_management"
	ChangeTypeException            ChangeType = "exception"
)

// Valid reports whether the change type is supported.
func (c ChangeType) Valid() bool {
	switch c {
	case ChangeTypeAssignmentManagement, ChangeTypePositionTenure, ChangeTypeMilestoneManagement,
		ChangeTypeAspirationManagement, ChangeTypeException:
		return true
	}
	return false
}

// SnapshotStatus captures the execution state of a snapshot.
type SnapshotStatus string

const (
	SnapshotStatusPending  SnapshotStatus = "pending"
	SnapshotStatusExecuted SnapshotStatus = "executed"
	SnapshotStatusFailed   SnapshotStatus = "failed"
)

// TenureAction describes what a proposed tenure state asks the executor to do.
type TenureAction string

const (
	TenureActionNone   TenureAction = ""
	TenureActionCreate TenureAction = "create"
	TenureActionUpdate TenureAction = "update"
	TenureActionEnd    TenureAction = "end"
)

// ChangeSnapshot is an audited capture of current and proposed employment state.
type ChangeSnapshot struct {
	ID                     string         `db:"id" json:"id"`
	TeammateID             string         `db:"teammate_id" json:"teammate_id"`
	CreatedBy              string         `db:"created_by" json:"created_by"`
	OrganizationID         string         `db:"organization_id" json:"organization_id"`
	ChangeType             ChangeType     `db:"change_type" json:"change_type"`
	Reason                 string         `db:"reason" json:"reason"`
	CapturedState          SnapshotState  `db:"captured_state" json:"captured_state"`
	ProposedChanges        SnapshotState  `db:"proposed_changes" json:"proposed_changes"`
	RequestInfo            RequestInfo    `db:"request_info" json:"request_info"`
	Status                 SnapshotStatus `db:"status" json:"status"`
	FailureReason          *string        `db:"failure_reason" json:"failure_reason,omitempty"`
	ExecutedAt             *time.Time     `db:"executed_at" json:"executed_at,omitempty"`
	EmployeeAcknowledgedAt *time.Time     `db:"employee_acknowledged_at" json:"employee_acknowledged_at,omitempty"`
	CreatedAt              time.Time      `db:"created_at" json:"created_at"`
}

// SnapshotState is the nested document shared by captured_state and proposed_changes.
type SnapshotState struct {
	EmploymentTenure *EmploymentTenureState `json:"employment_tenure,omitempty"`
	Assignments      []AssignmentState      `json:"assignments"`
	Milestones       []MilestoneState       `json:"milestones"`
	Aspirations      []AspirationState      `json:"aspirations"`
}

// EmploymentTenureState describes the teammate's current position tenure.
type EmploymentTenureState struct {
	ID         string     `json:"id"`
	PositionID string     `json:"position_id"`
	ManagerID  *string    `json:"manager_id,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// AssignmentState describes one assignment's tenure and open check-in.
type AssignmentState struct {
	ID      string        `json:"id"`
	Title   string        `json:"title"`
	Tenure  *TenureState  `json:"tenure,omitempty"`
	CheckIn *CheckInState `json:"check_in,omitempty"`
}

// TenureState describes an assignment tenure. Action is empty in captured state.
type TenureState struct {
	ID                          string       `json:"id,omitempty"`
	AnticipatedEnergyPercentage int          `json:"anticipated_energy_percentage"`
	StartedAt                   time.Time    `json:"started_at"`
	EndedAt                     *time.Time   `json:"ended_at,omitempty"`
	Action                      TenureAction `json:"action,omitempty"`
}

// CheckInState describes the employee, manager and official fields of a check-in.
type CheckInState struct {
	ID       string         `json:"id"`
	Employee SideState      `json:"employee"`
	Manager  SideState      `json:"manager"`
	Official *OfficialState `json:"official,omitempty"`
}

// SideState is the document form of a SideAssessment.
type SideState struct {
	Rating      string     `json:"rating,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CompletedBy string     `json:"completed_by,omitempty"`
}

// OfficialState is the document form of an OfficialAssessment.
type OfficialState struct {
	Rating      string    `json:"rating"`
	SharedNotes string    `json:"shared_notes,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	CompletedBy string    `json:"completed_by"`
}

// MilestoneState describes an attained or proposed ability milestone.
type MilestoneState struct {
	AbilityID      string     `json:"ability_id"`
	MilestoneLevel int        `json:"milestone_level"`
	AttainedAt     *time.Time `json:"attained_at,omitempty"`
	Proposed       bool       `json:"proposed,omitempty"`
}

// AspirationState describes an aspiration and the teammate's open check-in on it.
type AspirationState struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	CheckIn *CheckInState `json:"check_in,omitempty"`
}

// RequestInfo is the request metadata recorded once when a snapshot is created.
type RequestInfo struct {
	IPAddress string    `json:"ip_address"`
	UserAgent string    `json:"user_agent"`
	SessionID string    `json:"session_id"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Assignment returns the assignment entry with id.
func (s *SnapshotState) Assignment(id string) (*AssignmentState, bool) {
	for i := range s.Assignments {
		if s.Assignments[i].ID == id {
			return &s.Assignments[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy, so mutating the copy never reaches the original.
func (s SnapshotState) Clone() (SnapshotState, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return SnapshotState{}, err
	}
	var out SnapshotState
	if err := json.Unmarshal(raw, &out); err != nil {
		return SnapshotState{}, err
	}
	return out, nil
}

// Value implements driver.Valuer for JSONB storage.
func (s SnapshotState) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB storage.
func (s *SnapshotState) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Value implements driver.Valuer for JSONB storage.
func (r RequestInfo) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner for JSONB storage.
func (r *RequestInfo) Scan(src interface{}) error {
	return scanJSON(src, r)
}

func scanJSON(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported document type %T", src)
	}
}

// SnapshotFilter constrains snapshot listings.
type SnapshotFilter struct {
	TeammateID string
	Status     []SnapshotStatus
	ChangeType ChangeType
	Limit      int
	Offset     int
}

// ItemFailure reports one proposed entry that could not be applied.
type ItemFailure struct {
	AssignmentID string `json:"assignment_id,omitempty"`
	AbilityID    string `json:"ability_id,omitempty"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// AppliedChange reports one live write performed by an execution.
type AppliedChange struct {
	AssignmentID string `json:"assignment_id,omitempty"`
	AbilityID    string `json:"ability_id,omitempty"`
	Change       string `json:"change"`
}

// ExecutionResult summarises a snapshot execution.
type ExecutionResult struct {
	SnapshotID string          `json:"snapshot_id"`
	Status     SnapshotStatus  `json:"status"`
	Applied    []AppliedChange `json:"applied"`
	Failures   []ItemFailure   `json:"failures,omitempty"`
}

// Succeeded reports whether every proposed change was applied.
func (r *ExecutionResult) Succeeded() bool {
	return r != nil && r.Status == SnapshotStatusExecuted
}
