package models

import "time"

// Assignment is a unit of work a teammate can be tenured on.
type Assignment struct {
	ID             string    `db:"id" json:"id"`
	OrganizationID string    `db:"organization_id" json:"organization_id"`
	Title          string    `db:"title" json:"title"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// AssignmentTenure records a teammate's time and energy on an assignment.
type AssignmentTenure struct {
	ID                          string     `db:"id" json:"id"`
	TeammateID                  string     `db:"teammate_id" json:"teammate_id"`
	AssignmentID                string     `db:"assignment_id" json:"assignment_id"`
	AnticipatedEnergyPercentage int        `db:"anticipated_energy_percentage" json:"anticipated_energy_percentage"`
	StartedAt                   time.Time  `db:"started_at" json:"started_at"`
	EndedAt                     *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// Active reports whether the tenure has not ended.
func (t AssignmentTenure) Active() bool {
	return t.EndedAt == nil
}

// EmploymentTenure records a teammate's position within an organization.
type EmploymentTenure struct {
	ID             string     `db:"id" json:"id"`
	TeammateID     string     `db:"teammate_id" json:"teammate_id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	PositionID     string     `db:"position_id" json:"position_id"`
	ManagerID      *string    `db:"manager_id" json:"manager_id,omitempty"`
	StartedAt      time.Time  `db:"started_at" json:"started_at"`
	EndedAt        *time.Time `db:"ended_at" json:"ended_at,omitempty"`
}

// TeammateMilestone is an ability milestone a teammate has attained.
type TeammateMilestone struct {
	ID             string    `db:"id" json:"id"`
	TeammateID     string    `db:"teammate_id" json:"teammate_id"`
	AbilityID      string    `db:"ability_id" json:"ability_id"`
	MilestoneLevel int       `db:"milestone_level" json:"milestone_level"`
	AttainedAt     time.Time `db:"attained_at" json:"attained_at"`
	CertifiedBy    string    `db:"certified_by" json:"certified_by"`
}

// Aspiration is an organization-wide value teammates are checked in against.
type Aspiration struct {
	ID             string `db:"id" json:"id"`
	OrganizationID string `db:"organization_id" json:"organization_id"`
	Name           string `db:"name" json:"name"`
}
