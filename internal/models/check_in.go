package models

import (
	"errors"
	"time"
)

// CheckInKind identifies the trackable item a check-in assesses.
type CheckInKind string

const (
	CheckInKindPosition   CheckInKind = "position"
	CheckInKindAssignment CheckInKind = "assignment"
	CheckInKindAspiration CheckInKind = "aspiration"
)

// Valid reports whether the kind is supported.
func (k CheckInKind) Valid() bool {
	switch k {
	case CheckInKindPosition, CheckInKindAssignment, CheckInKindAspiration:
		return true
	}
	return false
}

// Side is one of the two independent assessors of a check-in.
type Side string

const (
	SideEmployee Side = "employee"
	SideManager  Side = "manager"
)

// Valid reports whether the side is supported.
func (s Side) Valid() bool {
	return s == SideEmployee || s == SideManager
}

// Lifecycle errors returned by CheckIn transitions.
var (
	ErrCheckInFinalized   = errors.New("check-in finalized")
	ErrCheckInNotReady    = errors.New("check-in not ready for finalization")
	ErrMissingFinalRating = errors.New("final rating is blank")
	ErrUnknownSide        = errors.New("unknown check-in side")
	ErrSideRatingRequired = errors.New("a completed side needs a rating")
)

// Completion marks a side as completed. At and By are always set together.
type Completion struct {
	At time.Time `json:"completed_at"`
	By string    `json:"completed_by"`
}

// SideAssessment holds one side's rating, notes and completion marker.
type SideAssessment struct {
	Rating     string      `json:"rating,omitempty"`
	Notes      string      `json:"notes,omitempty"`
	Completion *Completion `json:"completion,omitempty"`
}

// Completed reports whether the side has been marked complete.
func (s SideAssessment) Completed() bool {
	return s.Completion != nil
}

// OfficialAssessment is the finalized record combining both sides.
type OfficialAssessment struct {
	Rating      string    `json:"rating"`
	SharedNotes string    `json:"shared_notes,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
	CompletedBy string    `json:"completed_by"`
}

// CheckIn is a dual-sided assessment of one item for one teammate in one review period.
type CheckIn struct {
	ID         string              `json:"id"`
	Kind       CheckInKind         `json:"kind"`
	TeammateID string              `json:"teammate_id"`
	ItemID     string              `json:"item_id"`
	StartedOn  time.Time           `json:"started_on"`
	Employee   SideAssessment      `json:"employee"`
	Manager    SideAssessment      `json:"manager"`
	Official   *OfficialAssessment `json:"official,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// SideDraft carries the fields written to a side. Nil pointers leave the stored value untouched.
type SideDraft struct {
	Rating *string
	Notes  *string
}

// Finalized reports whether the official assessment has been recorded.
func (c *CheckIn) Finalized() bool {
	return c.Official != nil
}

// ReadyForFinalization is true when both sides are complete and no official rating exists.
func (c *CheckIn) ReadyForFinalization() bool {
	return c.Employee.Completed() && c.Manager.Completed() && !c.Finalized()
}

// SideOf returns the assessment for side.
func (c *CheckIn) SideOf(side Side) (SideAssessment, error) {
	switch side {
	case SideEmployee:
		return c.Employee, nil
	case SideManager:
		return c.Manager, nil
	}
	return SideAssessment{}, ErrUnknownSide
}

// ApplySide writes draft to side and sets or clears its completion marker.
// Clearing completion keeps rating and notes. The other side is never touched.
// A side can only be completed with a rating; on error the check-in is unchanged.
func (c *CheckIn) ApplySide(side Side, draft SideDraft, actor string, markComplete bool, now time.Time) error {
	if c.Finalized() {
		return ErrCheckInFinalized
	}
	var target *SideAssessment
	switch side {
	case SideEmployee:
		target = &c.Employee
	case SideManager:
		target = &c.Manager
	default:
		return ErrUnknownSide
	}
	rating := target.Rating
	if draft.Rating != nil {
		rating = NormalizeRating(c.Kind, *draft.Rating)
	}
	if markComplete && rating == "" {
		return ErrSideRatingRequired
	}
	target.Rating = rating
	if draft.Notes != nil {
		target.Notes = *draft.Notes
	}
	if markComplete {
		target.Completion = &Completion{At: now, By: actor}
	} else {
		target.Completion = nil
	}
	c.UpdatedAt = now
	return nil
}

// Finalize records the official assessment. It is the only transition that sets Official.
func (c *CheckIn) Finalize(rating, sharedNotes, actor string, now time.Time) error {
	if c.Finalized() {
		return ErrCheckInFinalized
	}
	if !c.ReadyForFinalization() {
		return ErrCheckInNotReady
	}
	rating = NormalizeRating(c.Kind, rating)
	if rating == "" {
		return ErrMissingFinalRating
	}
	c.Official = &OfficialAssessment{
		Rating:      rating,
		SharedNotes: sharedNotes,
		CompletedAt: now,
		CompletedBy: actor,
	}
	c.UpdatedAt = now
	return nil
}

// CheckInHistoryFilter scopes finalized check-in listings.
type CheckInHistoryFilter struct {
	Kind       CheckInKind
	TeammateID string
	ItemID     string
	Limit      int
}

// FinalizedCheckInFilter scopes stats queries over finalized check-ins.
type FinalizedCheckInFilter struct {
	Kind           CheckInKind
	OrganizationID string
	From           time.Time
	To             time.Time
}
