package models

// Edit is one typed change requested for a snapshot. The set of edit kinds is closed.
type Edit interface {
	isEdit()
}

// TenureEdit sets the anticipated energy of the teammate's tenure on an assignment.
type TenureEdit struct {
	AssignmentID      string `validate:"required"`
	AnticipatedEnergy int    `validate:"min=0,max=100"`
}

// CheckInEdit changes one side of the teammate's open check-in on an assignment.
type CheckInEdit struct {
	AssignmentID string `validate:"required"`
	Side         Side   `validate:"oneof=employee manager"`
	Rating       *string
	Notes        *string `validate:"omitempty,max=4000"`
	Complete     *bool
}

// MilestoneEdit awards an ability milestone.
type MilestoneEdit struct {
	AbilityID      string `validate:"required"`
	MilestoneLevel int    `validate:"min=1,max=5"`
}

func (TenureEdit) isEdit()    {}
func (CheckInEdit) isEdit()   {}
func (MilestoneEdit) isEdit() {}

// EditedAssignmentIDs returns the distinct assignment ids referenced by edits, in first-seen order.
func EditedAssignmentIDs(edits []Edit) []string {
	seen := make(map[string]struct{})
	ids := make([]string, 0, len(edits))
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, edit := range edits {
		switch e := edit.(type) {
		case TenureEdit:
			add(e.AssignmentID)
		case CheckInEdit:
			add(e.AssignmentID)
		}
	}
	return ids
}
