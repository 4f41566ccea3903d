package dto

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/noah-isme/maap-api/internal/models"
	appErrors "github.com/noah-isme/maap-api/pkg/errors"
)

// CreateSnapshotRequest is the snapshot payload. Edits use the flat key form submitted by the review form.
type CreateSnapshotRequest struct {
	TeammateID     string                     `json:"teammate_id"`
	OrganizationID string                     `json:"organization_id"`
	ChangeType     models.ChangeType          `json:"change_type"`
	Reason         string                     `json:"reason"`
	Edits          map[string]json.RawMessage `json:"edits"`
}

// SnapshotListQuery mirrors the filters accepted when listing a teammate's snapshots.
type SnapshotListQuery struct {
	Status     string `form:"status"`
	ChangeType string `form:"change_type"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// ToFilter converts the query string into a repository filter.
func (q SnapshotListQuery) ToFilter() models.SnapshotFilter {
	filter := models.SnapshotFilter{
		ChangeType: models.ChangeType(strings.TrimSpace(q.ChangeType)),
		Limit:      q.Limit,
		Offset:     q.Offset,
	}
	for _, part := range strings.Split(q.Status, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part != "" {
			filter.Status = append(filter.Status, models.SnapshotStatus(part))
		}
	}
	return filter
}

const (
	tenureKeyPrefix    = "tenure_"
	tenureKeySuffix    = "_anticipated_energy"
	checkInKeyPrefix   = "check_in_"
	milestoneKeyPrefix = "milestone_"
	milestoneKeySuffix = "_level"
)

type checkInKey struct {
	assignmentID string
	side         models.Side
}

// ParseFlatEdits turns the flat edit map into typed edits. Keys are processed in sorted order
// and check-in fields for the same assignment and side merge into one edit.
// Unknown keys and malformed values fail with VALIDATION_ERROR naming the key.
func ParseFlatEdits(raw map[string]json.RawMessage) ([]models.Edit, error) {
	keys := make([]string, 0, len(raw))
	for key := range raw {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	edits := make([]models.Edit, 0, len(keys))
	checkIns := map[checkInKey]int{}
	fields := map[string]string{}

	for _, key := range keys {
		value := raw[key]
		switch {
		case strings.HasPrefix(key, tenureKeyPrefix) && strings.HasSuffix(key, tenureKeySuffix):
			id := strings.TrimSuffix(strings.TrimPrefix(key, tenureKeyPrefix), tenureKeySuffix)
			energy, err := decodeInt(value)
			if id == "" || err != nil {
				fields[key] = "must be an integer energy percentage"
				continue
			}
			edits = append(edits, models.TenureEdit{AssignmentID: id, AnticipatedEnergy: energy})

		case strings.HasPrefix(key, checkInKeyPrefix):
			id, side, field, ok := splitCheckInKey(strings.TrimPrefix(key, checkInKeyPrefix))
			if !ok {
				fields[key] = "unrecognised check-in key"
				continue
			}
			ck := checkInKey{assignmentID: id, side: side}
			idx, seen := checkIns[ck]
			if !seen {
				idx = len(edits)
				checkIns[ck] = idx
				edits = append(edits, models.CheckInEdit{AssignmentID: id, Side: side})
			}
			edit := edits[idx].(models.CheckInEdit)
			if msg := applyCheckInField(&edit, field, value); msg != "" {
				fields[key] = msg
				continue
			}
			edits[idx] = edit

		case strings.HasPrefix(key, milestoneKeyPrefix) && strings.HasSuffix(key, milestoneKeySuffix):
			id := strings.TrimSuffix(strings.TrimPrefix(key, milestoneKeyPrefix), milestoneKeySuffix)
			level, err := decodeInt(value)
			if id == "" || err != nil {
				fields[key] = "must be an integer milestone level"
				continue
			}
			edits = append(edits, models.MilestoneEdit{AbilityID: id, MilestoneLevel: level})

		default:
			fields[key] = "unrecognised edit key"
		}
	}

	if len(fields) > 0 {
		return nil, appErrors.WithFields(appErrors.ErrValidation, "invalid snapshot edits", fields)
	}
	return edits, nil
}

// splitCheckInKey splits "<assignment>_<side>_<field>" from the right so assignment ids may contain underscores.
func splitCheckInKey(rest string) (string, models.Side, string, bool) {
	for _, field := range []string{"rating", "notes", "complete"} {
		for _, side := range []models.Side{models.SideEmployee, models.SideManager} {
			suffix := "_" + string(side) + "_" + field
			if strings.HasSuffix(rest, suffix) {
				id := strings.TrimSuffix(rest, suffix)
				if id == "" {
					return "", "", "", false
				}
				return id, side, field, true
			}
		}
	}
	return "", "", "", false
}

func applyCheckInField(edit *models.CheckInEdit, field string, value json.RawMessage) string {
	switch field {
	case "rating":
		s, err := decodeString(value)
		if err != nil {
			return "must be a string"
		}
		edit.Rating = &s
	case "notes":
		s, err := decodeString(value)
		if err != nil {
			return "must be a string"
		}
		edit.Notes = &s
	case "complete":
		b, err := decodeBool(value)
		if err != nil {
			return "must be a boolean"
		}
		edit.Complete = &b
	}
	return ""
}

// decodeInt accepts JSON numbers and numeric strings, since HTML forms submit everything as text.
func decodeInt(raw json.RawMessage) (int, error) {
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		if number != math.Trunc(number) {
			return 0, fmt.Errorf("not an integer: %v", number)
		}
		return int(number), nil
	}
	s, err := decodeString(raw)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(s))
}

func decodeBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	s, err := decodeString(raw)
	if err != nil {
		return false, err
	}
	return strconv.ParseBool(strings.TrimSpace(s))
}

func decodeString(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}
