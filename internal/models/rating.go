package models

import (
	"strconv"
	"strings"
)

// Assignment and aspiration rating values.
const (
	RatingWorkingToMeet = "working_to_meet"
	RatingMeeting       = "meeting"
	RatingExceeding     = "exceeding"
)

var assignmentScale = map[string]float64{
	RatingWorkingToMeet: 1,
	RatingMeeting:       2,
	RatingExceeding:     3,
}

// RatingScale returns the numeric score for rating on the kind's scale.
// Positions are rated -3..3; assignments and aspirations use the named scale.
func RatingScale(kind CheckInKind, rating string) (float64, bool) {
	switch kind {
	case CheckInKindPosition:
		n, err := strconv.Atoi(rating)
		if err != nil || n < -3 || n > 3 {
			return 0, false
		}
		return float64(n), true
	case CheckInKindAssignment, CheckInKindAspiration:
		score, ok := assignmentScale[rating]
		return score, ok
	}
	return 0, false
}

// ValidRating reports whether rating belongs to the kind's scale. Blank is valid for drafts.
func ValidRating(kind CheckInKind, rating string) bool {
	if rating == "" {
		return true
	}
	_, ok := RatingScale(kind, rating)
	return ok
}

// NormalizeRating trims rating and rewrites position ratings in plain integer form, so "+1" is stored as "1".
// Values off the scale are returned trimmed and left for validation to reject.
func NormalizeRating(kind CheckInKind, rating string) string {
	rating = strings.TrimSpace(rating)
	if kind == CheckInKindPosition {
		if n, err := strconv.Atoi(rating); err == nil {
			return strconv.Itoa(n)
		}
	}
	return rating
}
