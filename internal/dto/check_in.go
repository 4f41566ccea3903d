package dto

import "github.com/noah-isme/maap-api/internal/models"

// OpenCheckInRequest opens, or returns, the check-in for a teammate and item.
type OpenCheckInRequest struct {
	Kind       models.CheckInKind `json:"kind"`
	TeammateID string             `json:"teammate_id"`
	ItemID     string             `json:"item_id"`
}

// SaveSideRequest writes one side. Omitted rating or notes keep their stored value.
type SaveSideRequest struct {
	Rating       *string `json:"rating"`
	Notes        *string `json:"notes"`
	MarkComplete bool    `json:"mark_complete"`
}

// FinalizeCheckInRequest records the official assessment.
type FinalizeCheckInRequest struct {
	FinalRating string `json:"final_rating"`
	SharedNotes string `json:"shared_notes"`
}

// ReadinessResponse reports whether a check-in can be finalized.
type ReadinessResponse struct {
	CheckInID string `json:"check_in_id"`
	Ready     bool   `json:"ready"`
}
