package dto

import "github.com/google/uuid"

// ReviewResponse is returned by the confirm and reject endpoints.
type ReviewResponse struct {
	Success bool      `json:"success"`
	CaseID  uuid.UUID `json:"caseId,omitempty"`
	Status  string    `json:"status,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type AttemptResponse struct {
	ID              uuid.UUID  `json:"id"`
	InitiatorKind   string     `json:"initiator_kind"`
	PoliceID        *uuid.UUID `json:"police_id,omitempty"`
	ImageURL        string     `json:"image_url"`
	MatchedImage    *string    `json:"matched_image,omitempty"`
	MissingPersonID *uuid.UUID `json:"missing_person_id,omitempty"`
	Confidence      float64    `json:"confidence"`
	Action          string     `json:"action"`
	ReviewOf        *uuid.UUID `json:"review_of,omitempty"`
	CreatedAt       string     `json:"created_at"`
}

type AttemptListResponse struct {
	CaseID   uuid.UUID         `json:"case_id"`
	Attempts []AttemptResponse `json:"attempts"`
}

type SweepResponse struct {
	Enqueued int `json:"enqueued"`
	Failed   int `json:"failed"`
}
