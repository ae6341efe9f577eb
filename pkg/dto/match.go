package dto

import "github.com/google/uuid"

// MatchRequest is the body of POST /v1/match.
type MatchRequest struct {
	MissingPersonID uuid.UUID `json:"missingPersonId" binding:"required"`
	ImageURL        string    `json:"imageUrl" binding:"required"`
}

type MatchResult struct {
	Confidence       float64    `json:"confidence"`
	MatchedImageURL  string     `json:"matchedImageUrl"`
	MatchedImageName string     `json:"matchedImageName"`
	CandidateID      *uuid.UUID `json:"candidateId,omitempty"`
	Band             string     `json:"band,omitempty"`
}

// MatchResponse keeps the same envelope for success and failure; Matches is
// always present.
type MatchResponse struct {
	Success            bool          `json:"success"`
	Matches            []MatchResult `json:"matches"`
	TotalImagesScanned int           `json:"totalImagesScanned"`
	Error              string        `json:"error,omitempty"`
}
