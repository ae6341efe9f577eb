package models

import (
	"time"

	"github.com/google/uuid"
)

type CaseStatus string

const (
	CaseStatusMissing CaseStatus = "missing"
	CaseStatusFound   CaseStatus = "found"
)

// MissingPersonCase is the slice of a case record the matcher reads.
// Only the confirm step writes Status, and only missing -> found.
type MissingPersonCase struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	Status     CaseStatus `json:"status" db:"status"`
	PhotoURL   *string    `json:"photo_url,omitempty" db:"photo_url"`
	ReporterID *uuid.UUID `json:"reporter_id,omitempty" db:"reporter_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}
