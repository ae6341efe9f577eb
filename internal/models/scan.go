package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScanTrigger says how a scan was started.
type ScanTrigger string

const (
	TriggerImage ScanTrigger = "image" // an image submitted for matching
	TriggerSweep ScanTrigger = "sweep" // a case photo rescanned by an automated sweep
)

type Band string

const (
	BandHigh Band = "high"
	BandLow  Band = "low"
)

// MatchCandidate is one ranked corpus image retained by a scan.
type MatchCandidate struct {
	AttemptID       *uuid.UUID `json:"attempt_id,omitempty"`
	ImageName       string     `json:"image_name"`
	ImageURL        string     `json:"image_url"`
	Confidence      float64    `json:"confidence"`
	MissingPersonID uuid.UUID  `json:"missing_person_id"`
	Band            Band       `json:"band,omitempty"`
}

// ScanTask is the message published to NATS for worker-run scans.
type ScanTask struct {
	TaskID          uuid.UUID   `json:"task_id"`
	MissingPersonID uuid.UUID   `json:"missing_person_id"`
	ImageRef        string      `json:"image_ref"`
	Trigger         ScanTrigger `json:"trigger"`
	EnqueuedAt      time.Time   `json:"enqueued_at"`
}

// ScanCompleted is published after every scan run.
type ScanCompleted struct {
	MissingPersonID uuid.UUID        `json:"missing_person_id"`
	Initiator       Initiator        `json:"initiator"`
	Trigger         ScanTrigger      `json:"trigger"`
	Matches         []MatchCandidate `json:"matches"`
	Scanned         int              `json:"scanned"`
	Skipped         int              `json:"skipped"`
	EvidenceKey     string           `json:"evidence_key,omitempty"`
	CompletedAt     time.Time        `json:"completed_at"`
}

// ReviewDecided is published after a confirm or reject is recorded.
type ReviewDecided struct {
	AttemptID       uuid.UUID  `json:"attempt_id"`
	CandidateID     uuid.UUID  `json:"candidate_id"`
	MissingPersonID uuid.UUID  `json:"missing_person_id"`
	Action          Action     `json:"action"`
	Status          CaseStatus `json:"status"`
	Initiator       Initiator  `json:"initiator"`
	Confidence      float64    `json:"confidence"`
	DecidedAt       time.Time  `json:"decided_at"`
}

// CaseFound is the notification sent towards the case's original reporter.
type CaseFound struct {
	MissingPersonID uuid.UUID  `json:"missing_person_id"`
	ReporterID      *uuid.UUID `json:"reporter_id,omitempty"`
	CandidateID     uuid.UUID  `json:"candidate_id"`
	MatchedImage    string     `json:"matched_image,omitempty"`
	Confidence      float64    `json:"confidence"`
	ConfirmedBy     Initiator  `json:"confirmed_by"`
	ConfirmedAt     time.Time  `json:"confirmed_at"`
}

// Event is the envelope for everything published on the events stream.
type Event struct {
	Type            string          `json:"type"`
	MissingPersonID uuid.UUID       `json:"missing_person_id"`
	Data            json.RawMessage `json:"data"`
	PublishedAt     time.Time       `json:"published_at"`
}
