package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Action tags a ScanAttempt. The set is closed.
type Action string

const (
	ActionScanned             Action = "scanned"
	ActionConfirmed           Action = "confirmed"
	ActionRejected            Action = "rejected"
	ActionAutomatedMatch      Action = "automated_match"
	ActionAutomatedImageMatch Action = "automated_image_match"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionScanned, ActionConfirmed, ActionRejected, ActionAutomatedMatch, ActionAutomatedImageMatch:
		return true
	}
	return false
}

// IsPresentation reports whether the attempt put a candidate in front of a reviewer.
func (a Action) IsPresentation() bool {
	return a == ActionScanned || a == ActionAutomatedMatch || a == ActionAutomatedImageMatch
}

// IsDecision reports whether the attempt records a reviewer decision.
func (a Action) IsDecision() bool {
	return a == ActionConfirmed || a == ActionRejected
}

type InitiatorKind string

const (
	InitiatorHuman  InitiatorKind = "human"
	InitiatorSystem InitiatorKind = "system"
)

// Initiator identifies who started a scan or made a decision: a police
// officer, or the system itself for automated scans.
type Initiator struct {
	Kind     InitiatorKind `json:"kind"`
	PoliceID *uuid.UUID    `json:"police_id,omitempty"`
}

// Human returns an initiator for the given officer.
func Human(id uuid.UUID) Initiator {
	return Initiator{Kind: InitiatorHuman, PoliceID: &id}
}

// System returns the initiator used by automated scans.
func System() Initiator {
	return Initiator{Kind: InitiatorSystem}
}

func (i Initiator) IsSystem() bool {
	return i.Kind == InitiatorSystem
}

func (i Initiator) String() string {
	if i.IsSystem() || i.PoliceID == nil {
		return string(InitiatorSystem)
	}
	return "human:" + i.PoliceID.String()
}

// Validate checks that a human initiator carries an ID and a system one does not.
func (i Initiator) Validate() error {
	switch i.Kind {
	case InitiatorHuman:
		if i.PoliceID == nil || *i.PoliceID == uuid.Nil {
			return fmt.Errorf("human initiator requires a police id")
		}
	case InitiatorSystem:
		if i.PoliceID != nil {
			return fmt.Errorf("system initiator must not carry a police id")
		}
	default:
		return fmt.Errorf("unknown initiator kind %q", i.Kind)
	}
	return nil
}

// ScanAttempt is an append-only audit record of one comparison outcome or
// one reviewer decision.
type ScanAttempt struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	Initiator       Initiator  `json:"initiator" db:"-"`
	ImageURL        string     `json:"image_url" db:"image_url"`
	MatchedImage    *string    `json:"matched_image,omitempty" db:"matched_image"`
	MissingPersonID *uuid.UUID `json:"missing_person_id,omitempty" db:"missing_person_id"`
	Confidence      float64    `json:"confidence" db:"confidence"`
	Action          Action     `json:"action" db:"action"`
	ReviewOf        *uuid.UUID `json:"review_of,omitempty" db:"review_of"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
}

// PresentationAction picks the action recorded for a candidate shown by a scan.
func PresentationAction(initiator Initiator, trigger ScanTrigger) Action {
	if !initiator.IsSystem() {
		return ActionScanned
	}
	if trigger == TriggerSweep {
		return ActionAutomatedMatch
	}
	return ActionAutomatedImageMatch
}
