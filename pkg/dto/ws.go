package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

// WSEvent is a WebSocket message for real-time scan and review delivery.
type WSEvent struct {
	Type        string          `json:"type"` // scan_completed, review_decided
	CaseID      uuid.UUID       `json:"case_id"`
	Data        json.RawMessage `json:"data,omitempty"`
	PublishedAt string          `json:"published_at"`
}
