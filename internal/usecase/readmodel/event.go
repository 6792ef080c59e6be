package readmodel

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type PendingEventRM struct {
	ID                 uuid.UUID       `json:"id"`
	Payload            json.RawMessage `json:"payload"`
	EnqueuedAt         time.Time       `json:"enqueued_at"`
	ProcessedAt        *time.Time      `json:"processed_at,omitempty"`
	ProcessingHolderID *uuid.UUID      `json:"processing_holder_id,omitempty"`
	Attempts           int32           `json:"attempts"`
	Outcome            *string         `json:"outcome,omitempty"`
	LastError          *string         `json:"last_error,omitempty"`
}
