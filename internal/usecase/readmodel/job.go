package readmodel

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobRM struct {
	ID             uuid.UUID       `json:"id"`
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
	UserID         uuid.UUID       `json:"user_id"`
	HoldID         uuid.UUID       `json:"hold_id"`
	Amount         int64           `json:"amount"`
	RequestHash    string          `json:"-"`
	RequestPayload json.RawMessage `json:"request_payload"`
	Destination    string          `json:"destination"`
	ExternalRef    *string         `json:"external_ref,omitempty"`
	State          string          `json:"state"`
	ResultPayload  json.RawMessage `json:"result_payload,omitempty"`
	ErrorText      *string         `json:"error,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type JobListRM struct {
	ID        uuid.UUID `json:"id"`
	State     string    `json:"state"`
	Amount    int64     `json:"amount"`
	ErrorText *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
