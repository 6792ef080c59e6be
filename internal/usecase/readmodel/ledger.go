package readmodel

import (
	"time"

	"github.com/google/uuid"
)

type AccountRM struct {
	UserID          uuid.UUID `json:"user_id"`
	AvailableAmount int64     `json:"available_amount"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type HoldRM struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Amount    int64     `json:"amount"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}
