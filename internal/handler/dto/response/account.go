package response

import (
	"time"

	"github.com/google/uuid"

	"genflow/internal/usecase/readmodel"
)

type AccountResponse struct {
	UserID          uuid.UUID `json:"userId"`
	AvailableAmount int64     `json:"availableAmount"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func FromAccountRM(rm *readmodel.AccountRM) *AccountResponse {
	return &AccountResponse{
		UserID:          rm.UserID,
		AvailableAmount: rm.AvailableAmount,
		UpdatedAt:       rm.UpdatedAt,
	}
}
