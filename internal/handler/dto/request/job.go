package request

import (
	"encoding/json"
)

type SubmitJobRequest struct {
	Amount      int64           `json:"amount" binding:"required,gt=0"`
	Destination string          `json:"destination" binding:"required"`
	Payload     json.RawMessage `json:"payload" binding:"required"`
}
