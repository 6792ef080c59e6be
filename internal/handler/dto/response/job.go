package response

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"genflow/internal/usecase/readmodel"
)

type JobResponse struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"userId"`
	State       string          `json:"state"`
	Amount      int64           `json:"amount"`
	Destination string          `json:"destination"`
	ExternalRef *string         `json:"externalRef,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	DeliveredAt *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type JobListResponse struct {
	ID        uuid.UUID `json:"id"`
	State     string    `json:"state"`
	Amount    int64     `json:"amount"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// AcceptedResponse acknowledges a request buffered for the leader.
type AcceptedResponse struct {
	EventID uuid.UUID `json:"eventId"`
	Status  string    `json:"status"`
}

func FromJobRM(rm *readmodel.JobRM) *JobResponse {
	var resp JobResponse
	_ = copier.Copy(&resp, rm)
	resp.Result = rm.ResultPayload
	resp.Error = rm.ErrorText
	return &resp
}

func FromJobListRM(rm *readmodel.JobListRM) *JobListResponse {
	var resp JobListResponse
	_ = copier.Copy(&resp, rm)
	resp.Error = rm.ErrorText
	return &resp
}
