package request

import (
	"encoding/json"
)

// GenerationCallbackRequest is the shape the generation service posts
// back when a task reaches a terminal state.
type GenerationCallbackRequest struct {
	ExternalRef   string          `json:"external_ref" binding:"required"`
	Status        string          `json:"status" binding:"required"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	Error         string          `json:"error,omitempty"`
}
