package job

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidAmount      = errors.New("amount must be positive")
	ErrEmptyPayload       = errors.New("request payload is required")
	ErrEmptyDestination   = errors.New("destination is required")
	ErrInvalidPayloadJSON = errors.New("request payload is not valid JSON")
)

// Payloads above this size are rejected before anything is persisted.
const MaxPayloadBytes = 1 << 20

// Job ties one user request to one external generation task and one
// balance hold. The hold is created together with the job; the job id,
// hold id and request fingerprint are fixed at construction.
type Job struct {
	id             uuid.UUID
	idempotencyKey uuid.UUID
	userID         uuid.UUID
	holdID         uuid.UUID
	amount         int64
	requestHash    string
	payload        json.RawMessage
	destination    string
}

func NewJob(
	idempotencyKey uuid.UUID,
	userID uuid.UUID,
	amount int64,
	payload json.RawMessage,
	destination string,
) (*Job, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadBytes || !json.Valid(payload) {
		return nil, ErrInvalidPayloadJSON
	}
	if destination == "" {
		return nil, ErrEmptyDestination
	}

	return &Job{
		id:             uuid.New(),
		idempotencyKey: idempotencyKey,
		userID:         userID,
		holdID:         uuid.New(),
		amount:         amount,
		requestHash:    Fingerprint(userID, payload),
		payload:        payload,
		destination:    destination,
	}, nil
}

// Fingerprint identifies the request body so a reused idempotency key
// with a different payload can be rejected instead of silently deduped.
func Fingerprint(userID uuid.UUID, payload json.RawMessage) string {
	h := sha256.New()
	h.Write(userID[:])
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (j *Job) ID() uuid.UUID             { return j.id }
func (j *Job) IdempotencyKey() uuid.UUID { return j.idempotencyKey }
func (j *Job) UserID() uuid.UUID         { return j.userID }
func (j *Job) HoldID() uuid.UUID         { return j.holdID }
func (j *Job) Amount() int64             { return j.amount }
func (j *Job) RequestHash() string       { return j.requestHash }
func (j *Job) Payload() json.RawMessage  { return j.payload }
func (j *Job) Destination() string       { return j.destination }
