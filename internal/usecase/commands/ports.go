package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"genflow/internal/domain/job"
	"genflow/internal/infra/generation"
	"genflow/internal/infra/repository"
	"genflow/internal/usecase/readmodel"
)

// Write-side ports over the infra repositories, narrowed to what the
// commands need and mockable in tests.
type JobRepository interface {
	Create(ctx context.Context, tx repository.DBTX, j *job.Job) (*readmodel.JobRM, error)
	FindByID(ctx context.Context, id uuid.UUID) (*readmodel.JobRM, error)
	FindByIDTx(ctx context.Context, tx repository.DBTX, id uuid.UUID) (*readmodel.JobRM, error)
	FindByIdempotencyKey(ctx context.Context, key uuid.UUID) (*readmodel.JobRM, error)
	FindByExternalRef(ctx context.Context, externalRef string) (*readmodel.JobRM, error)
	MarkDispatched(ctx context.Context, tx repository.DBTX, id uuid.UUID, externalRef string) (bool, error)
	TransitionTerminal(ctx context.Context, tx repository.DBTX, id uuid.UUID, from []job.State, to job.State, resultPayload json.RawMessage, errorText *string) (bool, error)
	ListStale(ctx context.Context, state job.State, before time.Time, limit int32) ([]*readmodel.JobRM, error)
	ListByState(ctx context.Context, state job.State, limit int32) ([]*readmodel.JobRM, error)
}

type LedgerRepository interface {
	Hold(ctx context.Context, tx repository.DBTX, userID uuid.UUID, amount int64, holdID uuid.UUID) (*readmodel.HoldRM, error)
	Commit(ctx context.Context, tx repository.DBTX, holdID uuid.UUID) error
	Release(ctx context.Context, tx repository.DBTX, holdID uuid.UUID) error
	Credit(ctx context.Context, tx repository.DBTX, userID uuid.UUID, amount int64, ref string) (*readmodel.AccountRM, error)
}

type EventRepository interface {
	Enqueue(ctx context.Context, payload json.RawMessage) (uuid.UUID, error)
	Drain(ctx context.Context, holderID uuid.UUID, batchSize int32) ([]*readmodel.PendingEventRM, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID, outcome string, lastError *string) error
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GenerationClient interface {
	Submit(ctx context.Context, req generation.SubmitRequest) (string, error)
	Poll(ctx context.Context, externalRef string) (*generation.PollResult, error)
}
