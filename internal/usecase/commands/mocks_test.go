//go:build unit

package commands

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"genflow/internal/domain/job"
	"genflow/internal/infra/generation"
	"genflow/internal/infra/repository"
	"genflow/internal/usecase/readmodel"
)

type mockJobRepo struct {
	mock.Mock
}

func (m *mockJobRepo) Create(ctx context.Context, tx repository.DBTX, j *job.Job) (*readmodel.JobRM, error) {
	args := m.Called(ctx, tx, j)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) FindByID(ctx context.Context, id uuid.UUID) (*readmodel.JobRM, error) {
	args := m.Called(ctx, id)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) FindByIDTx(ctx context.Context, tx repository.DBTX, id uuid.UUID) (*readmodel.JobRM, error) {
	args := m.Called(ctx, tx, id)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) FindByIdempotencyKey(ctx context.Context, key uuid.UUID) (*readmodel.JobRM, error) {
	args := m.Called(ctx, key)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) FindByExternalRef(ctx context.Context, externalRef string) (*readmodel.JobRM, error) {
	args := m.Called(ctx, externalRef)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) MarkDispatched(ctx context.Context, tx repository.DBTX, id uuid.UUID, externalRef string) (bool, error) {
	args := m.Called(ctx, tx, id, externalRef)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) TransitionTerminal(ctx context.Context, tx repository.DBTX, id uuid.UUID, from []job.State, to job.State, resultPayload json.RawMessage, errorText *string) (bool, error) {
	args := m.Called(ctx, tx, id, from, to, resultPayload, errorText)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) ListStale(ctx context.Context, state job.State, before time.Time, limit int32) ([]*readmodel.JobRM, error) {
	args := m.Called(ctx, state, before, limit)
	if jobs := args.Get(0); jobs != nil {
		return jobs.([]*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockJobRepo) ListByState(ctx context.Context, state job.State, limit int32) ([]*readmodel.JobRM, error) {
	args := m.Called(ctx, state, limit)
	if jobs := args.Get(0); jobs != nil {
		return jobs.([]*readmodel.JobRM), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLedgerRepo struct {
	mock.Mock
}

func (m *mockLedgerRepo) Hold(ctx context.Context, tx repository.DBTX, userID uuid.UUID, amount int64, holdID uuid.UUID) (*readmodel.HoldRM, error) {
	args := m.Called(ctx, tx, userID, amount, holdID)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.HoldRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockLedgerRepo) Commit(ctx context.Context, tx repository.DBTX, holdID uuid.UUID) error {
	return m.Called(ctx, tx, holdID).Error(0)
}

func (m *mockLedgerRepo) Release(ctx context.Context, tx repository.DBTX, holdID uuid.UUID) error {
	return m.Called(ctx, tx, holdID).Error(0)
}

func (m *mockLedgerRepo) Credit(ctx context.Context, tx repository.DBTX, userID uuid.UUID, amount int64, ref string) (*readmodel.AccountRM, error) {
	args := m.Called(ctx, tx, userID, amount, ref)
	if rm := args.Get(0); rm != nil {
		return rm.(*readmodel.AccountRM), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockEventRepo struct {
	mock.Mock
}

func (m *mockEventRepo) Enqueue(ctx context.Context, payload json.RawMessage) (uuid.UUID, error) {
	args := m.Called(ctx, payload)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func (m *mockEventRepo) Drain(ctx context.Context, holderID uuid.UUID, batchSize int32) ([]*readmodel.PendingEventRM, error) {
	args := m.Called(ctx, holderID, batchSize)
	if events := args.Get(0); events != nil {
		return events.([]*readmodel.PendingEventRM), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockEventRepo) MarkProcessed(ctx context.Context, eventID uuid.UUID, outcome string, lastError *string) error {
	return m.Called(ctx, eventID, outcome, lastError).Error(0)
}

func (m *mockEventRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

type mockGenClient struct {
	mock.Mock
}

func (m *mockGenClient) Submit(ctx context.Context, req generation.SubmitRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGenClient) Poll(ctx context.Context, externalRef string) (*generation.PollResult, error) {
	args := m.Called(ctx, externalRef)
	if result := args.Get(0); result != nil {
		return result.(*generation.PollResult), args.Error(1)
	}
	return nil, args.Error(1)
}

// fakeUoW runs the callback directly; the mocked repositories ignore
// the transaction handle anyway.
type fakeUoW struct{}

func (fakeUoW) Within(ctx context.Context, fn func(ctx context.Context, tx repository.DBTX) error) error {
	return fn(ctx, nil)
}
