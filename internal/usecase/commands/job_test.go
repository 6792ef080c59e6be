//go:build unit

package commands

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"genflow/internal/domain/job"
	"genflow/internal/infra"
	"genflow/internal/infra/generation"
	"genflow/internal/pkg/clock"
	"genflow/internal/pkg/config"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

var notFoundErr = infra.NewRepoErr(infra.KindNotFound, "not found")

type jobFixture struct {
	jobRepo    *mockJobRepo
	ledgerRepo *mockLedgerRepo
	remote     *mockGenClient
	clock      *clock.MockClock
	uc         JobCommands
}

func newJobFixture(t *testing.T) *jobFixture {
	t.Helper()
	f := &jobFixture{
		jobRepo:    new(mockJobRepo),
		ledgerRepo: new(mockLedgerRepo),
		remote:     new(mockGenClient),
		clock:      clock.NewMockClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)),
	}
	f.uc = NewJobUseCase(f.jobRepo, f.ledgerRepo, f.remote, fakeUoW{}, f.clock, config.GenerationConfig{
		DispatchDeadline:  5 * time.Minute,
		ReconcileDeadline: 30 * time.Minute,
	})
	return f
}

func validParams() SubmitParams {
	return SubmitParams{
		IdempotencyKey: uuid.New(),
		UserID:         uuid.New(),
		Amount:         100,
		Payload:        json.RawMessage(`{"prompt":"a cat"}`),
		Destination:    "channel-1",
	}
}

func jobRM(p SubmitParams, state job.State) *readmodel.JobRM {
	return &readmodel.JobRM{
		ID:             uuid.New(),
		IdempotencyKey: p.IdempotencyKey,
		UserID:         p.UserID,
		HoldID:         uuid.New(),
		Amount:         p.Amount,
		RequestHash:    job.Fingerprint(p.UserID, p.Payload),
		RequestPayload: p.Payload,
		Destination:    p.Destination,
		State:          state.String(),
	}
}

func TestJobUseCase_Submit(t *testing.T) {
	t.Run("requires an idempotency key", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		p.IdempotencyKey = uuid.Nil

		_, err := f.uc.Submit(context.Background(), p)

		assert.ErrorIs(t, err, errs.ErrIdempotencyKeyRequired)
	})

	t.Run("holds funds before dispatch and records the external ref", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		created := jobRM(p, job.StateCreated)
		dispatched := jobRM(p, job.StateDispatched)

		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(nil, notFoundErr).Once()
		f.ledgerRepo.On("Hold", mock.Anything, nil, p.UserID, p.Amount, mock.Anything).
			Return(&readmodel.HoldRM{}, nil).Once()
		f.jobRepo.On("Create", mock.Anything, nil, mock.Anything).
			Return(created, nil).Once()
		f.remote.On("Submit", mock.Anything, mock.Anything).
			Return("gen-1", nil).Once()
		f.jobRepo.On("MarkDispatched", mock.Anything, nil, mock.Anything, "gen-1").
			Return(true, nil).Once()
		f.jobRepo.On("FindByID", mock.Anything, created.ID).
			Return(dispatched, nil).Once()

		result, err := f.uc.Submit(context.Background(), p)

		require.NoError(t, err)
		assert.False(t, result.IsReplayed)
		assert.Equal(t, job.StateDispatched.String(), result.Job.State)
		f.jobRepo.AssertExpectations(t)
		f.ledgerRepo.AssertExpectations(t)
	})

	t.Run("replays an existing job for the same key and payload", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		existing := jobRM(p, job.StateDispatched)

		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(existing, nil).Once()

		result, err := f.uc.Submit(context.Background(), p)

		require.NoError(t, err)
		assert.True(t, result.IsReplayed)
		assert.Equal(t, existing.ID, result.Job.ID)
		f.ledgerRepo.AssertNotCalled(t, "Hold", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.remote.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("rejects a reused key with a different payload", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		other := p
		other.Payload = json.RawMessage(`{"prompt":"a dog"}`)
		existing := jobRM(other, job.StateDispatched)

		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(existing, nil).Once()

		_, err := f.uc.Submit(context.Background(), p)

		assert.ErrorIs(t, err, errs.ErrDuplicateRequest)
	})

	t.Run("maps a failed hold to insufficient funds without creating a job", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()

		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(nil, notFoundErr).Once()
		f.ledgerRepo.On("Hold", mock.Anything, nil, p.UserID, p.Amount, mock.Anything).
			Return(nil, infra.NewRepoErr(infra.KindConflict, "insufficient funds")).Once()

		_, err := f.uc.Submit(context.Background(), p)

		assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
		f.jobRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
		f.remote.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
	})

	t.Run("fails the job and releases the hold when dispatch fails", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		created := jobRM(p, job.StateCreated)
		failed := jobRM(p, job.StateFailed)

		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(nil, notFoundErr).Once()
		f.ledgerRepo.On("Hold", mock.Anything, nil, p.UserID, p.Amount, mock.Anything).
			Return(&readmodel.HoldRM{}, nil).Once()
		f.jobRepo.On("Create", mock.Anything, nil, mock.Anything).
			Return(created, nil).Once()
		f.remote.On("Submit", mock.Anything, mock.Anything).
			Return("", errs.New("generation service returned 401")).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, mock.Anything,
			[]job.State{job.StateCreated}, job.StateFailed, mock.Anything, mock.Anything).
			Return(true, nil).Once()
		f.ledgerRepo.On("Release", mock.Anything, nil, mock.Anything).
			Return(nil).Once()
		f.jobRepo.On("FindByID", mock.Anything, created.ID).
			Return(failed, nil).Once()

		result, err := f.uc.Submit(context.Background(), p)

		require.NoError(t, err)
		assert.Equal(t, job.StateFailed.String(), result.Job.State)
		f.ledgerRepo.AssertExpectations(t)
	})

	t.Run("resolves a concurrent duplicate create as a replay", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		winner := jobRM(p, job.StateDispatched)

		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(nil, notFoundErr).Once()
		f.ledgerRepo.On("Hold", mock.Anything, nil, p.UserID, p.Amount, mock.Anything).
			Return(&readmodel.HoldRM{}, nil).Once()
		f.jobRepo.On("Create", mock.Anything, nil, mock.Anything).
			Return(nil, infra.NewRepoErr(infra.KindDuplicateKey, "duplicate")).Once()
		f.jobRepo.On("FindByIdempotencyKey", mock.Anything, p.IdempotencyKey).
			Return(winner, nil).Once()

		result, err := f.uc.Submit(context.Background(), p)

		require.NoError(t, err)
		assert.True(t, result.IsReplayed)
		assert.Equal(t, winner.ID, result.Job.ID)
	})
}

func TestJobUseCase_Reconcile(t *testing.T) {
	t.Run("commits the hold when the job succeeds", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)
		result := json.RawMessage(`{"url":"https://cdn.example/a.png"}`)

		f.jobRepo.On("FindByIDTx", mock.Anything, nil, rm.ID).
			Return(rm, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, rm.ID,
			[]job.State{job.StateCreated, job.StateDispatched},
			job.StateSucceeded, result, (*string)(nil)).
			Return(true, nil).Once()
		f.ledgerRepo.On("Commit", mock.Anything, nil, rm.HoldID).
			Return(nil).Once()

		err := f.uc.Reconcile(context.Background(), rm.ID, Outcome{
			State:         job.StateSucceeded,
			ResultPayload: result,
		})

		require.NoError(t, err)
		f.ledgerRepo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("releases the hold when the job fails", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)
		errText := "generation failed"

		f.jobRepo.On("FindByIDTx", mock.Anything, nil, rm.ID).
			Return(rm, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, rm.ID,
			[]job.State{job.StateCreated, job.StateDispatched},
			job.StateFailed, json.RawMessage(nil), &errText).
			Return(true, nil).Once()
		f.ledgerRepo.On("Release", mock.Anything, nil, rm.HoldID).
			Return(nil).Once()

		err := f.uc.Reconcile(context.Background(), rm.ID, Outcome{
			State:     job.StateFailed,
			ErrorText: &errText,
		})

		require.NoError(t, err)
		f.ledgerRepo.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("is a no-op on an already terminal job", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateSucceeded)

		f.jobRepo.On("FindByIDTx", mock.Anything, nil, rm.ID).
			Return(rm, nil).Once()

		err := f.uc.Reconcile(context.Background(), rm.ID, Outcome{State: job.StateFailed})

		require.NoError(t, err)
		f.jobRepo.AssertNotCalled(t, "TransitionTerminal",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.ledgerRepo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("skips the ledger when another transition wins the race", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)

		f.jobRepo.On("FindByIDTx", mock.Anything, nil, rm.ID).
			Return(rm, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, rm.ID,
			mock.Anything, job.StateSucceeded, mock.Anything, mock.Anything).
			Return(false, nil).Once()

		err := f.uc.Reconcile(context.Background(), rm.ID, Outcome{State: job.StateSucceeded})

		require.NoError(t, err)
		f.ledgerRepo.AssertNotCalled(t, "Commit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a non-terminal outcome", func(t *testing.T) {
		f := newJobFixture(t)

		err := f.uc.Reconcile(context.Background(), uuid.New(), Outcome{State: job.StateDispatched})

		assert.Error(t, err)
	})
}

func TestJobUseCase_HandleCallback(t *testing.T) {
	t.Run("routes a terminal callback into reconcile", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)
		ref := "gen-9"
		rm.ExternalRef = &ref
		result := json.RawMessage(`{"url":"https://cdn.example/b.png"}`)

		f.jobRepo.On("FindByExternalRef", mock.Anything, ref).
			Return(rm, nil).Once()
		f.jobRepo.On("FindByIDTx", mock.Anything, nil, rm.ID).
			Return(rm, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, rm.ID,
			mock.Anything, job.StateSucceeded, result, (*string)(nil)).
			Return(true, nil).Once()
		f.ledgerRepo.On("Commit", mock.Anything, nil, rm.HoldID).
			Return(nil).Once()

		err := f.uc.HandleCallback(context.Background(), CallbackParams{
			ExternalRef:   ref,
			Status:        "succeeded",
			ResultPayload: result,
		})

		require.NoError(t, err)
	})

	t.Run("ignores non-terminal callbacks", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)

		f.jobRepo.On("FindByExternalRef", mock.Anything, "gen-9").
			Return(rm, nil).Once()

		err := f.uc.HandleCallback(context.Background(), CallbackParams{
			ExternalRef: "gen-9",
			Status:      "running",
		})

		require.NoError(t, err)
		f.jobRepo.AssertNotCalled(t, "FindByIDTx", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("maps an unknown ref to job not found", func(t *testing.T) {
		f := newJobFixture(t)

		f.jobRepo.On("FindByExternalRef", mock.Anything, "gen-unknown").
			Return(nil, notFoundErr).Once()

		err := f.uc.HandleCallback(context.Background(), CallbackParams{
			ExternalRef: "gen-unknown",
			Status:      "succeeded",
		})

		assert.ErrorIs(t, err, errs.ErrJobNotFound)
	})
}

func TestJobUseCase_Cancel(t *testing.T) {
	t.Run("cancels a created job and releases its hold", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateCreated)
		canceled := jobRM(p, job.StateFailed)
		canceled.ID = rm.ID

		f.jobRepo.On("FindByID", mock.Anything, rm.ID).
			Return(rm, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, rm.ID,
			[]job.State{job.StateCreated}, job.StateFailed, mock.Anything, mock.Anything).
			Return(true, nil).Once()
		f.ledgerRepo.On("Release", mock.Anything, nil, rm.HoldID).
			Return(nil).Once()
		f.jobRepo.On("FindByID", mock.Anything, rm.ID).
			Return(canceled, nil).Once()

		result, err := f.uc.Cancel(context.Background(), rm.ID, p.UserID)

		require.NoError(t, err)
		assert.Equal(t, job.StateFailed.String(), result.State)
	})

	t.Run("refuses to cancel a dispatched job", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)

		f.jobRepo.On("FindByID", mock.Anything, rm.ID).
			Return(rm, nil).Once()

		_, err := f.uc.Cancel(context.Background(), rm.ID, p.UserID)

		assert.ErrorIs(t, err, errs.ErrJobNotCancelable)
	})

	t.Run("hides other users' jobs", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateCreated)

		f.jobRepo.On("FindByID", mock.Anything, rm.ID).
			Return(rm, nil).Once()

		_, err := f.uc.Cancel(context.Background(), rm.ID, uuid.New())

		assert.ErrorIs(t, err, errs.ErrJobNotFound)
	})
}

func TestJobUseCase_PollDispatched(t *testing.T) {
	t.Run("reconciles finished jobs and leaves running ones", func(t *testing.T) {
		f := newJobFixture(t)
		p1, p2 := validParams(), validParams()
		done := jobRM(p1, job.StateDispatched)
		doneRef := "gen-done"
		done.ExternalRef = &doneRef
		running := jobRM(p2, job.StateDispatched)
		runningRef := "gen-running"
		running.ExternalRef = &runningRef
		result := json.RawMessage(`{"url":"https://cdn.example/c.png"}`)

		f.jobRepo.On("ListByState", mock.Anything, job.StateDispatched, int32(10)).
			Return([]*readmodel.JobRM{done, running}, nil).Once()
		f.remote.On("Poll", mock.Anything, doneRef).
			Return(&generation.PollResult{Status: generation.StatusSucceeded, ResultPayload: result}, nil).Once()
		f.remote.On("Poll", mock.Anything, runningRef).
			Return(&generation.PollResult{Status: generation.StatusRunning}, nil).Once()
		f.jobRepo.On("FindByIDTx", mock.Anything, nil, done.ID).
			Return(done, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, done.ID,
			mock.Anything, job.StateSucceeded, result, (*string)(nil)).
			Return(true, nil).Once()
		f.ledgerRepo.On("Commit", mock.Anything, nil, done.HoldID).
			Return(nil).Once()

		err := f.uc.PollDispatched(context.Background(), 10)

		require.NoError(t, err)
		f.jobRepo.AssertExpectations(t)
	})

	t.Run("keeps going when a single poll errors", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		rm := jobRM(p, job.StateDispatched)
		ref := "gen-flaky"
		rm.ExternalRef = &ref

		f.jobRepo.On("ListByState", mock.Anything, job.StateDispatched, int32(10)).
			Return([]*readmodel.JobRM{rm}, nil).Once()
		f.remote.On("Poll", mock.Anything, ref).
			Return(nil, errs.New("connection refused")).Once()

		err := f.uc.PollDispatched(context.Background(), 10)

		require.NoError(t, err)
		f.jobRepo.AssertNotCalled(t, "TransitionTerminal",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestJobUseCase_SweepStale(t *testing.T) {
	t.Run("times out stale jobs and releases their holds", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		stuck := jobRM(p, job.StateCreated)
		now := f.clock.Now()

		f.jobRepo.On("ListStale", mock.Anything, job.StateCreated,
			now.Add(-5*time.Minute), int32(sweepBatchSize)).
			Return([]*readmodel.JobRM{stuck}, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, stuck.ID,
			[]job.State{job.StateCreated}, job.StateTimedOut, mock.Anything, mock.Anything).
			Return(true, nil).Once()
		f.ledgerRepo.On("Release", mock.Anything, nil, stuck.HoldID).
			Return(nil).Once()
		f.jobRepo.On("ListStale", mock.Anything, job.StateDispatched,
			now.Add(-30*time.Minute), int32(sweepBatchSize)).
			Return(nil, nil).Once()

		swept, err := f.uc.SweepStale(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 1, swept)
	})

	t.Run("does not touch the ledger when the job moved meanwhile", func(t *testing.T) {
		f := newJobFixture(t)
		p := validParams()
		stuck := jobRM(p, job.StateDispatched)
		now := f.clock.Now()

		f.jobRepo.On("ListStale", mock.Anything, job.StateCreated,
			now.Add(-5*time.Minute), int32(sweepBatchSize)).
			Return(nil, nil).Once()
		f.jobRepo.On("ListStale", mock.Anything, job.StateDispatched,
			now.Add(-30*time.Minute), int32(sweepBatchSize)).
			Return([]*readmodel.JobRM{stuck}, nil).Once()
		f.jobRepo.On("TransitionTerminal", mock.Anything, nil, stuck.ID,
			[]job.State{job.StateDispatched}, job.StateTimedOut, mock.Anything, mock.Anything).
			Return(false, nil).Once()

		swept, err := f.uc.SweepStale(context.Background())

		require.NoError(t, err)
		assert.Equal(t, 0, swept)
		f.ledgerRepo.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	})
}
