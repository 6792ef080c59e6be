package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"genflow/internal/domain/job"
	"genflow/internal/infra"
	"genflow/internal/infra/generation"
	"genflow/internal/infra/repository"
	"genflow/internal/pkg/clock"
	"genflow/internal/pkg/config"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
	"genflow/internal/usecase/shared"
)

const sweepBatchSize = 100

type SubmitParams struct {
	IdempotencyKey uuid.UUID       `json:"idempotency_key"`
	UserID         uuid.UUID       `json:"user_id"`
	Amount         int64           `json:"amount"`
	Payload        json.RawMessage `json:"payload"`
	Destination    string          `json:"destination"`
}

type SubmitResult struct {
	Job        *readmodel.JobRM
	IsReplayed bool
}

// Outcome is a terminal verdict for a job, produced by polling, by a
// callback or by the stale sweep.
type Outcome struct {
	State         job.State
	ResultPayload json.RawMessage
	ErrorText     *string
}

type CallbackParams struct {
	ExternalRef   string          `json:"external_ref"`
	Status        string          `json:"status"`
	ResultPayload json.RawMessage `json:"result_payload,omitempty"`
	ErrorText     string          `json:"error,omitempty"`
}

type JobCommands interface {
	Submit(ctx context.Context, p SubmitParams) (*SubmitResult, error)
	Reconcile(ctx context.Context, jobID uuid.UUID, outcome Outcome) error
	HandleCallback(ctx context.Context, cb CallbackParams) error
	Cancel(ctx context.Context, jobID, userID uuid.UUID) (*readmodel.JobRM, error)
	PollDispatched(ctx context.Context, limit int32) error
	SweepStale(ctx context.Context) (int, error)
}

type jobUseCaseImpl struct {
	jobRepo    JobRepository
	ledgerRepo LedgerRepository
	remote     GenerationClient
	uow        shared.UnitOfWork
	clock      clock.Clock
	genCfg     config.GenerationConfig
}

func NewJobUseCase(
	jobRepo JobRepository,
	ledgerRepo LedgerRepository,
	remote GenerationClient,
	uow shared.UnitOfWork,
	clock clock.Clock,
	genCfg config.GenerationConfig,
) JobCommands {
	return &jobUseCaseImpl{
		jobRepo:    jobRepo,
		ledgerRepo: ledgerRepo,
		remote:     remote,
		uow:        uow,
		clock:      clock,
		genCfg:     genCfg,
	}
}

// Submit creates a job with its balance hold, then dispatches it to the
// generation service. The hold strictly precedes the dispatch: money is
// reserved before any remote side effect can exist.
func (u *jobUseCaseImpl) Submit(ctx context.Context, p SubmitParams) (*SubmitResult, error) {
	if p.IdempotencyKey == uuid.Nil {
		return nil, errs.ErrIdempotencyKeyRequired
	}

	if result, err := u.findReplay(ctx, p); result != nil || err != nil {
		return result, err
	}

	entity, err := job.NewJob(p.IdempotencyKey, p.UserID, p.Amount, p.Payload, p.Destination)
	if err != nil {
		return nil, err
	}

	created, err := u.createWithHold(ctx, entity)
	if err != nil {
		if errs.Is(err, errs.ErrDuplicateRequest) {
			// lost a race on the same key; the winner's job is the answer
			if result, replayErr := u.findReplay(ctx, p); result != nil || replayErr != nil {
				return result, replayErr
			}
		}
		return nil, err
	}

	final, err := u.dispatch(ctx, entity, created)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Job: final, IsReplayed: false}, nil
}

// findReplay resolves a reused idempotency key. Same payload returns
// the existing job; a different payload is rejected outright.
func (u *jobUseCaseImpl) findReplay(ctx context.Context, p SubmitParams) (*SubmitResult, error) {
	existing, err := u.jobRepo.FindByIdempotencyKey(ctx, p.IdempotencyKey)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, nil
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	if existing.RequestHash != job.Fingerprint(p.UserID, p.Payload) {
		return nil, errs.ErrDuplicateRequest
	}
	return &SubmitResult{Job: existing, IsReplayed: true}, nil
}

func (u *jobUseCaseImpl) createWithHold(ctx context.Context, entity *job.Job) (*readmodel.JobRM, error) {
	var created *readmodel.JobRM
	err := u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
		if _, err := u.ledgerRepo.Hold(ctx, tx, entity.UserID(), entity.Amount(), entity.HoldID()); err != nil {
			switch {
			case infra.IsKind(err, infra.KindConflict):
				return errs.Mark(err, errs.ErrInsufficientFunds)
			case infra.IsKind(err, infra.KindNotFound):
				return errs.Mark(err, errs.ErrAccountNotFound)
			}
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}

		rm, err := u.jobRepo.Create(ctx, tx, entity)
		if err != nil {
			// rolling back also undoes the hold
			if infra.IsKind(err, infra.KindDuplicateKey) {
				return errs.Mark(err, errs.ErrDuplicateRequest)
			}
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		created = rm
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// dispatch sends the job to the generation service and records the
// result. A failed dispatch fails the job and releases its hold; the
// user never pays for work that was never started.
func (u *jobUseCaseImpl) dispatch(ctx context.Context, entity *job.Job, created *readmodel.JobRM) (*readmodel.JobRM, error) {
	externalRef, err := u.remote.Submit(ctx, generation.SubmitRequest{
		JobID:   entity.ID(),
		Payload: entity.Payload(),
	})
	if err != nil {
		slog.Warn("dispatch failed, failing job and releasing hold",
			"job_id", entity.ID(), "error", err.Error())
		if failErr := u.failUndispatched(ctx, entity.ID(), entity.HoldID(), err.Error()); failErr != nil {
			return nil, failErr
		}
		return u.refetch(ctx, created.ID)
	}

	err = u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
		moved, err := u.jobRepo.MarkDispatched(ctx, tx, entity.ID(), externalRef)
		if err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		if !moved {
			slog.Info("job left created before dispatch was recorded", "job_id", entity.ID())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.refetch(ctx, created.ID)
}

func (u *jobUseCaseImpl) failUndispatched(ctx context.Context, jobID, holdID uuid.UUID, reason string) error {
	return u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
		moved, err := u.jobRepo.TransitionTerminal(ctx, tx, jobID,
			[]job.State{job.StateCreated}, job.StateFailed, nil, &reason)
		if err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		if !moved {
			return nil
		}
		if err := u.ledgerRepo.Release(ctx, tx, holdID); err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		return nil
	})
}

func (u *jobUseCaseImpl) refetch(ctx context.Context, jobID uuid.UUID) (*readmodel.JobRM, error) {
	rm, err := u.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	return rm, nil
}

// Reconcile applies a terminal outcome. The job transition and the
// matching ledger move happen in one transaction, and only the caller
// that wins the compare-and-transition touches the ledger. A losing or
// repeated call is a silent no-op, so polling and callbacks converge.
func (u *jobUseCaseImpl) Reconcile(ctx context.Context, jobID uuid.UUID, outcome Outcome) error {
	if !outcome.State.IsTerminal() {
		return errs.Newf("outcome state %s is not terminal", outcome.State)
	}

	return u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
		rm, err := u.jobRepo.FindByIDTx(ctx, tx, jobID)
		if err != nil {
			if infra.IsKind(err, infra.KindNotFound) {
				return errs.Mark(err, errs.ErrJobNotFound)
			}
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		if job.State(rm.State).IsTerminal() {
			return nil
		}

		moved, err := u.jobRepo.TransitionTerminal(ctx, tx, jobID,
			[]job.State{job.StateCreated, job.StateDispatched},
			outcome.State, outcome.ResultPayload, outcome.ErrorText)
		if err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		if !moved {
			return nil
		}

		if outcome.State == job.StateSucceeded {
			err = u.ledgerRepo.Commit(ctx, tx, rm.HoldID)
		} else {
			err = u.ledgerRepo.Release(ctx, tx, rm.HoldID)
		}
		if err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}

		slog.Info("job reconciled",
			"job_id", jobID, "state", outcome.State, "hold_id", rm.HoldID)
		return nil
	})
}

// HandleCallback maps an unsolicited terminal callback from the
// generation service onto Reconcile. Non-terminal statuses are ignored.
func (u *jobUseCaseImpl) HandleCallback(ctx context.Context, cb CallbackParams) error {
	rm, err := u.jobRepo.FindByExternalRef(ctx, cb.ExternalRef)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return errs.Mark(err, errs.ErrJobNotFound)
		}
		return errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	outcome, terminal := callbackOutcome(cb)
	if !terminal {
		slog.Info("ignoring non-terminal callback",
			"job_id", rm.ID, "status", cb.Status)
		return nil
	}
	return u.Reconcile(ctx, rm.ID, outcome)
}

func callbackOutcome(cb CallbackParams) (Outcome, bool) {
	switch cb.Status {
	case "succeeded", "completed", "done":
		return Outcome{State: job.StateSucceeded, ResultPayload: cb.ResultPayload}, true
	case "failed", "canceled", "error":
		errText := cb.ErrorText
		if errText == "" {
			errText = "generation failed"
		}
		return Outcome{State: job.StateFailed, ErrorText: &errText}, true
	default:
		return Outcome{}, false
	}
}

// Cancel fails a job that has not been dispatched yet and returns its
// hold. Once the remote side may be doing work, cancel is refused.
func (u *jobUseCaseImpl) Cancel(ctx context.Context, jobID, userID uuid.UUID) (*readmodel.JobRM, error) {
	rm, err := u.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		if infra.IsKind(err, infra.KindNotFound) {
			return nil, errs.Mark(err, errs.ErrJobNotFound)
		}
		return nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	if rm.UserID != userID {
		return nil, errs.ErrJobNotFound
	}
	if job.State(rm.State) != job.StateCreated {
		return nil, errs.ErrJobNotCancelable
	}

	reason := "canceled by user"
	err = u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
		moved, err := u.jobRepo.TransitionTerminal(ctx, tx, jobID,
			[]job.State{job.StateCreated}, job.StateFailed, nil, &reason)
		if err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		if !moved {
			return errs.ErrJobNotCancelable
		}
		if err := u.ledgerRepo.Release(ctx, tx, rm.HoldID); err != nil {
			return errs.Mark(err, errs.ErrDatabaseOperationFailed)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.refetch(ctx, jobID)
}

// PollDispatched asks the generation service about in-flight jobs and
// reconciles any that finished. Run by the leader only.
func (u *jobUseCaseImpl) PollDispatched(ctx context.Context, limit int32) error {
	jobs, err := u.jobRepo.ListByState(ctx, job.StateDispatched, limit)
	if err != nil {
		return errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	for _, rm := range jobs {
		if rm.ExternalRef == nil {
			continue
		}
		result, err := u.remote.Poll(ctx, *rm.ExternalRef)
		if err != nil {
			if errs.Is(err, generation.ErrUnknownRef) {
				reason := "generation reference no longer known"
				if recErr := u.Reconcile(ctx, rm.ID, Outcome{State: job.StateFailed, ErrorText: &reason}); recErr != nil {
					return recErr
				}
				continue
			}
			slog.Warn("poll failed, will retry next tick",
				"job_id", rm.ID, "external_ref", *rm.ExternalRef, "error", err.Error())
			continue
		}

		switch result.Status {
		case generation.StatusSucceeded:
			if err := u.Reconcile(ctx, rm.ID, Outcome{
				State:         job.StateSucceeded,
				ResultPayload: result.ResultPayload,
			}); err != nil {
				return err
			}
		case generation.StatusFailed:
			errText := result.ErrorText
			if errText == "" {
				errText = "generation failed"
			}
			if err := u.Reconcile(ctx, rm.ID, Outcome{
				State:     job.StateFailed,
				ErrorText: &errText,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// SweepStale times out jobs stuck past their deadlines and returns
// their holds. Covers crashes between hold and dispatch and generation
// tasks that never report back.
func (u *jobUseCaseImpl) SweepStale(ctx context.Context) (int, error) {
	now := u.clock.Now()
	swept := 0

	n, err := u.sweep(ctx, job.StateCreated,
		now.Add(-u.genCfg.DispatchDeadline), "dispatch deadline exceeded")
	if err != nil {
		return swept, err
	}
	swept += n

	n, err = u.sweep(ctx, job.StateDispatched,
		now.Add(-u.genCfg.ReconcileDeadline), "reconcile deadline exceeded")
	if err != nil {
		return swept, err
	}
	swept += n

	return swept, nil
}

func (u *jobUseCaseImpl) sweep(ctx context.Context, state job.State, cutoff time.Time, reason string) (int, error) {
	stale, err := u.jobRepo.ListStale(ctx, state, cutoff, sweepBatchSize)
	if err != nil {
		return 0, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	swept := 0
	for _, rm := range stale {
		errText := reason
		err := u.uow.Within(ctx, func(ctx context.Context, tx repository.DBTX) error {
			moved, err := u.jobRepo.TransitionTerminal(ctx, tx, rm.ID,
				[]job.State{state}, job.StateTimedOut, nil, &errText)
			if err != nil {
				return errs.Mark(err, errs.ErrDatabaseOperationFailed)
			}
			if !moved {
				return nil
			}
			if err := u.ledgerRepo.Release(ctx, tx, rm.HoldID); err != nil {
				return errs.Mark(err, errs.ErrDatabaseOperationFailed)
			}
			swept++
			slog.Info("stale job timed out", "job_id", rm.ID, "prior_state", state)
			return nil
		})
		if err != nil {
			return swept, err
		}
	}
	return swept, nil
}
