package commands

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

const (
	eventTypeSubmit   = "job.submit"
	eventTypeCallback = "generation.callback"

	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeSkipped = "skipped"
)

// eventEnvelope is the persisted shape of a buffered request. Exactly
// one of the optional fields is set, matching Type.
type eventEnvelope struct {
	Type     string          `json:"type"`
	Submit   *SubmitParams   `json:"submit,omitempty"`
	Callback *CallbackParams `json:"callback,omitempty"`
}

type EventCommands interface {
	EnqueueSubmit(ctx context.Context, p SubmitParams) (uuid.UUID, error)
	EnqueueCallback(ctx context.Context, cb CallbackParams) (uuid.UUID, error)
	DrainPending(ctx context.Context, holderID uuid.UUID, batchSize int32) (int, error)
	PurgeProcessed(ctx context.Context, retention time.Duration, now time.Time) (int64, error)
}

type eventUseCaseImpl struct {
	eventRepo EventRepository
	jobCmds   JobCommands
}

func NewEventUseCase(eventRepo EventRepository, jobCmds JobCommands) EventCommands {
	return &eventUseCaseImpl{eventRepo: eventRepo, jobCmds: jobCmds}
}

// EnqueueSubmit buffers a submit request for the leader. It never acts
// on the request itself; a non-leader only records intent.
func (u *eventUseCaseImpl) EnqueueSubmit(ctx context.Context, p SubmitParams) (uuid.UUID, error) {
	if p.IdempotencyKey == uuid.Nil {
		return uuid.Nil, errs.ErrIdempotencyKeyRequired
	}
	return u.enqueue(ctx, eventEnvelope{Type: eventTypeSubmit, Submit: &p})
}

func (u *eventUseCaseImpl) EnqueueCallback(ctx context.Context, cb CallbackParams) (uuid.UUID, error) {
	return u.enqueue(ctx, eventEnvelope{Type: eventTypeCallback, Callback: &cb})
}

func (u *eventUseCaseImpl) enqueue(ctx context.Context, env eventEnvelope) (uuid.UUID, error) {
	payload, err := json.Marshal(env)
	if err != nil {
		return uuid.Nil, errs.Wrap(err, "failed to encode pending event")
	}
	id, err := u.eventRepo.Enqueue(ctx, payload)
	if err != nil {
		return uuid.Nil, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	slog.Info("event buffered for leader", "event_id", id, "type", env.Type)
	return id, nil
}

// DrainPending processes buffered events in enqueue order. Each event
// is marked processed whatever its outcome; the submit and reconcile
// paths are idempotent, so a crash between processing and marking only
// causes a harmless replay.
func (u *eventUseCaseImpl) DrainPending(ctx context.Context, holderID uuid.UUID, batchSize int32) (int, error) {
	events, err := u.eventRepo.Drain(ctx, holderID, batchSize)
	if err != nil {
		return 0, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}

	processed := 0
	for _, ev := range events {
		outcome, procErr := u.process(ctx, ev)

		var lastError *string
		if procErr != nil {
			msg := procErr.Error()
			lastError = &msg
			slog.Warn("pending event processing failed",
				"event_id", ev.ID, "attempts", ev.Attempts, "error", msg)
		}
		if markErr := u.eventRepo.MarkProcessed(ctx, ev.ID, outcome, lastError); markErr != nil {
			return processed, errs.Mark(markErr, errs.ErrDatabaseOperationFailed)
		}
		processed++
	}
	return processed, nil
}

func (u *eventUseCaseImpl) process(ctx context.Context, ev *readmodel.PendingEventRM) (string, error) {
	var env eventEnvelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		return outcomeFailed, errs.Wrap(err, "malformed pending event payload")
	}

	switch {
	case env.Type == eventTypeSubmit && env.Submit != nil:
		if _, err := u.jobCmds.Submit(ctx, *env.Submit); err != nil {
			return outcomeFailed, err
		}
		return outcomeOK, nil

	case env.Type == eventTypeCallback && env.Callback != nil:
		if err := u.jobCmds.HandleCallback(ctx, *env.Callback); err != nil {
			if errs.Is(err, errs.ErrJobNotFound) {
				return outcomeSkipped, err
			}
			return outcomeFailed, err
		}
		return outcomeOK, nil

	default:
		return outcomeFailed, errs.Newf("unknown pending event type %q", env.Type)
	}
}

func (u *eventUseCaseImpl) PurgeProcessed(ctx context.Context, retention time.Duration, now time.Time) (int64, error) {
	purged, err := u.eventRepo.PurgeOlderThan(ctx, now.Add(-retention))
	if err != nil {
		return 0, errs.Mark(err, errs.ErrDatabaseOperationFailed)
	}
	if purged > 0 {
		slog.Info("purged processed events", "count", purged)
	}
	return purged, nil
}
