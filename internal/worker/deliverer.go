package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"genflow/internal/infra/delivery"
	"genflow/internal/pkg/config"
	"genflow/internal/pkg/errs"
	"genflow/internal/usecase/readmodel"
)

type UndeliveredLister interface {
	ListUndelivered(ctx context.Context, limit int32) ([]*readmodel.JobRM, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, outcome string) (bool, error)
}

type ArtifactDeliverer interface {
	Deliver(ctx context.Context, j *readmodel.JobRM) (delivery.Outcome, error)
}

// Deliverer pushes finished artifacts out. Delivery is decoupled from
// payment: a succeeded job is already settled, and a delivery that
// keeps failing is retried on the next tick, never refunded.
type Deliverer struct {
	controller  *Controller
	jobs        UndeliveredLister
	coordinator ArtifactDeliverer
	interval    time.Duration
	batchSize   int32
}

func NewDeliverer(
	controller *Controller,
	jobs UndeliveredLister,
	coordinator ArtifactDeliverer,
	deliveryCfg config.DeliveryConfig,
	workerCfg config.WorkerConfig,
) *Deliverer {
	return &Deliverer{
		controller:  controller,
		jobs:        jobs,
		coordinator: coordinator,
		interval:    deliveryCfg.RetryInterval,
		batchSize:   workerCfg.DrainBatchSize,
	}
}

func (d *Deliverer) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.controller.IsLeader() {
				continue
			}
			d.tick(ctx)
		}
	}
}

func (d *Deliverer) tick(ctx context.Context) {
	jobs, err := d.jobs.ListUndelivered(ctx, d.batchSize)
	if err != nil {
		slog.Warn("undelivered listing failed", "error", err.Error())
		return
	}

	for _, rm := range jobs {
		outcome, err := d.coordinator.Deliver(ctx, rm)
		if err != nil {
			// a result without an artifact can never deliver; close it
			// instead of re-listing it every tick
			if errs.Is(err, delivery.ErrNoArtifact) {
				if _, markErr := d.jobs.MarkDelivered(ctx, rm.ID, string(delivery.OutcomeUndeliverable)); markErr != nil {
					slog.Warn("failed to close undeliverable job", "job_id", rm.ID, "error", markErr.Error())
					continue
				}
				slog.Warn("job closed as undeliverable",
					"job_id", rm.ID, "destination", rm.Destination, "error", err.Error())
				continue
			}
			slog.Warn("delivery failed, will retry",
				"job_id", rm.ID, "destination", rm.Destination, "error", err.Error())
			continue
		}
		if _, err := d.jobs.MarkDelivered(ctx, rm.ID, string(outcome)); err != nil {
			slog.Warn("failed to record delivery", "job_id", rm.ID, "error", err.Error())
			continue
		}
		slog.Info("artifact delivered", "job_id", rm.ID, "outcome", outcome)
	}
}
