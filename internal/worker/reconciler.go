package worker

import (
	"context"
	"log/slog"
	"time"

	"genflow/internal/pkg/config"
	"genflow/internal/usecase/commands"
)

// Reconciler is the leader's live loop: drain events buffered on other
// replicas, then poll the generation service for in-flight jobs.
type Reconciler struct {
	controller *Controller
	events     commands.EventCommands
	jobs       commands.JobCommands
	interval   time.Duration
	batchSize  int32
}

func NewReconciler(
	controller *Controller,
	events commands.EventCommands,
	jobs commands.JobCommands,
	genCfg config.GenerationConfig,
	workerCfg config.WorkerConfig,
) *Reconciler {
	return &Reconciler{
		controller: controller,
		events:     events,
		jobs:       jobs,
		interval:   genCfg.PollInterval,
		batchSize:  workerCfg.DrainBatchSize,
	}
}

func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !r.controller.IsLeader() {
				continue
			}
			r.tick(ctx)
		}
	}
}

func (r *Reconciler) tick(ctx context.Context) {
	if _, err := r.events.DrainPending(ctx, r.controller.HolderID(), r.batchSize); err != nil {
		slog.Warn("event drain failed", "error", err.Error())
	}
	if err := r.jobs.PollDispatched(ctx, r.batchSize); err != nil {
		slog.Warn("dispatched poll failed", "error", err.Error())
	}
}
