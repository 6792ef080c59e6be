package worker

import (
	"context"
	"log/slog"
	"time"

	"genflow/internal/pkg/clock"
	"genflow/internal/pkg/config"
	"genflow/internal/usecase/commands"
)

// Janitor is the leader's cleanup loop: it times out jobs stuck past
// their deadlines, returning their holds, and garbage-collects
// processed queue rows past the retention window.
type Janitor struct {
	controller *Controller
	jobs       commands.JobCommands
	events     commands.EventCommands
	clock      clock.Clock
	cfg        config.WorkerConfig
}

func NewJanitor(
	controller *Controller,
	jobs commands.JobCommands,
	events commands.EventCommands,
	clock clock.Clock,
	cfg config.WorkerConfig,
) *Janitor {
	return &Janitor{
		controller: controller,
		jobs:       jobs,
		events:     events,
		clock:      clock,
		cfg:        cfg,
	}
}

func (j *Janitor) Run(ctx context.Context) {
	sweep := time.NewTicker(j.cfg.SweepInterval)
	defer sweep.Stop()
	purge := time.NewTicker(j.cfg.PurgeInterval)
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			if !j.controller.IsLeader() {
				continue
			}
			swept, err := j.jobs.SweepStale(ctx)
			if err != nil {
				slog.Warn("stale sweep failed", "error", err.Error())
			} else if swept > 0 {
				slog.Info("stale jobs timed out", "count", swept)
			}
		case <-purge.C:
			if !j.controller.IsLeader() {
				continue
			}
			if _, err := j.events.PurgeProcessed(ctx, j.cfg.EventRetention, j.clock.Now()); err != nil {
				slog.Warn("event purge failed", "error", err.Error())
			}
		}
	}
}
