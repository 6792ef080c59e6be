package worker

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"genflow/internal/pkg/config"
	"genflow/internal/usecase/commands"
)

// LeaseRepository is the lease store port, one conditional statement
// per operation.
type LeaseRepository interface {
	TryAcquire(ctx context.Context, name string, holderID uuid.UUID, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, name string, holderID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string, holderID uuid.UUID) error
}

// Controller runs the leader election loop. Exactly one replica holds
// the lease; only that replica processes events, polls the generation
// service and sweeps stale jobs. Everyone else just keeps trying.
type Controller struct {
	leaseRepo LeaseRepository
	events    commands.EventCommands
	cfg       config.LeaderConfig
	batchSize int32

	holderID uuid.UUID
	isLeader atomic.Bool
}

func NewController(
	leaseRepo LeaseRepository,
	events commands.EventCommands,
	cfg config.LeaderConfig,
	workerCfg config.WorkerConfig,
) *Controller {
	return &Controller{
		leaseRepo: leaseRepo,
		events:    events,
		cfg:       cfg,
		batchSize: workerCfg.DrainBatchSize,
		holderID:  uuid.New(),
	}
}

func (c *Controller) IsLeader() bool {
	return c.isLeader.Load()
}

func (c *Controller) HolderID() uuid.UUID {
	return c.holderID
}

// Run drives acquire/renew until ctx is canceled. Renewal runs at a
// third of the TTL so a single missed tick cannot cost the lease; a
// failed renewal demotes immediately.
func (c *Controller) Run(ctx context.Context) {
	slog.Info("leader controller started",
		"lease", c.cfg.LeaseName, "holder_id", c.holderID, "ttl", c.cfg.LeaseTTL)

	ticker := time.NewTicker(c.cfg.RenewInterval())
	defer ticker.Stop()

	c.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-ticker.C:
			c.tick(ctx)
		}
	}
}

func (c *Controller) tick(ctx context.Context) {
	if c.isLeader.Load() {
		c.renew(ctx)
		return
	}
	c.tryPromote(ctx)
}

func (c *Controller) renew(ctx context.Context) {
	renewed, err := c.leaseRepo.Renew(ctx, c.cfg.LeaseName, c.holderID, c.cfg.LeaseTTL)
	if err != nil || !renewed {
		c.isLeader.Store(false)
		if err != nil {
			slog.Warn("lease renewal errored, demoting", "holder_id", c.holderID, "error", err.Error())
		} else {
			slog.Warn("lease lost, demoting", "holder_id", c.holderID)
		}
	}
}

func (c *Controller) tryPromote(ctx context.Context) {
	acquired, err := c.leaseRepo.TryAcquire(ctx, c.cfg.LeaseName, c.holderID, c.cfg.LeaseTTL)
	if err != nil {
		slog.Warn("lease acquisition failed", "holder_id", c.holderID, "error", err.Error())
		return
	}
	if !acquired {
		return
	}

	slog.Info("lease acquired, promoting", "holder_id", c.holderID)

	// Backlog first: events buffered while there was no leader (or a
	// different one) are processed in order before live traffic.
	if err := c.drainBacklog(ctx); err != nil {
		slog.Error("backlog drain failed, staying follower",
			"holder_id", c.holderID, "error", err.Error())
		return
	}
	c.isLeader.Store(true)
}

func (c *Controller) drainBacklog(ctx context.Context) error {
	for {
		processed, err := c.events.DrainPending(ctx, c.holderID, c.batchSize)
		if err != nil {
			return err
		}
		if processed == 0 {
			return nil
		}
		slog.Info("drained buffered events", "holder_id", c.holderID, "count", processed)
	}
}

func (c *Controller) shutdown() {
	if !c.isLeader.Swap(false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.leaseRepo.Release(ctx, c.cfg.LeaseName, c.holderID); err != nil {
		slog.Warn("lease release failed on shutdown", "holder_id", c.holderID, "error", err.Error())
		return
	}
	slog.Info("lease released", "holder_id", c.holderID)
}
