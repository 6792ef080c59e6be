package components

import (
	"genflow/internal/infra/delivery"
	"genflow/internal/infra/generation"
	repo_impl "genflow/internal/infra/repository"
	"genflow/internal/infra/uow"
	"genflow/internal/usecase/commands"
	"genflow/internal/usecase/queries"
	"genflow/internal/worker"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
)

var RepositoryModule = fx.Module("repository",
	fx.Provide(
		NewDBTX,
		uow.NewPostgresUoW,
		// The job repository serves three sides: writes for commands,
		// reads for queries, the undelivered scan for the deliverer.
		fx.Annotate(
			repo_impl.NewJobRepository,
			fx.As(new(commands.JobRepository)),
			fx.As(new(queries.JobReader)),
			fx.As(new(worker.UndeliveredLister)),
		),
		fx.Annotate(
			repo_impl.NewLedgerRepository,
			fx.As(new(commands.LedgerRepository)),
			fx.As(new(queries.AccountReader)),
		),
		fx.Annotate(
			repo_impl.NewPendingEventRepository,
			fx.As(new(commands.EventRepository)),
		),
		fx.Annotate(
			repo_impl.NewLeaseRepository,
			fx.As(new(worker.LeaseRepository)),
		),
		fx.Annotate(
			generation.NewClient,
			fx.As(new(commands.GenerationClient)),
		),
		fx.Annotate(
			delivery.NewHTTPChannelClient,
			fx.As(new(delivery.ChannelSender)),
		),
		fx.Annotate(
			delivery.NewCoordinator,
			fx.As(new(worker.ArtifactDeliverer)),
		),
	),
)

func NewDBTX(pool *pgxpool.Pool) repo_impl.DBTX {
	return pool
}
