package components

import (
	"genflow/internal/pkg/clock"
	"genflow/internal/usecase/commands"
	"genflow/internal/usecase/queries"

	"go.uber.org/fx"
)

var UseCaseModule = fx.Module("usecase",
	usecaseBaseOption,
	usecaseCommandsModule,
	usecaseQueriesModule,
)

var usecaseBaseOption = fx.Provide(
	clock.NewRealClock,
)

var usecaseCommandsModule = fx.Module("usecase/commands",
	fx.Provide(
		commands.NewJobUseCase,
		commands.NewAccountUseCase,
		commands.NewEventUseCase,
	),
)

var usecaseQueriesModule = fx.Module("usecase/queries",
	fx.Provide(
		queries.NewJobQueries,
		queries.NewAccountQueries,
	),
)
