package components

import (
	"genflow/internal/handler"
	"genflow/internal/handler/api"
	"genflow/internal/handler/middleware"

	"go.uber.org/fx"
)

var HandlerModule = fx.Module("handler",
	fx.Provide(
		api.NewJobHandler,
		api.NewCallbackHandler,
		api.NewAccountHandler,
		middleware.NewAuthMiddleware,
	),
	fx.Invoke(handler.NewRouter),
)
