package bootstrap

import (
	"genflow/internal/pkg/config"

	"go.uber.org/fx"
)

var ConfigModule = fx.Module("config",
	fx.Provide(
		config.LoadConfig,
		func(cfg config.Config) config.GenerationConfig { return cfg.Generation },
		func(cfg config.Config) config.DeliveryConfig { return cfg.Delivery },
		func(cfg config.Config) config.LeaderConfig { return cfg.Leader },
		func(cfg config.Config) config.WorkerConfig { return cfg.Worker },
	),
)
