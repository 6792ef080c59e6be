package bootstrap

import (
	"genflow/internal/pkg/config"
	"genflow/internal/pkg/token"

	"go.uber.org/fx"
)

var TokenModule = fx.Module("token",
	fx.Provide(
		NewTokenIssuer,
	),
)

func NewTokenIssuer(cfg config.Config) *token.Issuer {
	return token.NewIssuer(cfg.Auth.ServiceTokenSecret)
}
