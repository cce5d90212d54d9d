package executor

import (
	"autotrader/internal/config"
	"autotrader/internal/exchange"
	"autotrader/internal/repo"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("executor",
		fx.Provide(
			func(gateway exchange.Gateway, strategies *repo.Strategies, cfg *config.Config) *Executor {
				return NewExecutor(
					gateway,
					strategies,
					cfg.StrategyCycle,
					cfg.ErrorBackoff,
					cfg.PlaceAttempts,
					cfg.PlaceBackoffBase,
				)
			},
		),
	)
}
