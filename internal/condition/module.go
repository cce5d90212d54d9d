package condition

import (
	"autotrader/internal/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("condition",
		fx.Provide(
			func(cfg *config.Config) *Evaluator {
				return NewEvaluator(cfg.EvalTimeout, cfg.EvalMaxDepth)
			},
		),
	)
}
