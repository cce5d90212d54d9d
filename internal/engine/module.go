package engine

import (
	"context"

	"autotrader/internal/repo"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("engine",
		fx.Provide(
			func(r *repo.Watchers) WatcherStore {
				return r
			},
			func(r *repo.Strategies) StrategyStore {
				return r
			},
			New, // *Engine
		),
		fx.Invoke(func(lc fx.Lifecycle, e *Engine, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					return e.Start(ctx)
				},
				OnStop: func(_ context.Context) error {
					e.Stop()
					return nil
				},
			})
		}),
	)
}
