package marketdata

import (
	"autotrader/internal/config"
	"autotrader/internal/exchange"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("marketdata",
		fx.Provide(
			NewCache, // *Cache
			func(feed exchange.Feed, cache *Cache, cfg *config.Config) *SubscriptionManager {
				return NewSubscriptionManager(feed, cache, cfg.ReconnectAfter)
			},
		),
	)
}
