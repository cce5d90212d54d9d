package exchange

import (
	"autotrader/internal/config"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			func(cfg *config.Config) Gateway {
				return NewBinanceClient(cfg.Binance.RestURL, cfg.Binance.APIKey, cfg.Binance.APISecret)
			},
			func(cfg *config.Config) Feed {
				return NewWsFeed(cfg.Binance.WsURL)
			},
		),
	)
}
