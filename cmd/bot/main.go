package main

import (
	"context"
	"log"

	"autotrader/internal/condition"
	"autotrader/internal/config"
	"autotrader/internal/engine"
	"autotrader/internal/exchange"
	"autotrader/internal/executor"
	"autotrader/internal/marketdata"
	"autotrader/internal/notify"
	"autotrader/internal/repo"
	"autotrader/internal/watcher"
	"autotrader/pkg/logger"
	"autotrader/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	if err := logger.Init(); err != nil {
		log.Fatal(err)
	}
	logger.SetServiceName("autotrader")

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		repo.Module(),
		exchange.Module(),
		marketdata.Module(),
		condition.Module(),
		notify.Module(),
		watcher.Module(),
		executor.Module(),
		engine.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			if cfg.Jaeger.Host == "" {
				return nil
			}
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(_ context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
	)
	app.Run()
}
