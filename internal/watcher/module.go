package watcher

import (
	"time"

	"autotrader/internal/condition"
	"autotrader/internal/config"
	"autotrader/internal/marketdata"
	"autotrader/internal/models"
	"autotrader/internal/notify"
	"autotrader/internal/repo"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("watcher",
		fx.Provide(
			func(
				cache *marketdata.Cache,
				eval *condition.Evaluator,
				notifier notify.Notifier,
				watchers *repo.Watchers,
				cfg *config.Config,
			) *Monitor {
				cooldowns := map[models.WatcherFamily]time.Duration{
					models.FamilyAlarm: cfg.AlarmCooldown,
					models.FamilyAlert: cfg.AlertCooldown,
				}
				return NewMonitor(cache, eval, notifier, watchers, cfg.WatcherPoll, cfg.ErrorBackoff, cooldowns)
			},
		),
	)
}
