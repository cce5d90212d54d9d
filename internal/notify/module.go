package notify

import (
	"autotrader/internal/config"
	"autotrader/pkg/logger"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("notify",
		// User-facing notifier for watcher triggers. Without a token the
		// bot degrades to stdout so local runs stay usable.
		fx.Provide(
			func(cfg *config.Config) (Notifier, error) {
				if cfg.Telegram.Token == "" {
					return NewStdout(), nil
				}
				return NewTelegram(cfg.Telegram.Token, cfg.Telegram.UserChatID)
			},
		),
		// Ops chat doubles as the sink for elevated-severity log events.
		fx.Invoke(func(cfg *config.Config) error {
			if cfg.Telegram.Token == "" || cfg.Telegram.OpsChatID == 0 {
				logger.SetAlertSink(NewStdout())
				return nil
			}
			ops, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.OpsChatID)
			if err != nil {
				return err
			}
			logger.SetAlertSink(ops)
			return nil
		}),
	)
}
