package watcher

import (
	"context"
	"fmt"
	"time"

	"autotrader/internal/condition"
	"autotrader/internal/marketdata"
	"autotrader/internal/models"
	"autotrader/internal/tasks"
	"autotrader/pkg/logger"

	"github.com/pkg/errors"
)

// Sender delivers a trigger message to a chat.
type Sender interface {
	Notify(chatID int64, text string) error
}

// Store persists watcher notification state.
type Store interface {
	UpdateLastNotification(ctx context.Context, id string, at time.Time) error
}

// Monitor builds per-watcher loops: each cycle reads the latest closed
// candle for the watcher's key, evaluates the condition and notifies,
// subject to the family's cooldown.
type Monitor struct {
	cache      *marketdata.Cache
	eval       *condition.Evaluator
	sender     Sender
	store      Store
	poll       time.Duration
	errBackoff time.Duration
	cooldowns  map[models.WatcherFamily]time.Duration
}

func NewMonitor(
	cache *marketdata.Cache,
	eval *condition.Evaluator,
	sender Sender,
	store Store,
	poll, errBackoff time.Duration,
	cooldowns map[models.WatcherFamily]time.Duration,
) *Monitor {
	return &Monitor{
		cache:      cache,
		eval:       eval,
		sender:     sender,
		store:      store,
		poll:       poll,
		errBackoff: errBackoff,
		cooldowns:  cooldowns,
	}
}

// Loop returns the registry loop body for one watcher. The loop owns its
// copy of the watcher and exits only via cancellation; iteration
// failures are logged and followed by a backoff sleep.
func (m *Monitor) Loop(w models.Watcher) tasks.LoopFunc {
	return func(ctx context.Context) {
		logger.Info("[watcher] %s monitor started for %s %s %s", w.Family, w.ID, w.Symbol, w.Interval)
		defer logger.Info("[watcher] %s monitor stopped for %s", w.Family, w.ID)

		for {
			if err := m.runOnce(ctx, &w); err != nil {
				logger.Error("[watcher] %s iteration failed: %v", w.ID, err)
				if !sleepCtx(ctx, m.errBackoff) {
					return
				}
			}
			if !sleepCtx(ctx, m.poll) {
				return
			}
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context, w *models.Watcher) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	candle, ok := m.cache.Get(w.Symbol, w.Interval)
	if !ok {
		// feed not warmed up for this key yet; not an error
		return nil
	}

	if time.Since(w.LastNotification) < m.cooldownFor(w.Family) {
		return nil
	}

	if !m.eval.Evaluate(w.Expression, candle.Open, candle.Close, candle.High, candle.Low) {
		return nil
	}

	text := fmt.Sprintf("🔔 %s %s %s\n%s\nopen=%g close=%g high=%g low=%g",
		w.Symbol, w.Interval, w.Family, w.Expression,
		candle.Open, candle.Close, candle.High, candle.Low)
	if err := m.sender.Notify(w.ChatID, text); err != nil {
		// lastNotification stays put, so the send is retried on the
		// next qualifying candle
		return errors.Wrap(err, "notify")
	}

	now := time.Now()
	w.LastNotification = now
	return m.store.UpdateLastNotification(ctx, w.ID, now)
}

func (m *Monitor) cooldownFor(family models.WatcherFamily) time.Duration {
	if d, ok := m.cooldowns[family]; ok {
		return d
	}
	return time.Minute
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
