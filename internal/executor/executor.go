package executor

import (
	"context"
	"fmt"
	"time"

	"autotrader/internal/exchange"
	"autotrader/internal/models"
	"autotrader/internal/tasks"
	"autotrader/pkg/logger"

	"github.com/pkg/errors"
)

// Strategies persists strategy state after every cycle.
type Strategies interface {
	Update(ctx context.Context, s models.Strategy) error
}

// Executor runs the per-strategy order lifecycle: daily reset, order
// placement with retry, status reconciliation and cancellation.
type Executor struct {
	gateway     exchange.Gateway
	store       Strategies
	cycle       time.Duration
	errBackoff  time.Duration
	attempts    int
	backoffBase time.Duration

	now func() time.Time
}

func NewExecutor(
	gateway exchange.Gateway,
	store Strategies,
	cycle, errBackoff time.Duration,
	attempts int,
	backoffBase time.Duration,
) *Executor {
	return &Executor{
		gateway:     gateway,
		store:       store,
		cycle:       cycle,
		errBackoff:  errBackoff,
		attempts:    attempts,
		backoffBase: backoffBase,
		now:         time.Now,
	}
}

// Loop returns the registry loop body for one strategy. Iterations are
// strictly sequential; failures are logged and absorbed, the loop exits
// only via cancellation.
func (e *Executor) Loop(st models.Strategy) tasks.LoopFunc {
	return func(ctx context.Context) {
		logger.Info("[executor] strategy %s started (%s %s %s)", st.ID, st.Kind, st.Symbol, st.Account)
		defer logger.Info("[executor] strategy %s stopped", st.ID)

		for {
			if err := e.RunCycle(ctx, &st); err != nil {
				logger.Error("[executor] %s cycle failed: %v", st.ID, err)
				if !sleepCtx(ctx, e.errBackoff) {
					return
				}
			}
			if !sleepCtx(ctx, e.cycle) {
				return
			}
		}
	}
}

// RunCycle executes one pass of the strategy state machine against the
// venue and persists the resulting state. A persistence error is
// returned (fatal for the cycle): in-memory and stored state must not
// diverge silently.
func (e *Executor) RunCycle(ctx context.Context, st *models.Strategy) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()

	behavior, err := behaviorFor(st.Kind)
	if err != nil {
		return err
	}
	if behavior.skip(st.Account) {
		return nil
	}

	today := dateOnly(e.now())
	if st.LastTradeDate == nil || !st.LastTradeDate.Equal(today) {
		if err := e.resetForDay(ctx, st, behavior, today); err != nil {
			return err
		}
	}

	if !st.IsTradedToday {
		if st.HasOpenOrder {
			e.reconcileOrder(ctx, st, today)
		} else {
			e.tryPlaceOrder(ctx, st, behavior)
		}
	}

	if err := e.store.Update(ctx, *st); err != nil {
		return errors.Wrap(err, "persist strategy")
	}
	return nil
}

// resetForDay is the daily rollover: cancel whatever survived from the
// previous day, fetch the fresh reference price and recompute the
// step-adjusted target price and quantity.
func (e *Executor) resetForDay(ctx context.Context, st *models.Strategy, behavior kindBehavior, day time.Time) error {
	if st.HasOpenOrder && st.OrderID != nil {
		if _, err := e.gateway.CancelOrder(ctx, st.Symbol, *st.OrderID); err != nil {
			// best-effort; the stale-order check will retry the cancel
			logger.Error("[executor] %s rollover cancel of order %d failed: %v", st.ID, *st.OrderID, err)
		}
	}

	if st.Account == models.AccountFutures && st.Leverage > 0 {
		if err := e.gateway.SetLeverage(ctx, st.Symbol, st.Leverage); err != nil {
			return errors.Wrapf(err, "set leverage for %s", st.Symbol)
		}
	}

	klines, err := e.gateway.GetKlines(ctx, st.Symbol, models.Interval1d, time.Time{}, 2)
	if err != nil || len(klines) == 0 {
		logger.Alert("[executor] %s daily reference price fetch failed for %s: %v", st.ID, st.Symbol, err)
		return errors.Errorf("fetch daily klines for %s: %v", st.Symbol, err)
	}
	prevDay := klines[0]
	todayBar := klines[len(klines)-1]
	ref := behavior.referencePrice(prevDay, todayBar)

	filters, err := e.gateway.GetSymbolFilters(ctx, st.Symbol)
	if err != nil {
		return errors.Wrapf(err, "fetch filters for %s", st.Symbol)
	}

	target := behavior.targetPrice(ref, st.Volatility)
	price, err := adjustToStep(target, filters.PriceStep, filters.MinPrice, filters.MaxPrice)
	if err != nil {
		return errors.Wrapf(err, "target price for %s", st.Symbol)
	}
	quantity, err := adjustToStep(st.Amount/price, filters.QtyStep, filters.MinQty, filters.MaxQty)
	if err != nil {
		return errors.Wrapf(err, "quantity for %s", st.Symbol)
	}

	st.TargetPrice = price
	st.Quantity = quantity
	st.IsTradedToday = false
	st.HasOpenOrder = false
	st.OrderID = nil
	st.OrderPlacedAt = nil
	st.LastTradeDate = &day

	logger.Info("[executor] %s reset for %s: target=%g qty=%g (ref=%g)",
		st.ID, day.Format("2006-01-02"), price, quantity, ref)
	return nil
}

// reconcileOrder queries the venue for the open order and applies the
// state transition. Venue errors are absorbed until the next cycle.
func (e *Executor) reconcileOrder(ctx context.Context, st *models.Strategy, today time.Time) {
	if st.OrderID == nil {
		// invariant guard: open flag with no id is repaired, not raised
		st.HasOpenOrder = false
		return
	}

	order, err := e.gateway.GetOrder(ctx, st.Symbol, *st.OrderID)
	if err != nil {
		logger.Error("[executor] %s status check of order %d failed: %v", st.ID, *st.OrderID, err)
		return
	}

	switch order.Status {
	case models.OrderFilled:
		st.HasOpenOrder = false
		st.IsTradedToday = true
		st.Quantity = order.ExecutedQty
		logger.Info("[executor] %s order %d filled, qty=%g", st.ID, order.ID, order.ExecutedQty)

	case models.OrderCanceled, models.OrderRejected, models.OrderExpired:
		st.HasOpenOrder = false
		st.OrderID = nil
		st.OrderPlacedAt = nil

	default:
		// still open; an order carried over from a previous day is dead weight
		if st.OrderPlacedAt != nil && dateOnly(*st.OrderPlacedAt).Before(today) {
			if _, err := e.gateway.CancelOrder(ctx, st.Symbol, *st.OrderID); err != nil {
				logger.Error("[executor] %s cancel of stale order %d failed: %v", st.ID, *st.OrderID, err)
				return
			}
			st.HasOpenOrder = false
			st.OrderID = nil
			st.OrderPlacedAt = nil
		}
	}
}

// tryPlaceOrder attempts placement with exponential backoff. After the
// attempts are exhausted the failure is raised to the operational-alert
// channel and the cycle ends without an open order — the next cycle
// retries from scratch.
func (e *Executor) tryPlaceOrder(ctx context.Context, st *models.Strategy, behavior kindBehavior) {
	if st.TargetPrice <= 0 || st.Quantity <= 0 {
		return
	}

	delay := e.backoffBase
	for attempt := 1; attempt <= e.attempts; attempt++ {
		order, err := e.gateway.PlaceOrder(ctx, st.Symbol, behavior.side, st.Quantity, st.TargetPrice, "GTC")
		if err == nil {
			id := order.ID
			placedAt := e.now()
			st.OrderID = &id
			st.HasOpenOrder = true
			st.OrderPlacedAt = &placedAt
			logger.Info("[executor] %s placed %s %s qty=%g price=%g (order %d)",
				st.ID, behavior.side, st.Symbol, st.Quantity, st.TargetPrice, id)
			return
		}

		logger.Error("[executor] %s place attempt %d/%d failed: %v", st.ID, attempt, e.attempts, err)
		if attempt < e.attempts {
			if !sleepCtx(ctx, delay) {
				return
			}
			delay *= 2
		}
	}

	logger.Alert("[executor] %s order placement exhausted %d attempts: %s %s qty=%g price=%g",
		st.ID, e.attempts, behavior.side, st.Symbol, st.Quantity, st.TargetPrice)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
