package engine

import (
	"context"
	"sync"
	"time"

	"autotrader/internal/condition"
	"autotrader/internal/exchange"
	"autotrader/internal/executor"
	"autotrader/internal/marketdata"
	"autotrader/internal/models"
	"autotrader/internal/repo"
	"autotrader/internal/tasks"
	"autotrader/internal/watcher"
	"autotrader/pkg/logger"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// WatcherStore is the persistence surface the engine needs for watchers.
type WatcherStore interface {
	Add(ctx context.Context, w models.Watcher) error
	Update(ctx context.Context, w models.Watcher) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (models.Watcher, error)
	GetActive(ctx context.Context) ([]models.Watcher, error)
}

// StrategyStore is the persistence surface the engine needs for strategies.
type StrategyStore interface {
	Add(ctx context.Context, s models.Strategy) error
	Update(ctx context.Context, s models.Strategy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (models.Strategy, error)
	GetActive(ctx context.Context) ([]models.Strategy, error)
}

// Engine owns the orchestration: it reconciles persisted entities into
// running monitor loops at startup and translates lifecycle events
// (created/paused/resumed/deleted) into registry start/stop calls.
type Engine struct {
	subs       *marketdata.SubscriptionManager
	eval       *condition.Evaluator
	monitor    *watcher.Monitor
	exec       *executor.Executor
	gateway    exchange.Gateway
	watchers   WatcherStore
	strategies StrategyStore

	mu       sync.Mutex
	registry *tasks.Registry
	cancel   context.CancelFunc
}

func New(
	subs *marketdata.SubscriptionManager,
	eval *condition.Evaluator,
	monitor *watcher.Monitor,
	exec *executor.Executor,
	gateway exchange.Gateway,
	watchers WatcherStore,
	strategies StrategyStore,
) *Engine {
	return &Engine{
		subs:       subs,
		eval:       eval,
		monitor:    monitor,
		exec:       exec,
		gateway:    gateway,
		watchers:   watchers,
		strategies: strategies,
	}
}

// Start reconciles persisted active entities into running loops and
// launches the periodic reconnection and health tickers. All loops run
// under a context derived from parent.
func (e *Engine) Start(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)

	e.mu.Lock()
	e.registry = tasks.NewRegistry(ctx)
	e.cancel = cancel
	e.mu.Unlock()

	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	go e.reconnectLoop(ctx)
	go e.healthLoop(ctx)
	return nil
}

// Stop cancels every loop and waits for all of them to exit.
func (e *Engine) Stop() {
	e.mu.Lock()
	registry := e.registry
	cancel := e.cancel
	e.mu.Unlock()

	if registry != nil {
		registry.StopAll()
	}
	if cancel != nil {
		cancel()
	}
	e.subs.Close()
}

// activeRegistry is the lifecycle-method precondition: the engine must
// have been started.
func (e *Engine) activeRegistry() (*tasks.Registry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registry == nil {
		return nil, errors.New("engine is not started")
	}
	return e.registry, nil
}

func (e *Engine) bootstrap(ctx context.Context) error {
	watchers, err := e.watchers.GetActive(ctx)
	if err != nil {
		return errors.Wrap(err, "load active watchers")
	}
	strategies, err := e.strategies.GetActive(ctx)
	if err != nil {
		return errors.Wrap(err, "load active strategies")
	}

	symbols := make([]string, 0, len(watchers))
	intervals := make([]models.Interval, 0, len(watchers))
	for _, w := range watchers {
		symbols = append(symbols, w.Symbol)
		intervals = append(intervals, w.Interval)
	}
	if len(watchers) > 0 {
		// failure is logged and alerted inside; the reconnect ticker retries
		e.subs.EnsureSubscribed(ctx, symbols, intervals)
	}

	for _, w := range watchers {
		e.registry.Start(categoryFor(w.Family), w.ID, e.monitor.Loop(w))
	}
	for _, s := range strategies {
		e.registry.Start(tasks.CategoryStrategy, s.ID, e.exec.Loop(s))
	}

	logger.Info("[engine] bootstrap: %d watchers, %d strategies", len(watchers), len(strategies))
	return nil
}

// CreateWatcher validates, persists and starts a new watcher. Validation
// failures are returned synchronously and never reach a running loop.
func (e *Engine) CreateWatcher(ctx context.Context, w models.Watcher) (models.Watcher, error) {
	if w.Symbol == "" {
		return models.Watcher{}, errors.New("symbol is required")
	}
	if _, ok := models.ParseInterval(string(w.Interval)); !ok {
		return models.Watcher{}, errors.Errorf("unsupported interval %q", w.Interval)
	}
	if w.Family != models.FamilyAlarm && w.Family != models.FamilyAlert {
		return models.Watcher{}, errors.Errorf("unknown watcher family %q", w.Family)
	}
	if ok, msg := e.eval.Validate(w.Expression); !ok {
		return models.Watcher{}, errors.Errorf("invalid expression: %s", msg)
	}

	registry, err := e.activeRegistry()
	if err != nil {
		return models.Watcher{}, err
	}

	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	w.Status = models.StatusRunning

	if err := e.watchers.Add(ctx, w); err != nil {
		return models.Watcher{}, err
	}

	e.subs.EnsureSubscribed(ctx, []string{w.Symbol}, []models.Interval{w.Interval})
	registry.Start(categoryFor(w.Family), w.ID, e.monitor.Loop(w))
	return w, nil
}

// PauseWatcher stops the monitor loop. The feed subscription stays: the
// universe is additive and other entities may share the key.
func (e *Engine) PauseWatcher(ctx context.Context, id string) error {
	registry, err := e.activeRegistry()
	if err != nil {
		return err
	}
	w, err := e.watchers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	w.Status = models.StatusPaused
	if err := e.watchers.Update(ctx, w); err != nil {
		return err
	}
	registry.Stop(categoryFor(w.Family), id)
	return nil
}

func (e *Engine) ResumeWatcher(ctx context.Context, id string) error {
	registry, err := e.activeRegistry()
	if err != nil {
		return err
	}
	w, err := e.watchers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	w.Status = models.StatusRunning
	if err := e.watchers.Update(ctx, w); err != nil {
		return err
	}
	e.subs.EnsureSubscribed(ctx, []string{w.Symbol}, []models.Interval{w.Interval})
	registry.Start(categoryFor(w.Family), w.ID, e.monitor.Loop(w))
	return nil
}

func (e *Engine) DeleteWatcher(ctx context.Context, id string) error {
	registry, err := e.activeRegistry()
	if err != nil {
		return err
	}
	w, err := e.watchers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	registry.Stop(categoryFor(w.Family), id)
	return e.watchers.Delete(ctx, id)
}

// CreateStrategy validates, persists and starts a new strategy.
func (e *Engine) CreateStrategy(ctx context.Context, s models.Strategy) (models.Strategy, error) {
	if s.Symbol == "" {
		return models.Strategy{}, errors.New("symbol is required")
	}
	if _, ok := models.ParseStrategyKind(string(s.Kind)); !ok {
		return models.Strategy{}, errors.Errorf("unknown strategy kind %q", s.Kind)
	}
	if s.Amount <= 0 {
		return models.Strategy{}, errors.New("amount must be positive")
	}
	if s.Volatility <= 0 || s.Volatility >= 1 {
		return models.Strategy{}, errors.New("volatility must be in (0, 1)")
	}
	if s.Leverage < 0 {
		return models.Strategy{}, errors.New("leverage must not be negative")
	}

	registry, err := e.activeRegistry()
	if err != nil {
		return models.Strategy{}, err
	}

	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s.Status = models.StatusRunning

	// the store holds the one-per-(symbol, account) invariant
	// transactionally, so concurrent creations cannot both land
	if err := e.strategies.Add(ctx, s); err != nil {
		if errors.Is(err, repo.ErrStrategyExists) {
			return models.Strategy{}, errors.Errorf("strategy for %s on %s already exists", s.Symbol, s.Account)
		}
		return models.Strategy{}, err
	}

	registry.Start(tasks.CategoryStrategy, s.ID, e.exec.Loop(s))
	return s, nil
}

func (e *Engine) PauseStrategy(ctx context.Context, id string) error {
	registry, err := e.activeRegistry()
	if err != nil {
		return err
	}
	s, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.Status = models.StatusPaused
	if err := e.strategies.Update(ctx, s); err != nil {
		return err
	}
	registry.Stop(tasks.CategoryStrategy, id)
	return nil
}

func (e *Engine) ResumeStrategy(ctx context.Context, id string) error {
	registry, err := e.activeRegistry()
	if err != nil {
		return err
	}
	s, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		return err
	}
	s.Status = models.StatusRunning
	if err := e.strategies.Update(ctx, s); err != nil {
		return err
	}
	registry.Start(tasks.CategoryStrategy, s.ID, e.exec.Loop(s))
	return nil
}

// DeleteStrategy stops the loop, cancels any open order and removes the
// strategy. The cancel is best-effort: a failure is logged but does not
// keep the strategy alive.
func (e *Engine) DeleteStrategy(ctx context.Context, id string) error {
	registry, err := e.activeRegistry()
	if err != nil {
		return err
	}
	s, err := e.strategies.GetByID(ctx, id)
	if err != nil {
		return err
	}

	registry.Stop(tasks.CategoryStrategy, id)

	if s.HasOpenOrder && s.OrderID != nil {
		if _, err := e.gateway.CancelOrder(ctx, s.Symbol, *s.OrderID); err != nil {
			logger.Error("[engine] cancel order %d for deleted strategy %s failed: %v", *s.OrderID, id, err)
		}
	}
	return e.strategies.Delete(ctx, id)
}

func (e *Engine) reconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.subs.NeedsReconnection() {
				logger.Info("[engine] forced feed reconnection due")
				e.subs.EnsureSubscribed(ctx, nil, nil)
			}
		}
	}
}

func (e *Engine) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			symbols, intervals := e.subs.Universe()
			logger.Info("[engine] health: strategies=%d alarms=%d alerts=%d universe=%dx%d",
				len(e.registry.ListActive(tasks.CategoryStrategy)),
				len(e.registry.ListActive(tasks.CategoryAlarm)),
				len(e.registry.ListActive(tasks.CategoryAlert)),
				len(symbols), len(intervals))
		}
	}
}

func categoryFor(family models.WatcherFamily) tasks.Category {
	if family == models.FamilyAlarm {
		return tasks.CategoryAlarm
	}
	return tasks.CategoryAlert
}
