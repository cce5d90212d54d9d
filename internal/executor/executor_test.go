package executor

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"autotrader/internal/models"
	"autotrader/pkg/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.InfoLogger = zap.NewNop()
	logger.FatalLogger = zap.NewNop()
	os.Exit(m.Run())
}

type fakeGateway struct {
	mu sync.Mutex

	placeCalls  int
	placeErr    error
	placeResult models.Order

	getResult models.Order
	getErr    error

	cancelCalls []int64
	cancelErr   error

	klines    []models.Candle
	klinesErr error

	filters    models.SymbolFilters
	filtersErr error

	leverageCalls []int
	leverageErr   error
}

func (g *fakeGateway) GetOrder(_ context.Context, _ string, _ int64) (models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getResult, g.getErr
}

func (g *fakeGateway) PlaceOrder(_ context.Context, symbol string, side models.OrderSide, quantity, price float64, _ string) (models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeCalls++
	if g.placeErr != nil {
		return models.Order{}, g.placeErr
	}
	result := g.placeResult
	result.Symbol = symbol
	result.Side = side
	result.OrigQty = quantity
	result.Price = price
	return result, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, _ string, orderID int64) (models.Order, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCalls = append(g.cancelCalls, orderID)
	if g.cancelErr != nil {
		return models.Order{}, g.cancelErr
	}
	return models.Order{ID: orderID, Status: models.OrderCanceled}, nil
}

func (g *fakeGateway) GetKlines(_ context.Context, _ string, _ models.Interval, _ time.Time, _ int) ([]models.Candle, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.klines, g.klinesErr
}

func (g *fakeGateway) SetLeverage(_ context.Context, _ string, leverage int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.leverageCalls = append(g.leverageCalls, leverage)
	return g.leverageErr
}

func (g *fakeGateway) GetSymbolFilters(_ context.Context, _ string) (models.SymbolFilters, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.filters, g.filtersErr
}

type fakeStrategyStore struct {
	mu      sync.Mutex
	updates []models.Strategy
	err     error
}

func (s *fakeStrategyStore) Update(_ context.Context, st models.Strategy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, st)
	return nil
}

type fakeAlertSink struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeAlertSink) SendAlert(text string) {
	f.mu.Lock()
	f.msgs = append(f.msgs, text)
	f.mu.Unlock()
}

func (f *fakeAlertSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

var testFilters = models.SymbolFilters{
	PriceStep: 0.01,
	MinPrice:  0.01,
	MaxPrice:  1000000,
	QtyStep:   0.00001,
	MinQty:    0.00001,
	MaxQty:    9000,
}

func dailyKlines(prevClose, todayOpen float64) []models.Candle {
	return []models.Candle{
		{Symbol: "BTCUSDT", Interval: models.Interval1d, Open: prevClose * 0.98, Close: prevClose, Final: true},
		{Symbol: "BTCUSDT", Interval: models.Interval1d, Open: todayOpen, Close: todayOpen * 1.01},
	}
}

func newTestExecutor(g *fakeGateway, s *fakeStrategyStore) *Executor {
	return NewExecutor(g, s, time.Minute, time.Millisecond, 3, time.Millisecond)
}

func bottomBuyStrategy() models.Strategy {
	return models.Strategy{
		ID:         "s-1",
		Symbol:     "BTCUSDT",
		Account:    models.AccountSpot,
		Kind:       models.KindBottomBuy,
		Amount:     1000,
		Volatility: 0.2,
		Status:     models.StatusRunning,
	}
}

func TestDailyResetComputesTargetAndQuantity(t *testing.T) {
	g := &fakeGateway{
		klines:      dailyKlines(49000, 50000),
		filters:     testFilters,
		placeResult: models.Order{ID: 777, Status: models.OrderNew},
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	require.NoError(t, e.RunCycle(context.Background(), &st))

	assert.Equal(t, 40000.0, st.TargetPrice, "50000 * (1 - 0.2)")
	assert.Equal(t, 0.025, st.Quantity, "1000 / 40000")
	require.NotNil(t, st.LastTradeDate)
	assert.False(t, st.IsTradedToday)

	// the same cycle placed the day's order
	assert.True(t, st.HasOpenOrder)
	require.NotNil(t, st.OrderID)
	assert.Equal(t, int64(777), *st.OrderID)
	require.NotNil(t, st.OrderPlacedAt)

	// state was persisted at the end of the cycle
	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.updates, 1)
	assert.True(t, store.updates[0].HasOpenOrder)
}

func TestFilledOrderMarksTradedToday(t *testing.T) {
	orderID := int64(42)
	now := time.Now()
	today := dateOnly(now)
	g := &fakeGateway{
		getResult: models.Order{ID: orderID, Status: models.OrderFilled, ExecutedQty: 0.025},
		filters:   testFilters,
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.TargetPrice = 40000
	st.Quantity = 0.03
	st.OrderID = &orderID
	st.HasOpenOrder = true
	st.OrderPlacedAt = &now
	st.LastTradeDate = &today

	require.NoError(t, e.RunCycle(context.Background(), &st))

	assert.False(t, st.HasOpenOrder)
	assert.True(t, st.IsTradedToday)
	assert.Equal(t, 0.025, st.Quantity, "quantity reflects the filled amount")
	assert.Zero(t, g.placeCalls, "no new order after a fill")
}

func TestCanceledOrderReturnsToNoOrderAndReplaces(t *testing.T) {
	orderID := int64(42)
	now := time.Now()
	today := dateOnly(now)
	g := &fakeGateway{
		getResult:   models.Order{ID: orderID, Status: models.OrderCanceled},
		filters:     testFilters,
		placeResult: models.Order{ID: 99, Status: models.OrderNew},
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.TargetPrice = 40000
	st.Quantity = 0.025
	st.OrderID = &orderID
	st.HasOpenOrder = true
	st.OrderPlacedAt = &now
	st.LastTradeDate = &today

	require.NoError(t, e.RunCycle(context.Background(), &st))

	assert.False(t, st.HasOpenOrder)
	assert.Nil(t, st.OrderID)
	assert.False(t, st.IsTradedToday)

	// next cycle places a fresh order
	require.NoError(t, e.RunCycle(context.Background(), &st))
	assert.True(t, st.HasOpenOrder)
	require.NotNil(t, st.OrderID)
	assert.Equal(t, int64(99), *st.OrderID)
}

func TestStaleOpenOrderFromPreviousDayIsCancelled(t *testing.T) {
	orderID := int64(42)
	yesterday := time.Now().Add(-24 * time.Hour)
	today := dateOnly(time.Now())
	g := &fakeGateway{
		getResult: models.Order{ID: orderID, Status: models.OrderNew},
		filters:   testFilters,
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.TargetPrice = 40000
	st.Quantity = 0.025
	st.OrderID = &orderID
	st.HasOpenOrder = true
	st.OrderPlacedAt = &yesterday
	st.LastTradeDate = &today // rollover already done; order slipped through

	require.NoError(t, e.RunCycle(context.Background(), &st))

	assert.Equal(t, []int64{orderID}, g.cancelCalls)
	assert.False(t, st.HasOpenOrder)
	assert.Nil(t, st.OrderID)
}

func TestRolloverCancelsLeftoverOrder(t *testing.T) {
	orderID := int64(42)
	yesterday := dateOnly(time.Now().Add(-24 * time.Hour))
	placed := time.Now().Add(-24 * time.Hour)
	g := &fakeGateway{
		klines:      dailyKlines(49000, 50000),
		filters:     testFilters,
		placeResult: models.Order{ID: 100, Status: models.OrderNew},
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.OrderID = &orderID
	st.HasOpenOrder = true
	st.OrderPlacedAt = &placed
	st.LastTradeDate = &yesterday
	st.IsTradedToday = true

	require.NoError(t, e.RunCycle(context.Background(), &st))

	assert.Equal(t, []int64{orderID}, g.cancelCalls)
	assert.False(t, st.IsTradedToday, "rollover clears the traded flag")
	require.NotNil(t, st.OrderID)
	assert.Equal(t, int64(100), *st.OrderID, "a fresh order was placed for the new day")
}

func TestPlacementRetriesExactlyThreeTimesThenAlerts(t *testing.T) {
	sink := &fakeAlertSink{}
	logger.SetAlertSink(sink)
	defer logger.SetAlertSink(nil)

	today := dateOnly(time.Now())
	g := &fakeGateway{
		placeErr: errors.New("insufficient balance"),
		filters:  testFilters,
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.TargetPrice = 40000
	st.Quantity = 0.025
	st.LastTradeDate = &today

	require.NoError(t, e.RunCycle(context.Background(), &st))

	assert.Equal(t, 3, g.placeCalls)
	assert.False(t, st.HasOpenOrder)
	assert.Nil(t, st.OrderID)
	assert.Equal(t, 1, sink.count(), "exactly one elevated-severity alert")
}

func TestReferencePriceFetchFailureAbortsCycleWithAlert(t *testing.T) {
	sink := &fakeAlertSink{}
	logger.SetAlertSink(sink)
	defer logger.SetAlertSink(nil)

	g := &fakeGateway{klinesErr: errors.New("venue down")}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	err := e.RunCycle(context.Background(), &st)
	require.Error(t, err)
	assert.Equal(t, 1, sink.count())
	assert.Zero(t, g.placeCalls)
}

func TestPersistenceFailureIsFatalForCycle(t *testing.T) {
	today := dateOnly(time.Now())
	g := &fakeGateway{filters: testFilters, placeResult: models.Order{ID: 7, Status: models.OrderNew}}
	store := &fakeStrategyStore{err: errors.New("connection refused")}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.TargetPrice = 40000
	st.Quantity = 0.025
	st.LastTradeDate = &today

	err := e.RunCycle(context.Background(), &st)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist strategy")
}

func TestCloseSellSkipsSpotAccounts(t *testing.T) {
	g := &fakeGateway{}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.Kind = models.KindCloseSell
	st.Account = models.AccountSpot

	require.NoError(t, e.RunCycle(context.Background(), &st))
	assert.Zero(t, g.placeCalls)
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Empty(t, store.updates, "skipped account does not touch the venue or the store")
}

func TestCloseBuyUsesPreviousDayClose(t *testing.T) {
	g := &fakeGateway{
		klines:      dailyKlines(40000, 50000),
		filters:     testFilters,
		placeResult: models.Order{ID: 5, Status: models.OrderNew},
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.Kind = models.KindCloseBuy
	st.Volatility = 0.1

	require.NoError(t, e.RunCycle(context.Background(), &st))
	assert.Equal(t, 36000.0, st.TargetPrice, "40000 * (1 - 0.1)")
}

func TestTradedTodayPlacesNothing(t *testing.T) {
	today := dateOnly(time.Now())
	g := &fakeGateway{filters: testFilters}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.IsTradedToday = true
	st.LastTradeDate = &today

	require.NoError(t, e.RunCycle(context.Background(), &st))
	assert.Zero(t, g.placeCalls)
}

func TestLoopExitsOnCancellation(t *testing.T) {
	g := &fakeGateway{klines: dailyKlines(49000, 50000), filters: testFilters, placeResult: models.Order{ID: 1}}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Loop(bottomBuyStrategy())(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not exit on cancellation")
	}
}

func TestFuturesResetAppliesLeverage(t *testing.T) {
	g := &fakeGateway{
		klines:      dailyKlines(49000, 50000),
		filters:     testFilters,
		placeResult: models.Order{ID: 5, Status: models.OrderNew},
	}
	store := &fakeStrategyStore{}
	e := newTestExecutor(g, store)

	st := bottomBuyStrategy()
	st.Account = models.AccountFutures
	st.Leverage = 5

	require.NoError(t, e.RunCycle(context.Background(), &st))

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, []int{5}, g.leverageCalls, "leverage applied once during the daily reset")
	assert.Equal(t, 1, g.placeCalls)
}

func TestSpotResetSkipsLeverage(t *testing.T) {
	g := &fakeGateway{
		klines:      dailyKlines(49000, 50000),
		filters:     testFilters,
		placeResult: models.Order{ID: 6, Status: models.OrderNew},
	}
	e := newTestExecutor(g, &fakeStrategyStore{})

	st := bottomBuyStrategy()
	st.Leverage = 5

	require.NoError(t, e.RunCycle(context.Background(), &st))

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Empty(t, g.leverageCalls, "spot accounts carry no venue-side leverage")
}

func TestLeverageFailureAbortsCycle(t *testing.T) {
	g := &fakeGateway{
		klines:      dailyKlines(49000, 50000),
		filters:     testFilters,
		leverageErr: errors.New("margin is insufficient"),
	}
	e := newTestExecutor(g, &fakeStrategyStore{})

	st := bottomBuyStrategy()
	st.Account = models.AccountFutures
	st.Leverage = 10

	require.Error(t, e.RunCycle(context.Background(), &st))
	assert.Zero(t, g.placeCalls, "no order until leverage is in place")
}
