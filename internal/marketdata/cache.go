package marketdata

import (
	"sync"

	"autotrader/internal/models"
)

type Key struct {
	Symbol   string
	Interval models.Interval
}

// Cache holds the latest closed candle per (symbol, interval).
// Last write wins; readers only ever see the most recent value per key,
// with no cross-key ordering.
type Cache struct {
	mu      sync.RWMutex
	candles map[Key]models.Candle
}

func NewCache() *Cache {
	return &Cache{
		candles: make(map[Key]models.Candle),
	}
}

func (c *Cache) Put(candle models.Candle) {
	c.mu.Lock()
	c.candles[Key{Symbol: candle.Symbol, Interval: candle.Interval}] = candle
	c.mu.Unlock()
}

func (c *Cache) Get(symbol string, interval models.Interval) (models.Candle, bool) {
	c.mu.RLock()
	candle, ok := c.candles[Key{Symbol: symbol, Interval: interval}]
	c.mu.RUnlock()
	return candle, ok
}
