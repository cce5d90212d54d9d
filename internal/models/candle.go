package models

import "time"

// Interval — supported kline timeframes.
type Interval string

const (
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// ParseInterval validates a raw timeframe string against the supported set.
func ParseInterval(raw string) (Interval, bool) {
	switch Interval(raw) {
	case Interval5m, Interval15m, Interval1h, Interval4h, Interval1d:
		return Interval(raw), true
	default:
		return "", false
	}
}

func (i Interval) Duration() time.Duration {
	switch i {
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	}
	return 0
}

// Candle — one OHLC bar for (symbol, interval). Final means the bar's
// window has elapsed; only final candles reach the cache.
type Candle struct {
	Symbol   string
	Interval Interval
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Start    time.Time
	End      time.Time
	Final    bool
}
