package marketdata

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"autotrader/internal/exchange"
	"autotrader/internal/models"
	"autotrader/pkg/logger"
)

// SubscriptionManager keeps one live feed subscription covering the
// union of every (symbol, interval) ever requested — the universe. The
// underlying feed supports a single multiplexed subscription per
// process, so growing the universe means tearing the stream down and
// dialing a new one.
type SubscriptionManager struct {
	feed           exchange.Feed
	cache          *Cache
	reconnectAfter time.Duration

	mu          sync.Mutex
	symbols     map[string]struct{}
	intervals   map[models.Interval]struct{}
	sub         io.Closer
	lastSuccess time.Time
}

func NewSubscriptionManager(feed exchange.Feed, cache *Cache, reconnectAfter time.Duration) *SubscriptionManager {
	return &SubscriptionManager{
		feed:           feed,
		cache:          cache,
		reconnectAfter: reconnectAfter,
		symbols:        make(map[string]struct{}),
		intervals:      make(map[models.Interval]struct{}),
	}
}

// EnsureSubscribed unions the increment into the universe and makes
// sure a live subscription covers all of it. The universe is never
// rolled back on failure — the next call retries the same union.
// Repeating a no-change call is harmless; when nothing changed and no
// reconnect is due the live stream is left alone.
func (m *SubscriptionManager) EnsureSubscribed(ctx context.Context, symbols []string, intervals []models.Interval) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for _, symbol := range symbols {
		if _, ok := m.symbols[symbol]; !ok {
			m.symbols[symbol] = struct{}{}
			changed = true
		}
	}
	for _, interval := range intervals {
		if _, ok := m.intervals[interval]; !ok {
			m.intervals[interval] = struct{}{}
			changed = true
		}
	}

	if len(m.symbols) == 0 || len(m.intervals) == 0 {
		return true
	}
	if !changed && m.sub != nil && !m.reconnectDueLocked() {
		return true
	}

	if m.sub != nil {
		_ = m.sub.Close()
		m.sub = nil
	}

	sub, err := m.feed.Subscribe(ctx, m.allSymbolsLocked(), m.allIntervalsLocked(), m.onUpdate)
	if err != nil {
		logger.Alert("[marketdata] subscribe failed for %d symbols: %v", len(m.symbols), err)
		return false
	}

	m.sub = sub
	m.lastSuccess = time.Now()
	logger.Info("[marketdata] subscribed: %d symbols x %d intervals", len(m.symbols), len(m.intervals))
	return true
}

// NeedsReconnection reports whether the stream should be (re)dialed: a
// non-empty universe with no live subscription (the initial dial
// failed, or a teardown lost the stream), or the forced-reconnect
// interval elapsed since the last success. Exchange-side feed staleness
// is not always signaled as an error, so the stream gets cycled on a
// timer regardless.
func (m *SubscriptionManager) NeedsReconnection() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reconnectDueLocked()
}

func (m *SubscriptionManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sub != nil {
		_ = m.sub.Close()
		m.sub = nil
	}
}

// Universe returns the accumulated symbols and intervals, sorted.
func (m *SubscriptionManager) Universe() ([]string, []models.Interval) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allSymbolsLocked(), m.allIntervalsLocked()
}

func (m *SubscriptionManager) reconnectDueLocked() bool {
	if len(m.symbols) == 0 || len(m.intervals) == 0 {
		return false
	}
	if m.sub == nil {
		return true
	}
	return time.Since(m.lastSuccess) >= m.reconnectAfter
}

func (m *SubscriptionManager) allSymbolsLocked() []string {
	out := make([]string, 0, len(m.symbols))
	for symbol := range m.symbols {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (m *SubscriptionManager) allIntervalsLocked() []models.Interval {
	out := make([]models.Interval, 0, len(m.intervals))
	for interval := range m.intervals {
		out = append(out, interval)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Duration() < out[j].Duration() })
	return out
}

// onUpdate runs on the feed's read loop: drop in-progress bars, write
// the rest into the cache and continue. A cache write never blocks on a
// slow consumer — watchers poll the cache on their own cadence.
func (m *SubscriptionManager) onUpdate(candle models.Candle) {
	if !candle.Final {
		return
	}
	m.cache.Put(candle)
}
