package models

import "time"

type StrategyKind string

const (
	KindBottomBuy StrategyKind = "bottom_buy"
	KindTopSell   StrategyKind = "top_sell"
	KindCloseBuy  StrategyKind = "close_buy"
	KindCloseSell StrategyKind = "close_sell"
)

func ParseStrategyKind(raw string) (StrategyKind, bool) {
	switch StrategyKind(raw) {
	case KindBottomBuy, KindTopSell, KindCloseBuy, KindCloseSell:
		return StrategyKind(raw), true
	default:
		return "", false
	}
}

type AccountType string

const (
	AccountSpot    AccountType = "spot"
	AccountMargin  AccountType = "margin"
	AccountFutures AccountType = "futures"
)

// EntityStatus — lifecycle status shared by strategies and watchers.
type EntityStatus string

const (
	StatusRunning EntityStatus = "running"
	StatusPaused  EntityStatus = "paused"
)

// Strategy — a standing order-placement rule with daily reset semantics.
// TargetPrice/Quantity are derived and step-adjusted on every daily rollover.
type Strategy struct {
	ID         string
	Symbol     string
	Account    AccountType
	Kind       StrategyKind
	Amount     float64 // quote budget per day
	Volatility float64 // price offset fraction from the reference price
	Leverage   int
	Status     EntityStatus

	TargetPrice   float64
	Quantity      float64
	OrderID       *int64
	HasOpenOrder  bool
	OrderPlacedAt *time.Time
	LastTradeDate *time.Time // date-only, midnight UTC
	IsTradedToday bool
}
