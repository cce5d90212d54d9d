package executor

import (
	"autotrader/internal/models"

	"github.com/pkg/errors"
)

// kindBehavior captures what differs between strategy kinds: the order
// side, which daily bar anchors the target price, how the volatility
// offset is applied, and whether an account type is skipped outright.
type kindBehavior struct {
	side           models.OrderSide
	referencePrice func(prevDay, today models.Candle) float64
	targetPrice    func(ref, volatility float64) float64
	skip           func(account models.AccountType) bool
}

func neverSkip(models.AccountType) bool { return false }

func behaviorFor(kind models.StrategyKind) (kindBehavior, error) {
	switch kind {
	case models.KindBottomBuy:
		return kindBehavior{
			side:           models.SideBuy,
			referencePrice: func(_, today models.Candle) float64 { return today.Open },
			targetPrice:    func(ref, vol float64) float64 { return ref * (1 - vol) },
			skip:           neverSkip,
		}, nil
	case models.KindTopSell:
		return kindBehavior{
			side:           models.SideSell,
			referencePrice: func(_, today models.Candle) float64 { return today.Open },
			targetPrice:    func(ref, vol float64) float64 { return ref * (1 + vol) },
			skip:           neverSkip,
		}, nil
	case models.KindCloseBuy:
		return kindBehavior{
			side:           models.SideBuy,
			referencePrice: func(prevDay, _ models.Candle) float64 { return prevDay.Close },
			targetPrice:    func(ref, vol float64) float64 { return ref * (1 - vol) },
			skip:           neverSkip,
		}, nil
	case models.KindCloseSell:
		return kindBehavior{
			side:           models.SideSell,
			referencePrice: func(prevDay, _ models.Candle) float64 { return prevDay.Close },
			targetPrice:    func(ref, vol float64) float64 { return ref * (1 + vol) },
			// nothing to sell against on a plain spot account
			skip: func(account models.AccountType) bool { return account == models.AccountSpot },
		}, nil
	default:
		return kindBehavior{}, errors.Errorf("unknown strategy kind %q", kind)
	}
}
