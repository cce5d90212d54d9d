package executor

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// adjustToStep quantizes value to the venue's step size by truncating
// the quotient toward zero before re-multiplying. Values that land
// outside the venue's published bounds are rejected, not clamped —
// a clamped value would place an order the venue never asked for.
func adjustToStep(value, step, min, max float64) (float64, error) {
	if step <= 0 {
		return 0, errors.Errorf("step size must be positive, got %g", step)
	}

	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	adjusted := v.Div(s).Truncate(0).Mul(s)

	f, _ := adjusted.Float64()
	if f < min {
		return 0, errors.Errorf("adjusted value %s below venue minimum %g", adjusted, min)
	}
	if max > 0 && f > max {
		return 0, errors.Errorf("adjusted value %s above venue maximum %g", adjusted, max)
	}
	return f, nil
}
