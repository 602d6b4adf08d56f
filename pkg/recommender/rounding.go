package recommender

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

var maxInt64 = decimal.NewFromInt(math.MaxInt64)

// CeilToMultiple rounds x up to the nearest multiple of step.
// Rounding is always ceiling so a recommendation never drops below its floor.
func CeilToMultiple(x float64, step int64) (int64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
		return 0, fmt.Errorf("%w: cannot round %v", ErrInvalidStatistics, x)
	}
	return ceilDecimal(decimal.NewFromFloat(x), step)
}

// ceilDecimal works on exact decimals so repeated roundings never drift
func ceilDecimal(x decimal.Decimal, step int64) (int64, error) {
	if step <= 0 {
		return 0, fmt.Errorf("%w: rounding step must be positive, got %d", ErrInvalidConfiguration, step)
	}

	s := decimal.NewFromInt(step)
	q, r := x.QuoRem(s, 0)
	if r.Sign() > 0 {
		q = q.Add(decimal.NewFromInt(1))
	}
	result := q.Mul(s)
	if result.GreaterThan(maxInt64) {
		return 0, fmt.Errorf("%w: %s exceeds the representable range", ErrInvalidStatistics, result.String())
	}
	return result.IntPart(), nil
}
