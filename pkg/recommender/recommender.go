// Package recommender turns usage statistics into request and limit recommendations.
//
// Everything here is pure and safe for concurrent use: no I/O, no shared state.
package recommender

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// ComputeRecommendation sizes one dimension of one workload.
// It returns either a complete recommendation or an error, never both.
func ComputeRecommendation(stats models.UsageStatistics, dimension models.ResourceDimension, cfg SizingConfig) (*models.Recommendation, error) {
	if !dimension.Valid() {
		return nil, fmt.Errorf("%w: unknown dimension %q", ErrInvalidConfiguration, dimension)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateStatistics(stats, cfg.Percentile); err != nil {
		return nil, err
	}

	rawRequest := decimal.NewFromFloat(stats.P50).Mul(decimal.NewFromFloat(cfg.RequestMultiplier))
	request, err := ceilPositive(rawRequest, cfg.RoundingStep.Request)
	if err != nil {
		return nil, err
	}

	rawLimit := decimal.NewFromFloat(stats.Percentile).Mul(decimal.NewFromFloat(cfg.LimitMultiplier))
	limit, err := ceilPositive(rawLimit, cfg.RoundingStep.Limit)
	if err != nil {
		return nil, err
	}

	if limit < request {
		return nil, fmt.Errorf("%w: %s limit %d%s is below request %d%s",
			ErrInvalidConfiguration, dimension, limit, dimension.Unit(), request, dimension.Unit())
	}

	rec := &models.Recommendation{
		Dimension:    dimension,
		RequestValue: request,
		LimitValue:   limit,
	}
	rec.Warnings = evaluateWarnings(stats, dimension, limit, cfg)

	return rec, nil
}

// ValidateStatistics checks the ordering and sign invariants of stats
func ValidateStatistics(stats models.UsageStatistics, percentile float64) error {
	if stats.SampleCount <= 0 {
		return fmt.Errorf("%w: no samples in lookback window", ErrInvalidStatistics)
	}

	values := []struct {
		name string
		v    float64
	}{
		{"p50", stats.P50},
		{"percentile", stats.Percentile},
		{"p99", stats.P99},
		{"max", stats.Max},
	}
	for _, value := range values {
		if math.IsNaN(value.v) || math.IsInf(value.v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidStatistics, value.name)
		}
		if value.v < 0 {
			return fmt.Errorf("%w: %s is negative (%v)", ErrInvalidStatistics, value.name, value.v)
		}
	}

	if stats.PercentileRank != 0 && stats.PercentileRank != percentile {
		return fmt.Errorf("%w: statistics computed for P%v, configuration asks for P%v",
			ErrInvalidStatistics, stats.PercentileRank, percentile)
	}
	if stats.P50 > stats.Percentile {
		return fmt.Errorf("%w: p50 %v exceeds p%v %v", ErrInvalidStatistics, stats.P50, percentile, stats.Percentile)
	}
	if stats.Percentile > stats.Max {
		return fmt.Errorf("%w: p%v %v exceeds max %v", ErrInvalidStatistics, percentile, stats.Percentile, stats.Max)
	}
	if stats.P99 > stats.Max {
		return fmt.Errorf("%w: p99 %v exceeds max %v", ErrInvalidStatistics, stats.P99, stats.Max)
	}

	return nil
}

// ceilPositive rounds up and lifts a zero result to one step
func ceilPositive(x decimal.Decimal, step int64) (int64, error) {
	v, err := ceilDecimal(x, step)
	if err != nil {
		return 0, err
	}
	if v == 0 {
		v = step
	}
	return v, nil
}

func evaluateWarnings(stats models.UsageStatistics, dimension models.ResourceDimension, limit int64, cfg SizingConfig) []models.Warning {
	var warnings []models.Warning

	threshold := decimal.NewFromInt(limit).Mul(decimal.NewFromFloat(cfg.SaturationThresholdFraction))
	p99 := decimal.NewFromFloat(stats.P99)
	if p99.GreaterThan(threshold) {
		warnings = append(warnings, models.Warning{
			Kind:      models.WarningNearLimitSaturation,
			Metric:    "p99",
			Value:     stats.P99,
			Threshold: threshold.InexactFloat64(),
			Margin:    p99.Sub(threshold).InexactFloat64(),
		})
	}

	if dimension == models.DimensionCPU && cfg.UnderUtilizedThreshold > 0 && stats.P50 < cfg.UnderUtilizedThreshold {
		under := decimal.NewFromFloat(cfg.UnderUtilizedThreshold)
		warnings = append(warnings, models.Warning{
			Kind:      models.WarningUnderUtilized,
			Metric:    "p50",
			Value:     stats.P50,
			Threshold: cfg.UnderUtilizedThreshold,
			Margin:    under.Sub(decimal.NewFromFloat(stats.P50)).InexactFloat64(),
		})
	}

	return warnings
}
