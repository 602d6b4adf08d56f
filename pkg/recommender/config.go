package recommender

import (
	"fmt"
	"math"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// RoundingStep holds the step sizes raw values are rounded up to, in native units
type RoundingStep struct {
	Request int64 `yaml:"request" json:"request"`
	Limit   int64 `yaml:"limit" json:"limit"`
}

// SizingConfig controls how usage statistics become requests and limits
type SizingConfig struct {
	RequestMultiplier           float64      `yaml:"requestMultiplier" json:"requestMultiplier"`
	LimitMultiplier             float64      `yaml:"limitMultiplier" json:"limitMultiplier"`
	Percentile                  float64      `yaml:"percentile" json:"percentile"`
	RoundingStep                RoundingStep `yaml:"roundingStep" json:"roundingStep"`
	SaturationThresholdFraction float64      `yaml:"saturationThresholdFraction" json:"saturationThresholdFraction"`

	// UnderUtilizedThreshold only applies to CPU. Zero disables the check.
	UnderUtilizedThreshold float64 `yaml:"underUtilizedThreshold" json:"underUtilizedThreshold"`
}

// DefaultPercentile feeds the limit calculation unless overridden
const DefaultPercentile = 95.0

// DefaultSizingConfig returns the defaults for a dimension
func DefaultSizingConfig(dimension models.ResourceDimension) SizingConfig {
	if dimension == models.DimensionMemory {
		return SizingConfig{
			RequestMultiplier:           1.3,
			LimitMultiplier:             1.3,
			Percentile:                  DefaultPercentile,
			RoundingStep:                RoundingStep{Request: 64, Limit: 128},
			SaturationThresholdFraction: 0.9,
		}
	}

	return SizingConfig{
		RequestMultiplier:           1.2,
		LimitMultiplier:             1.5,
		Percentile:                  DefaultPercentile,
		RoundingStep:                RoundingStep{Request: 50, Limit: 100},
		SaturationThresholdFraction: 0.9,
		UnderUtilizedThreshold:      50,
	}
}

// Validate reports the first setting that makes computation impossible
func (c SizingConfig) Validate() error {
	switch {
	case c.RoundingStep.Request <= 0:
		return fmt.Errorf("%w: request rounding step must be positive, got %d", ErrInvalidConfiguration, c.RoundingStep.Request)
	case c.RoundingStep.Limit <= 0:
		return fmt.Errorf("%w: limit rounding step must be positive, got %d", ErrInvalidConfiguration, c.RoundingStep.Limit)
	case !positiveFinite(c.RequestMultiplier):
		return fmt.Errorf("%w: request multiplier must be positive, got %v", ErrInvalidConfiguration, c.RequestMultiplier)
	case !positiveFinite(c.LimitMultiplier):
		return fmt.Errorf("%w: limit multiplier must be positive, got %v", ErrInvalidConfiguration, c.LimitMultiplier)
	case !(c.Percentile > 50 && c.Percentile < 100):
		return fmt.Errorf("%w: percentile must be in (50, 100), got %v", ErrInvalidConfiguration, c.Percentile)
	case !(c.SaturationThresholdFraction > 0 && c.SaturationThresholdFraction <= 1):
		return fmt.Errorf("%w: saturation threshold fraction must be in (0, 1], got %v", ErrInvalidConfiguration, c.SaturationThresholdFraction)
	case c.UnderUtilizedThreshold < 0 || math.IsNaN(c.UnderUtilizedThreshold) || math.IsInf(c.UnderUtilizedThreshold, 0):
		return fmt.Errorf("%w: under-utilized threshold must be a non-negative number, got %v", ErrInvalidConfiguration, c.UnderUtilizedThreshold)
	}
	return nil
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
