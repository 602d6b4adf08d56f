package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
)

// CalculateStatistics summarizes raw samples into P50, the requested percentile, P99 and max
func CalculateStatistics(samples []models.UsageSample, percentile float64) (models.UsageStatistics, error) {
	if len(samples) == 0 {
		return models.UsageStatistics{}, fmt.Errorf("%w: no samples provided", recommender.ErrInvalidStatistics)
	}

	values := make([]float64, len(samples))
	for i, sample := range samples {
		if sample.Value < 0 || math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
			return models.UsageStatistics{}, fmt.Errorf("%w: sample at %s has value %v",
				recommender.ErrInvalidStatistics, sample.Timestamp.Format("2006-01-02T15:04:05Z07:00"), sample.Value)
		}
		values[i] = sample.Value
	}

	sort.Float64s(values)

	return models.UsageStatistics{
		P50:            calculatePercentile(values, 50),
		Percentile:     calculatePercentile(values, percentile),
		PercentileRank: percentile,
		P99:            calculatePercentile(values, 99),
		Max:            values[len(values)-1],
		SampleCount:    len(values),
	}, nil
}

// calculatePercentile computes the Nth percentile using linear interpolation
func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}

	if len(sortedValues) == 1 {
		return sortedValues[0]
	}

	n := float64(len(sortedValues))
	rank := (percentile / 100.0) * (n - 1)

	lowerIndex := int(math.Floor(rank))
	upperIndex := int(math.Ceil(rank))

	if lowerIndex == upperIndex {
		return sortedValues[lowerIndex]
	}

	lowerValue := sortedValues[lowerIndex]
	upperValue := sortedValues[upperIndex]
	fraction := rank - float64(lowerIndex)

	return lowerValue + (upperValue-lowerValue)*fraction
}

func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// coefficientOfVariation measures relative variability.
// High CV (>0.5) is a spiky workload, low CV (<0.2) a steady one.
func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}

	mean := calculateAverage(values)
	if mean == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return math.Sqrt(sumSquaredDiff/float64(len(values))) / mean
}

// AnalyzeUsagePattern classifies a series as steady, moderate, spiky or highly-variable
func AnalyzeUsagePattern(samples []models.UsageSample) models.UsagePattern {
	if len(samples) < 10 {
		return models.UsagePattern{Type: "unknown"}
	}

	values := make([]float64, len(samples))
	for i, sample := range samples {
		values[i] = sample.Value
	}
	cv := coefficientOfVariation(values)

	var patternType string
	switch {
	case cv < 0.15:
		patternType = "steady"
	case cv < 0.35:
		patternType = "moderate"
	case cv < 0.70:
		patternType = "spiky"
	default:
		patternType = "highly-variable"
	}

	return models.UsagePattern{
		Type:      patternType,
		Variation: cv,
	}
}
