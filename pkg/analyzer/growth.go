package analyzer

import (
	"fmt"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// minTrendSamples is roughly 8 hours at 5 minute resolution
const minTrendSamples = 100

// growingRatePerMonth is the monthly growth in percent above which a series counts as growing
const growingRatePerMonth = 3.0

// CalculateGrowthTrend fits a least-squares line through the samples
func CalculateGrowthTrend(samples []models.UsageSample) (*models.GrowthTrend, error) {
	if len(samples) < minTrendSamples {
		return nil, fmt.Errorf("insufficient data for trend analysis (need %d+ samples, got %d)", minTrendSamples, len(samples))
	}

	startTime := samples[0].Timestamp
	x := make([]float64, len(samples)) // hours since start
	y := make([]float64, len(samples))

	for i, sample := range samples {
		x[i] = sample.Timestamp.Sub(startTime).Hours()
		y[i] = sample.Value
	}

	slope, intercept, r2 := linearRegression(x, y)
	currentAvg := calculateAverage(y)

	hoursPerMonth := 24.0 * 30.0
	var ratePerMonth float64
	if currentAvg > 0 {
		ratePerMonth = slope * hoursPerMonth / currentAvg * 100.0
	}

	hours3Month := x[len(x)-1] + 24*90
	predicted3Month := slope*hours3Month + intercept
	if predicted3Month < 0 {
		predicted3Month = currentAvg
	}

	return &models.GrowthTrend{
		RatePerMonth:    ratePerMonth,
		Confidence:      r2,
		Predicted3Month: predicted3Month,
		IsGrowing:       ratePerMonth > growingRatePerMonth,
	}, nil
}

// linearRegression returns slope, intercept and R² clamped to [0, 1]
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	if len(x) == 0 {
		return 0, 0, 0
	}

	meanX := calculateAverage(x)
	meanY := calculateAverage(y)

	numerator := 0.0
	denominator := 0.0
	for i := range x {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}

	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal := 0.0
	ssRes := 0.0
	for i := range x {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}

	if ssTotal != 0 {
		r2 = 1.0 - ssRes/ssTotal
	}

	if r2 < 0 {
		r2 = 0
	} else if r2 > 1 {
		r2 = 1
	}

	return slope, intercept, r2
}
