package recommender

import (
	"fmt"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// CompareToExisting reports how far the recommended request moves from the current one.
// A workload without a configured request has no baseline; callers skip the comparison
// instead of passing zero.
func CompareToExisting(rec *models.Recommendation, currentRequest int64) (*models.DeltaReport, error) {
	if currentRequest <= 0 {
		return nil, fmt.Errorf("%w: current request must be positive, got %d", ErrInvalidInput, currentRequest)
	}

	delta := &models.DeltaReport{
		Current:     currentRequest,
		Recommended: rec.RequestValue,
	}

	switch {
	case currentRequest > rec.RequestValue:
		delta.Direction = models.DeltaReduction
		delta.Percent = float64(currentRequest-rec.RequestValue) / float64(currentRequest) * 100
	case currentRequest < rec.RequestValue:
		delta.Direction = models.DeltaIncrease
		delta.Percent = float64(rec.RequestValue-currentRequest) / float64(currentRequest) * 100
	default:
		delta.Direction = models.DeltaUnchanged
	}

	return delta, nil
}

// Assess adds an IncreaseNeeded warning when the current request is below the recommendation
func Assess(rec *models.Recommendation, delta *models.DeltaReport) {
	if delta == nil || delta.Direction != models.DeltaIncrease || rec.HasWarning(models.WarningIncreaseNeeded) {
		return
	}

	rec.Warnings = append(rec.Warnings, models.Warning{
		Kind:      models.WarningIncreaseNeeded,
		Metric:    "request",
		Value:     float64(delta.Current),
		Threshold: float64(delta.Recommended),
		Margin:    float64(delta.Recommended - delta.Current),
	})
}

// AssessRisk summarizes how risky it is to leave or change a workload's sizing.
// Memory findings weigh more because memory is incompressible.
func AssessRisk(results []*models.DimensionResult) models.RiskLevel {
	risk := models.RiskNone
	raise := func(level models.RiskLevel) {
		if riskOrder[level] > riskOrder[risk] {
			risk = level
		}
	}

	for _, r := range results {
		if r.Recommendation == nil {
			continue
		}
		pressured := r.Recommendation.HasWarning(models.WarningNearLimitSaturation) ||
			r.Recommendation.HasWarning(models.WarningIncreaseNeeded)

		switch {
		case pressured && !r.Dimension.Compressible():
			raise(models.RiskHigh)
		case pressured:
			raise(models.RiskMedium)
		case r.Delta != nil && r.Delta.Direction == models.DeltaReduction:
			raise(models.RiskLow)
		}
	}

	return risk
}

var riskOrder = map[models.RiskLevel]int{
	models.RiskNone:   0,
	models.RiskLow:    1,
	models.RiskMedium: 2,
	models.RiskHigh:   3,
}
