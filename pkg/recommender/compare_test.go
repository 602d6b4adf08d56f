package recommender

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

func TestCeilToMultiple(t *testing.T) {
	tests := []struct {
		x    float64
		step int64
		want int64
	}{
		{240, 50, 250},
		{250, 50, 250},
		{675, 100, 700},
		{499.2, 64, 512},
		{998.4, 128, 1024},
		{0, 50, 0},
		{0.0001, 50, 50},
		{1, 1, 1},
	}

	for _, tt := range tests {
		got, err := CeilToMultiple(tt.x, tt.step)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "CeilToMultiple(%v, %d)", tt.x, tt.step)
	}
}

func TestCeilToMultipleProperties(t *testing.T) {
	for _, step := range []int64{1, 7, 50, 64, 100, 128} {
		for x := 0.0; x < 3000; x += 11.13 {
			once, err := CeilToMultiple(x, step)
			require.NoError(t, err)

			twice, err := CeilToMultiple(float64(once), step)
			require.NoError(t, err)

			assert.Equal(t, once, twice, "idempotent for x=%v step=%d", x, step)
			assert.Zero(t, once%step)
			assert.GreaterOrEqual(t, float64(once), x)
		}
	}
}

func TestCeilToMultipleRejectsBadStep(t *testing.T) {
	for _, step := range []int64{0, -1, -50} {
		_, err := CeilToMultiple(10, step)
		assert.ErrorIs(t, err, ErrInvalidConfiguration)
	}

	_, err := CeilToMultiple(-5, 50)
	assert.ErrorIs(t, err, ErrInvalidStatistics)
}

func TestCeilToMultipleOverflow(t *testing.T) {
	for _, x := range []float64{1e20, math.MaxInt64, 9.3e18} {
		got, err := CeilToMultiple(x, 50)
		assert.ErrorIs(t, err, ErrInvalidStatistics, "x=%v", x)
		assert.Zero(t, got)
	}

	got, err := CeilToMultiple(9e18, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(9e18), got)
}

func TestCompareToExisting(t *testing.T) {
	rec := &models.Recommendation{Dimension: models.DimensionCPU, RequestValue: 250, LimitValue: 700}

	reduction, err := CompareToExisting(rec, 1000)
	require.NoError(t, err)
	assert.Equal(t, models.DeltaReduction, reduction.Direction)
	assert.Equal(t, 75.0, reduction.Percent)

	increase, err := CompareToExisting(rec, 200)
	require.NoError(t, err)
	assert.Equal(t, models.DeltaIncrease, increase.Direction)
	assert.Equal(t, 25.0, increase.Percent)

	same, err := CompareToExisting(rec, 250)
	require.NoError(t, err)
	assert.Equal(t, models.DeltaUnchanged, same.Direction)
	assert.Zero(t, same.Percent)
}

func TestCompareToExistingRejectsMissingBaseline(t *testing.T) {
	rec := &models.Recommendation{RequestValue: 250}

	for _, current := range []int64{0, -100} {
		delta, err := CompareToExisting(rec, current)
		assert.Nil(t, delta)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestAssessAddsIncreaseNeededOnce(t *testing.T) {
	rec := &models.Recommendation{Dimension: models.DimensionMemory, RequestValue: 512, LimitValue: 1024}
	delta, err := CompareToExisting(rec, 256)
	require.NoError(t, err)

	Assess(rec, delta)
	Assess(rec, delta)

	require.Len(t, rec.Warnings, 1)
	assert.Equal(t, models.WarningIncreaseNeeded, rec.Warnings[0].Kind)
	assert.Equal(t, 256.0, rec.Warnings[0].Margin)

	reduced := &models.Recommendation{RequestValue: 250}
	Assess(reduced, &models.DeltaReport{Direction: models.DeltaReduction})
	Assess(reduced, nil)
	assert.Empty(t, reduced.Warnings)
}

func TestAssessRisk(t *testing.T) {
	saturated := &models.Recommendation{Warnings: []models.Warning{{Kind: models.WarningNearLimitSaturation}}}

	assert.Equal(t, models.RiskNone, AssessRisk(nil))
	assert.Equal(t, models.RiskLow, AssessRisk([]*models.DimensionResult{{
		Dimension:      models.DimensionCPU,
		Recommendation: &models.Recommendation{},
		Delta:          &models.DeltaReport{Direction: models.DeltaReduction},
	}}))
	assert.Equal(t, models.RiskMedium, AssessRisk([]*models.DimensionResult{{
		Dimension:      models.DimensionCPU,
		Recommendation: saturated,
	}}))
	assert.Equal(t, models.RiskHigh, AssessRisk([]*models.DimensionResult{
		{Dimension: models.DimensionCPU, Recommendation: saturated},
		{Dimension: models.DimensionMemory, Recommendation: saturated},
	}))
}
