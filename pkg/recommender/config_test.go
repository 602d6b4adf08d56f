package recommender

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

func TestDefaultSizingConfig(t *testing.T) {
	cpu := DefaultSizingConfig(models.DimensionCPU)
	assert.Equal(t, 1.2, cpu.RequestMultiplier)
	assert.Equal(t, 1.5, cpu.LimitMultiplier)
	assert.Equal(t, RoundingStep{Request: 50, Limit: 100}, cpu.RoundingStep)
	assert.Equal(t, 50.0, cpu.UnderUtilizedThreshold)
	assert.NoError(t, cpu.Validate())

	mem := DefaultSizingConfig(models.DimensionMemory)
	assert.Equal(t, 1.3, mem.RequestMultiplier)
	assert.Equal(t, 1.3, mem.LimitMultiplier)
	assert.Equal(t, RoundingStep{Request: 64, Limit: 128}, mem.RoundingStep)
	assert.Zero(t, mem.UnderUtilizedThreshold)
	assert.NoError(t, mem.Validate())

	assert.Equal(t, 95.0, cpu.Percentile)
	assert.Equal(t, 0.9, mem.SaturationThresholdFraction)
}
