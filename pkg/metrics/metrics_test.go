package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

func run(name string) *models.AnalysisRun {
	return &models.AnalysisRun{
		ID:         "run",
		FinishedAt: time.Unix(1700000000, 0),
		Results: []*models.WorkloadResult{{
			Workload: &models.Workload{
				Namespace: "shop", Kind: "Deployment", Name: name, Container: "app",
				Resources: models.ContainerResources{CPURequest: 1000},
			},
			Results: []*models.DimensionResult{
				{
					Dimension: models.DimensionCPU,
					Recommendation: &models.Recommendation{
						RequestValue: 250, LimitValue: 700,
						Warnings: []models.Warning{{Kind: models.WarningUnderUtilized}},
					},
					SavingsMonthly: 17.25,
				},
				{Dimension: models.DimensionMemory, Error: "invalid statistics"},
			},
		}},
	}
}

func TestObserve(t *testing.T) {
	c := NewCollector()
	c.Observe(run("checkout"), 2*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.RecommendationsTotal.WithLabelValues("cpu")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.RecommendationsTotal.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.FailuresTotal.WithLabelValues("memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.WarningsTotal.WithLabelValues("UNDER_UTILIZED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.RunsTotal))
	assert.Equal(t, 17.25, testutil.ToFloat64(c.PotentialSavingsUSD))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(c.LastRunTimestamp))
	assert.Equal(t, 250.0, testutil.ToFloat64(c.RecommendedRequest.WithLabelValues("shop", "Deployment", "checkout", "app", "cpu")))
	assert.Equal(t, 700.0, testutil.ToFloat64(c.RecommendedLimit.WithLabelValues("shop", "Deployment", "checkout", "app", "cpu")))
}

func TestObserveResetsWorkloadGauges(t *testing.T) {
	c := NewCollector()
	c.Observe(run("checkout"), time.Second)
	c.Observe(run("payments"), time.Second)

	assert.Equal(t, 1, testutil.CollectAndCount(c.RecommendedRequest))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.RecommendationsTotal.WithLabelValues("cpu")))
}

func TestWriteTextfile(t *testing.T) {
	c := NewCollector()
	c.Observe(run("checkout"), time.Second)

	path := filepath.Join(t.TempDir(), "rightsizer.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rightsizer_recommendations_total{resource=\"cpu\"} 1")
	assert.Contains(t, string(data), "rightsizer_run_duration_seconds_count 1")
}

func TestWriteTextfileBadPath(t *testing.T) {
	c := NewCollector()
	assert.Error(t, c.WriteTextfile(filepath.Join(t.TempDir(), "missing", "out.prom")))
}
