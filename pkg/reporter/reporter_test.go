package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	vpav1 "k8s.io/autoscaler/vertical-pod-autoscaler/pkg/apis/autoscaling.k8s.io/v1"
	"sigs.k8s.io/yaml"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

func sampleRun() *models.AnalysisRun {
	checkout := &models.Workload{
		Namespace:   "shop",
		Kind:        "Deployment",
		Name:        "checkout",
		Container:   "app",
		Environment: models.EnvironmentProduction,
		HPA:         "checkout-hpa",
		Resources:   models.ContainerResources{CPURequest: 1000, MemoryRequest: 256},
	}
	worker := &models.Workload{
		Namespace:   "jobs",
		Kind:        "StatefulSet",
		Name:        "worker",
		Container:   "main",
		Environment: models.EnvironmentDevelopment,
	}

	return &models.AnalysisRun{
		ID:        "run-1",
		Namespace: "shop",
		StartedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Results: []*models.WorkloadResult{
			{
				Workload: checkout,
				Risk:     models.RiskHigh,
				Results: []*models.DimensionResult{
					{
						Dimension:      models.DimensionCPU,
						Recommendation: &models.Recommendation{Dimension: models.DimensionCPU, RequestValue: 250, LimitValue: 700},
						Delta:          &models.DeltaReport{Direction: models.DeltaReduction, Percent: 75, Current: 1000, Recommended: 250},
						SavingsMonthly: 17.25,
					},
					{
						Dimension: models.DimensionMemory,
						Recommendation: &models.Recommendation{
							Dimension: models.DimensionMemory, RequestValue: 512, LimitValue: 1024,
							Warnings: []models.Warning{{Kind: models.WarningIncreaseNeeded, Margin: 256}},
						},
						Delta:          &models.DeltaReport{Direction: models.DeltaIncrease, Percent: 100, Current: 256, Recommended: 512},
						SavingsMonthly: -0.75,
					},
				},
			},
			{
				Workload: worker,
				Risk:     models.RiskNone,
				Results: []*models.DimensionResult{
					{Dimension: models.DimensionCPU, Error: "invalid statistics: no samples in lookback window"},
					{
						Dimension:      models.DimensionMemory,
						Recommendation: &models.Recommendation{Dimension: models.DimensionMemory, RequestValue: 128, LimitValue: 256},
					},
				},
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleRun())

	assert.Equal(t, 2, s.Workloads)
	assert.Equal(t, 3, s.Recommendations)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, 1, s.Warnings[models.WarningIncreaseNeeded])
	assert.InDelta(t, 16.5, s.TotalSavings, 1e-9)

	envs := s.SortedEnvironments()
	require.Len(t, envs, 2)
	assert.Equal(t, "development", envs[0].Environment)
	assert.Equal(t, 1, envs[0].Recommendations)
	assert.InDelta(t, 16.5, envs[1].TotalSavings, 1e-9)
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRun(), FormatTable))
	out := buf.String()

	assert.Contains(t, out, "NAMESPACE")
	assert.Contains(t, out, "250m")
	assert.Contains(t, out, "700m")
	assert.Contains(t, out, "1Gi")
	assert.Contains(t, out, "-75%")
	assert.Contains(t, out, "+100%")
	assert.Contains(t, out, "INCREASE_NEEDED")
	assert.Contains(t, out, "error: invalid statistics")
	assert.Contains(t, out, "Estimated monthly savings")
	assert.Contains(t, out, "$16.50")
}

func TestWriteJSONAndYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRun(), FormatJSON))

	var report Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, "run-1", report.Run.ID)
	assert.Equal(t, 1, report.Summary.Failures)
	assert.Equal(t, int64(700), report.Run.Results[0].Results[0].Recommendation.LimitValue)

	buf.Reset()
	require.NoError(t, Write(&buf, sampleRun(), FormatYAML))
	var fromYAML Report
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &fromYAML))
	assert.Equal(t, report.Summary.Recommendations, fromYAML.Summary.Recommendations)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRun(), FormatCSV))

	r := csv.NewReader(strings.NewReader(buf.String()))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	require.NoError(t, err)

	assert.Equal(t, "Namespace", records[0][0])
	assert.Equal(t, []string{"shop", "Deployment", "checkout", "app", "production", "cpu", "m", "1000", "250", "700", "-75.0", "17.25", "HIGH", "<none>", ""}, records[1])
	assert.Equal(t, "invalid statistics: no samples in lookback window", records[3][14])
	assert.Contains(t, buf.String(), "Total Monthly Savings,$16.50")
}

func TestWriteCommands(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleRun(), FormatCommands))
	out := buf.String()

	assert.Contains(t, out, "kubectl set resources deployment/checkout -n shop -c app --requests=cpu=250m,memory=512Mi --limits=cpu=700m,memory=1Gi\n")
	assert.Contains(t, out, "# shop/Deployment/checkout/app is scaled by HPA checkout-hpa")
	assert.Contains(t, out, "kubectl set resources statefulset/worker -n jobs -c main --requests=memory=128Mi --limits=memory=256Mi\n")
}

func TestBuildVPAs(t *testing.T) {
	run := sampleRun()
	sidecar := *run.Results[0].Workload
	sidecar.Container = "proxy"
	run.Results = append(run.Results, &models.WorkloadResult{
		Workload: &sidecar,
		Results: []*models.DimensionResult{{
			Dimension:      models.DimensionCPU,
			Recommendation: &models.Recommendation{RequestValue: 50, LimitValue: 100},
		}},
	})

	vpas := BuildVPAs(run)
	require.Len(t, vpas, 2)

	checkout := vpas[0]
	assert.Equal(t, "checkout", checkout.Name)
	assert.Equal(t, "Deployment", checkout.Spec.TargetRef.Kind)
	assert.Equal(t, vpav1.UpdateModeOff, *checkout.Spec.UpdatePolicy.UpdateMode)
	require.Len(t, checkout.Spec.ResourcePolicy.ContainerPolicies, 2)

	app := checkout.Spec.ResourcePolicy.ContainerPolicies[0]
	minCPU := app.MinAllowed[corev1.ResourceCPU]
	maxMem := app.MaxAllowed[corev1.ResourceMemory]
	assert.Equal(t, "250m", minCPU.String())
	assert.Equal(t, "1Gi", maxMem.String())

	worker := vpas[1]
	policy := worker.Spec.ResourcePolicy.ContainerPolicies[0]
	assert.Equal(t, []corev1.ResourceName{corev1.ResourceMemory}, *policy.ControlledResources)

	var buf bytes.Buffer
	require.NoError(t, WriteVPA(&buf, run))
	assert.Equal(t, 2, strings.Count(buf.String(), "---\n"))
	assert.Contains(t, buf.String(), "kind: VerticalPodAutoscaler")
	assert.Contains(t, buf.String(), "updateMode:")
}

func TestParseFormat(t *testing.T) {
	for _, f := range Formats {
		got, err := ParseFormat(string(f))
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}

	_, err := ParseFormat("html")
	assert.Error(t, err)
}
