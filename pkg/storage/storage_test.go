package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Config{Type: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(namespace string, started time.Time) *models.AnalysisRun {
	wl := &models.Workload{
		Namespace: namespace,
		Kind:      "Deployment",
		Name:      "api",
		Container: "app",
		Resources: models.ContainerResources{CPURequest: 1000, MemoryRequest: 512},
	}
	return &models.AnalysisRun{
		ClusterID:  "test",
		Namespace:  namespace,
		Lookback:   7 * 24 * time.Hour,
		Percentile: 95,
		Source:     "prometheus",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		Results: []*models.WorkloadResult{{
			Workload: wl,
			Risk:     models.RiskLow,
			Results: []*models.DimensionResult{
				{
					Dimension: models.DimensionCPU,
					Recommendation: &models.Recommendation{
						Dimension: models.DimensionCPU, RequestValue: 300, LimitValue: 500,
						Warnings: []models.Warning{{Kind: models.WarningUnderUtilized}},
					},
					Delta:          &models.DeltaReport{Direction: models.DeltaReduction, Percent: 70, Current: 1000, Recommended: 300},
					SavingsMonthly: 16.1,
				},
				{Dimension: models.DimensionMemory, Error: "invalid statistics: no samples in lookback window"},
			},
		}},
	}
}

func TestOpenRejectsUnknownType(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "mysql"})
	assert.Error(t, err)

	_, err = Open(context.Background(), Config{Type: DriverPostgres})
	assert.Error(t, err)
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := testRun("shop", time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveRun(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, 95.0, got.Percentile)
	require.Len(t, got.Results, 1)
	assert.Equal(t, int64(300), got.Results[0].Results[0].Recommendation.RequestValue)
	assert.Equal(t, "api", got.Results[0].Workload.Name)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListRunsNewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveRun(ctx, testRun("shop", base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, s.SaveRun(ctx, testRun("other", base.Add(10*time.Hour))))

	runs, err := s.ListRuns(ctx, "shop", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, base.Add(2*time.Hour), runs[0].StartedAt)
	assert.Equal(t, 1, runs[0].Workloads)
	assert.Equal(t, 1, runs[0].Failures)
	assert.InDelta(t, 16.1, runs[0].TotalSavings, 1e-9)
	assert.Equal(t, 7*24*time.Hour, runs[0].Lookback)

	all, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "other", all[0].Namespace)

	latest, err := s.LatestRun(ctx, "shop")
	require.NoError(t, err)
	assert.Equal(t, runs[0].ID, latest.ID)

	_, err = s.LatestRun(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWorkloadHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("shop", base)))
	require.NoError(t, s.SaveRun(ctx, testRun("shop", base.Add(time.Hour))))

	history, err := s.WorkloadHistory(ctx, "shop", "api", 10)
	require.NoError(t, err)
	require.Len(t, history, 4)

	first := history[0]
	assert.Equal(t, base.Add(time.Hour), first.CreatedAt)
	assert.Equal(t, models.DimensionCPU, first.Dimension)
	assert.Equal(t, int64(1000), first.CurrentRequest)
	assert.Equal(t, int64(500), first.LimitValue)
	assert.Equal(t, models.RiskLow, first.Risk)
	assert.Equal(t, []models.WarningKind{models.WarningUnderUtilized}, first.Warnings)

	mem := history[1]
	assert.Equal(t, models.DimensionMemory, mem.Dimension)
	assert.Contains(t, mem.Error, "invalid statistics")
	assert.Empty(t, mem.Warnings)

	none, err := s.WorkloadHistory(ctx, "shop", "web", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("shop", base)))
	require.NoError(t, s.SaveRun(ctx, testRun("shop", base.Add(48*time.Hour))))

	n, err := s.Prune(ctx, base.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	history, err := s.WorkloadHistory(ctx, "shop", "api", 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	file := filepath.Join(t.TempDir(), "nested", "history.db")
	ctx := context.Background()

	s, err := Open(ctx, Config{Type: DriverSQLite, Path: file})
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, testRun("shop", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(ctx, Config{Path: file})
	require.NoError(t, err)
	defer s.Close()

	runs, err := s.ListRuns(ctx, "", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &SQLStore{dialect: DriverSQLite}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}
