package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// MetricsServerSource reads point-in-time usage from metrics-server.
// It has no history: every statistic equals the highest current usage across the workload's pods.
type MetricsServerSource struct {
	client metricsv.Interface
}

// NewMetricsServerSource wraps a metrics clientset
func NewMetricsServerSource(client metricsv.Interface) *MetricsServerSource {
	return &MetricsServerSource{client: client}
}

func (m *MetricsServerSource) FetchStatistics(ctx context.Context, workload *models.Workload, dimension models.ResourceDimension, _ time.Duration, percentile float64) (models.UsageStatistics, error) {
	podMetrics, err := m.client.MetricsV1beta1().PodMetricses(workload.Namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return models.UsageStatistics{}, fmt.Errorf("failed to get pod metrics: %w", err)
	}

	owned := podMatcher(workload)
	var peak float64
	observed := 0
	for _, pm := range podMetrics.Items {
		if !owned.MatchString(pm.Name) {
			continue
		}
		for _, c := range pm.Containers {
			if c.Name != workload.Container {
				continue
			}
			var v float64
			if dimension == models.DimensionCPU {
				v = float64(c.Usage.Cpu().MilliValue())
			} else {
				v = float64(c.Usage.Memory().Value()) / bytesPerMiB
			}
			if observed == 0 || v > peak {
				peak = v
			}
			observed++
		}
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("metrics-server usage",
		"workload", workload.Key(), "dimension", dimension, "pods", observed, "peak", peak)

	return models.UsageStatistics{
		P50:            peak,
		Percentile:     peak,
		PercentileRank: percentile,
		P99:            peak,
		Max:            peak,
		SampleCount:    observed,
	}, nil
}

// IsAvailable checks whether the metrics API is served
func (m *MetricsServerSource) IsAvailable(ctx context.Context) bool {
	_, err := m.client.MetricsV1beta1().PodMetricses("").List(ctx, metav1.ListOptions{Limit: 1})
	return err == nil
}

func (m *MetricsServerSource) Name() string {
	return "metrics-server"
}
