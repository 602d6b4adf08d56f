// Package metrics exposes run outcomes as Prometheus collectors.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

const namespace = "rightsizer"

// Collector records run results. It satisfies analyzer.RunObserver.
type Collector struct {
	gatherer prometheus.Gatherer

	RecommendationsTotal *prometheus.CounterVec
	WarningsTotal        *prometheus.CounterVec
	FailuresTotal        *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	RunsTotal            prometheus.Counter
	LastRunTimestamp     prometheus.Gauge
	PotentialSavingsUSD  prometheus.Gauge

	RecommendedRequest *prometheus.GaugeVec
	RecommendedLimit   *prometheus.GaugeVec
	CurrentRequest     *prometheus.GaugeVec
}

// NewCollector registers the collectors on a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	return NewCollectorWith(reg, reg)
}

// NewCollectorWith registers the collectors on reg and gathers from g
func NewCollectorWith(reg prometheus.Registerer, g prometheus.Gatherer) *Collector {
	factory := promauto.With(reg)
	workloadLabels := []string{"namespace", "kind", "workload", "container", "resource"}

	return &Collector{
		gatherer: g,

		RecommendationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendations_total",
			Help:      "Total number of recommendations produced",
		}, []string{"resource"}),

		WarningsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "warnings_total",
			Help:      "Total number of warnings attached to recommendations",
		}, []string{"kind"}),

		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Total number of workload dimensions that could not be sized",
		}, []string{"resource"}),

		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of an analysis run",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),

		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of completed analysis runs",
		}),

		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last analysis run finished",
		}),

		PotentialSavingsUSD: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "potential_savings_monthly_usd",
			Help:      "Estimated monthly savings of the last run in USD",
		}),

		RecommendedRequest: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommended_request",
			Help:      "Recommended request in millicores (cpu) or MiB (memory)",
		}, workloadLabels),

		RecommendedLimit: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recommended_limit",
			Help:      "Recommended limit in millicores (cpu) or MiB (memory)",
		}, workloadLabels),

		CurrentRequest: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_request",
			Help:      "Configured request in millicores (cpu) or MiB (memory)",
		}, workloadLabels),
	}
}

// Observe records a finished run. Per-workload gauges are reset so removed workloads disappear.
func (c *Collector) Observe(run *models.AnalysisRun, duration time.Duration) {
	c.RunsTotal.Inc()
	c.RunDuration.Observe(duration.Seconds())
	c.LastRunTimestamp.Set(float64(run.FinishedAt.Unix()))
	c.PotentialSavingsUSD.Set(run.TotalSavings())

	c.RecommendedRequest.Reset()
	c.RecommendedLimit.Reset()
	c.CurrentRequest.Reset()

	for _, row := range run.Results {
		wl := row.Workload
		for _, d := range row.Results {
			if d.Failed() {
				c.FailuresTotal.WithLabelValues(string(d.Dimension)).Inc()
				continue
			}
			rec := d.Recommendation
			if rec == nil {
				continue
			}

			c.RecommendationsTotal.WithLabelValues(string(d.Dimension)).Inc()
			for _, w := range rec.Warnings {
				c.WarningsTotal.WithLabelValues(string(w.Kind)).Inc()
			}

			labels := prometheus.Labels{
				"namespace": wl.Namespace,
				"kind":      wl.Kind,
				"workload":  wl.Name,
				"container": wl.Container,
				"resource":  string(d.Dimension),
			}
			c.RecommendedRequest.With(labels).Set(float64(rec.RequestValue))
			c.RecommendedLimit.With(labels).Set(float64(rec.LimitValue))
			if current := wl.Resources.Request(d.Dimension); current > 0 {
				c.CurrentRequest.With(labels).Set(float64(current))
			}
		}
	}
}

// Gatherer returns the gatherer the collectors are exposed through
func (c *Collector) Gatherer() prometheus.Gatherer {
	return c.gatherer
}

// WriteTextfile writes the current values in the node-exporter textfile format
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
