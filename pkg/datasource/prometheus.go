package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// PrometheusConfig configures the Prometheus statistics source
type PrometheusConfig struct {
	URL         string
	BearerToken string
	Timeout     time.Duration

	// Resolution is the subquery step used to sample the lookback window
	Resolution time.Duration
	// RateWindow is the range used to turn the CPU counter into a rate
	RateWindow time.Duration

	Retries       int
	RetryInterval time.Duration
}

// PrometheusSource computes usage statistics with PromQL over-time functions
type PrometheusSource struct {
	client     v1.API
	url        string
	resolution time.Duration
	rateWindow time.Duration
	timeout    time.Duration
	backoff    wait.Backoff
	now        func() time.Time
}

// NewPrometheusSource creates a source for the Prometheus server at cfg.URL
func NewPrometheusSource(cfg PrometheusConfig) (*PrometheusSource, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("prometheus URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Resolution <= 0 {
		cfg.Resolution = 5 * time.Minute
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = 5 * time.Minute
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}

	var rt http.RoundTripper = api.DefaultRoundTripper
	if cfg.BearerToken != "" {
		rt = &bearerRoundTripper{token: cfg.BearerToken, next: rt}
	}

	client, err := api.NewClient(api.Config{
		Address:      cfg.URL,
		RoundTripper: rt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &PrometheusSource{
		client:     v1.NewAPI(client),
		url:        cfg.URL,
		resolution: cfg.Resolution,
		rateWindow: cfg.RateWindow,
		timeout:    cfg.Timeout,
		backoff: wait.Backoff{
			Duration: cfg.RetryInterval,
			Factor:   2.0,
			Jitter:   0.1,
			Steps:    cfg.Retries,
		},
		now: time.Now,
	}, nil
}

// FetchStatistics returns P50, the requested percentile, P99 and max over the lookback window.
// A workload with no samples yields zero SampleCount and no error.
func (p *PrometheusSource) FetchStatistics(ctx context.Context, workload *models.Workload, dimension models.ResourceDimension, lookback time.Duration, percentile float64) (models.UsageStatistics, error) {
	series := p.seriesExpr(workload, dimension)
	window := fmt.Sprintf("[%s:%s]", model.Duration(lookback), model.Duration(p.resolution))

	count, found, err := p.queryScalar(ctx, fmt.Sprintf("max(count_over_time(%s%s))", series, window))
	if err != nil {
		return models.UsageStatistics{}, fmt.Errorf("sample count query failed: %w", err)
	}
	if !found || count == 0 {
		return models.UsageStatistics{PercentileRank: percentile}, nil
	}

	quantile := func(q float64) (float64, error) {
		v, _, err := p.queryScalar(ctx, fmt.Sprintf("max(quantile_over_time(%g, %s%s))", q, series, window))
		if err != nil {
			return 0, fmt.Errorf("p%g query failed: %w", q*100, err)
		}
		return v, nil
	}

	stats := models.UsageStatistics{
		PercentileRank: percentile,
		SampleCount:    int(count),
	}
	if stats.P50, err = quantile(0.5); err != nil {
		return models.UsageStatistics{}, err
	}
	if stats.Percentile, err = quantile(percentile / 100); err != nil {
		return models.UsageStatistics{}, err
	}
	if stats.P99, err = quantile(0.99); err != nil {
		return models.UsageStatistics{}, err
	}
	if stats.Max, _, err = p.queryScalar(ctx, fmt.Sprintf("max(max_over_time(%s%s))", series, window)); err != nil {
		return models.UsageStatistics{}, fmt.Errorf("max query failed: %w", err)
	}

	scale := nativeScale(dimension)
	stats.P50 *= scale
	stats.Percentile *= scale
	stats.P99 *= scale
	stats.Max *= scale

	return stats, nil
}

// FetchSamples returns the per-step usage series over the lookback window
func (p *PrometheusSource) FetchSamples(ctx context.Context, workload *models.Workload, dimension models.ResourceDimension, lookback time.Duration) ([]models.UsageSample, error) {
	query := fmt.Sprintf("max(%s)", p.seriesExpr(workload, dimension))
	end := p.now()
	r := v1.Range{
		Start: end.Add(-lookback),
		End:   end,
		Step:  p.resolution,
	}

	logr.FromContextOrDiscard(ctx).V(1).Info("prometheus range query", "query", query, "start", r.Start, "step", r.Step)

	var result model.Value
	err := p.retry(ctx, func(ctx context.Context) error {
		var warnings v1.Warnings
		var err error
		result, warnings, err = p.client.QueryRange(ctx, query, r)
		p.logWarnings(ctx, warnings)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("prometheus range query failed: %w", err)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type: %T", result)
	}

	scale := nativeScale(dimension)
	var samples []models.UsageSample
	for _, stream := range matrix {
		for _, pair := range stream.Values {
			samples = append(samples, models.UsageSample{
				Timestamp: pair.Timestamp.Time(),
				Value:     float64(pair.Value) * scale,
			})
		}
	}

	return samples, nil
}

// IsAvailable checks if Prometheus answers queries
func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, _, err := p.client.Query(ctx, "up", p.now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "prometheus"
}

// URL returns the server address
func (p *PrometheusSource) URL() string {
	return p.url
}

// seriesExpr selects the usage series of every pod of the workload
func (p *PrometheusSource) seriesExpr(workload *models.Workload, dimension models.ResourceDimension) string {
	selector := fmt.Sprintf(`namespace=%q,pod=~%q,container=%q`,
		workload.Namespace, podNamePattern(workload), workload.Container)

	if dimension == models.DimensionCPU {
		return fmt.Sprintf("rate(container_cpu_usage_seconds_total{%s}[%s])", selector, model.Duration(p.rateWindow))
	}
	return fmt.Sprintf("container_memory_working_set_bytes{%s}", selector)
}

func (p *PrometheusSource) queryScalar(ctx context.Context, query string) (float64, bool, error) {
	logr.FromContextOrDiscard(ctx).V(1).Info("prometheus query", "query", query)

	var result model.Value
	err := p.retry(ctx, func(ctx context.Context) error {
		var warnings v1.Warnings
		var err error
		result, warnings, err = p.client.Query(ctx, query, p.now())
		p.logWarnings(ctx, warnings)
		return err
	})
	if err != nil {
		return 0, false, err
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return 0, false, fmt.Errorf("unexpected result type: %T", result)
	}
	if len(vector) == 0 {
		return 0, false, nil
	}

	return float64(vector[0].Value), true, nil
}

// retry runs fn with exponential backoff while it fails with a transient error
func (p *PrometheusSource) retry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	attempt := 0

	err := wait.ExponentialBackoffWithContext(ctx, p.backoff, func(ctx context.Context) (bool, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		lastErr = fn(attemptCtx)
		cancel()
		if lastErr == nil {
			return true, nil
		}
		// a per-attempt timeout is retried while the caller's context is still live
		if ctx.Err() == nil && errors.Is(lastErr, context.DeadlineExceeded) {
			logr.FromContextOrDiscard(ctx).V(1).Info("prometheus query timed out", "attempt", attempt, "timeout", p.timeout.String())
			return false, nil
		}
		if !retryable(lastErr) {
			return false, lastErr
		}
		logr.FromContextOrDiscard(ctx).V(1).Info("retrying prometheus query", "attempt", attempt, "error", lastErr.Error())
		return false, nil
	})

	if err != nil && wait.Interrupted(err) && lastErr != nil && ctx.Err() == nil {
		return fmt.Errorf("giving up after %d attempts: %w", attempt, lastErr)
	}
	return err
}

func (p *PrometheusSource) logWarnings(ctx context.Context, warnings v1.Warnings) {
	if len(warnings) > 0 {
		logr.FromContextOrDiscard(ctx).Info("prometheus returned warnings", "warnings", []string(warnings))
	}
}

// retryable reports whether err is worth another attempt
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var apiErr *v1.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case v1.ErrTimeout, v1.ErrServer:
			return true
		}
		return false
	}

	// transport level failures
	return true
}

func nativeScale(dimension models.ResourceDimension) float64 {
	if dimension == models.DimensionCPU {
		return 1000 // cores to millicores
	}
	return 1.0 / bytesPerMiB
}

type bearerRoundTripper struct {
	token string
	next  http.RoundTripper
}

func (b *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(req)
}
