// Package analyzer runs the recommendation engine over a batch of workloads.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/opscart/k8s-rightsizer/pkg/datasource"
	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/pricing"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
)

const (
	DefaultLookback    = 7 * 24 * time.Hour
	DefaultConcurrency = 4
)

// Options controls a batch run
type Options struct {
	ClusterID string
	Namespace string
	Lookback  time.Duration

	// Percentile overrides the percentile of every dimension when set
	Percentile float64

	// Sizing holds per-dimension overrides. Missing dimensions use the defaults.
	Sizing map[models.ResourceDimension]recommender.SizingConfig

	Concurrency int

	// RawSamples fetches the full series and computes statistics locally
	RawSamples bool
}

// RunObserver is notified when a run completes
type RunObserver interface {
	Observe(run *models.AnalysisRun, duration time.Duration)
}

// Analyzer sizes every (workload, dimension) pair of a batch
type Analyzer struct {
	source   datasource.StatisticsSource
	samples  datasource.SampleSource
	pricing  pricing.Provider
	observer RunObserver
	opts     Options
	now      func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithPricing estimates monthly savings with p
func WithPricing(p pricing.Provider) Option {
	return func(a *Analyzer) { a.pricing = p }
}

// WithObserver reports finished runs to o
func WithObserver(o RunObserver) Option {
	return func(a *Analyzer) { a.observer = o }
}

// WithSampleSource sets the source used in raw-samples mode
func WithSampleSource(s datasource.SampleSource) Option {
	return func(a *Analyzer) { a.samples = s }
}

// New creates an analyzer reading statistics from source.
// When source also returns raw samples it is used for raw-samples mode.
func New(source datasource.StatisticsSource, opts Options, options ...Option) *Analyzer {
	if opts.Lookback <= 0 {
		opts.Lookback = DefaultLookback
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	a := &Analyzer{
		source: source,
		opts:   opts,
		now:    time.Now,
	}
	if s, ok := source.(datasource.SampleSource); ok {
		a.samples = s
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// SizingFor returns the effective configuration for a dimension
func (a *Analyzer) SizingFor(dimension models.ResourceDimension) recommender.SizingConfig {
	cfg, ok := a.opts.Sizing[dimension]
	if !ok {
		cfg = recommender.DefaultSizingConfig(dimension)
	}
	if a.opts.Percentile > 0 {
		cfg.Percentile = a.opts.Percentile
	}
	return cfg
}

// Run analyzes every workload. Failures of a single workload are recorded on its row;
// an invalid configuration or a cancelled context aborts the whole run.
func (a *Analyzer) Run(ctx context.Context, workloads []*models.Workload) (*models.AnalysisRun, error) {
	log := logr.FromContextOrDiscard(ctx)

	sizing := make(map[models.ResourceDimension]recommender.SizingConfig, len(models.Dimensions))
	for _, dim := range models.Dimensions {
		cfg := a.SizingFor(dim)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("%s sizing: %w", dim, err)
		}
		sizing[dim] = cfg
	}
	if a.opts.RawSamples && a.samples == nil {
		return nil, fmt.Errorf("%w: source %s cannot return raw samples", recommender.ErrInvalidConfiguration, a.source.Name())
	}

	started := a.now()
	run := &models.AnalysisRun{
		ID:         uuid.NewString(),
		ClusterID:  a.opts.ClusterID,
		Namespace:  a.opts.Namespace,
		Lookback:   a.opts.Lookback,
		Percentile: sizing[models.DimensionCPU].Percentile,
		Source:     a.source.Name(),
		StartedAt:  started,
		Results:    make([]*models.WorkloadResult, len(workloads)),
	}

	log.Info("starting analysis", "run", run.ID, "workloads", len(workloads),
		"lookback", a.opts.Lookback.String(), "source", run.Source, "concurrency", a.opts.Concurrency)

	for i, w := range workloads {
		run.Results[i] = &models.WorkloadResult{
			Workload: w,
			Results:  make([]*models.DimensionResult, len(models.Dimensions)),
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)

	for i, w := range workloads {
		for j, dim := range models.Dimensions {
			g.Go(func() error {
				res, err := a.analyzeDimension(gctx, w, dim, sizing[dim])
				run.Results[i].Results[j] = res
				return err
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis aborted: %w", err)
	}

	for _, row := range run.Results {
		row.Risk = recommender.AssessRisk(row.Results)
	}

	run.FinishedAt = a.now()
	duration := run.FinishedAt.Sub(started)
	if a.observer != nil {
		a.observer.Observe(run, duration)
	}

	log.Info("analysis finished", "run", run.ID, "workloads", len(workloads),
		"failures", run.FailureCount(), "duration", duration.String())

	return run, nil
}

// analyzeDimension returns an error only when the whole run must stop
func (a *Analyzer) analyzeDimension(ctx context.Context, w *models.Workload, dim models.ResourceDimension, cfg recommender.SizingConfig) (*models.DimensionResult, error) {
	res := &models.DimensionResult{Dimension: dim}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("workload", w.Key(), "dimension", string(dim))

	stats, err := a.statistics(ctx, w, dim, cfg.Percentile, res)
	if err != nil {
		return a.fail(ctx, log, res, fmt.Errorf("fetch statistics: %w", err))
	}
	res.Statistics = &stats

	rec, err := recommender.ComputeRecommendation(stats, dim, cfg)
	if err != nil {
		return a.fail(ctx, log, res, err)
	}
	res.Recommendation = rec

	if current := w.Resources.Request(dim); current > 0 {
		delta, err := recommender.CompareToExisting(rec, current)
		if err != nil {
			return a.fail(ctx, log, res, err)
		}
		recommender.Assess(rec, delta)
		res.Delta = delta
		res.SavingsMonthly = pricing.MonthlySavings(a.pricing, dim, current, rec.RequestValue)
	}

	log.V(1).Info("sized", "request", rec.RequestValue, "limit", rec.LimitValue, "warnings", len(rec.Warnings))
	return res, nil
}

func (a *Analyzer) statistics(ctx context.Context, w *models.Workload, dim models.ResourceDimension, percentile float64, res *models.DimensionResult) (models.UsageStatistics, error) {
	if !a.opts.RawSamples {
		return a.source.FetchStatistics(ctx, w, dim, a.opts.Lookback, percentile)
	}

	samples, err := a.samples.FetchSamples(ctx, w, dim, a.opts.Lookback)
	if err != nil {
		return models.UsageStatistics{}, err
	}

	pattern := AnalyzeUsagePattern(samples)
	res.Pattern = &pattern

	if trend, err := CalculateGrowthTrend(samples); err == nil {
		res.Growth = trend
	} else {
		logr.FromContextOrDiscard(ctx).V(1).Info("no growth trend", "workload", w.Key(), "reason", err.Error())
	}

	return CalculateStatistics(samples, percentile)
}

// fail records a per-workload error, or escalates it when it affects every workload
func (a *Analyzer) fail(ctx context.Context, log logr.Logger, res *models.DimensionResult, err error) (*models.DimensionResult, error) {
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(err, recommender.ErrInvalidConfiguration) {
		return res, err
	}

	res.Error = err.Error()
	log.Info("skipping", "error", res.Error)
	return res, nil
}
