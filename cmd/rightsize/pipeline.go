package main

import (
	"context"
	"fmt"
	"os"

	"github.com/go-logr/logr"
	metricsv "k8s.io/metrics/pkg/client/clientset/versioned"

	"github.com/opscart/k8s-rightsizer/pkg/analyzer"
	"github.com/opscart/k8s-rightsizer/pkg/config"
	"github.com/opscart/k8s-rightsizer/pkg/datasource"
	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/pricing"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
	"github.com/opscart/k8s-rightsizer/pkg/scanner"
	"github.com/opscart/k8s-rightsizer/pkg/storage"
)

// pipelineOptions are the per-command knobs on top of the environment config
type pipelineOptions struct {
	Namespace     string
	AllNamespaces bool
	RawSamples    bool

	// PercentileOverride replaces the sizing file's percentiles when non-zero
	PercentileOverride float64

	Observer analyzer.RunObserver
}

// pipeline scans the cluster and sizes every workload found
type pipeline struct {
	scanner  *scanner.Scanner
	analyzer *analyzer.Analyzer
	opts     pipelineOptions
}

func (p *pipeline) Run(ctx context.Context) (*models.AnalysisRun, error) {
	workloads, err := p.scanner.Scan(ctx, p.opts.Namespace, p.opts.AllNamespaces)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return p.analyzer.Run(ctx, workloads)
}

// loadSettings applies the preset, validates the environment config and reads the sizing file
func loadSettings() (*config.SizingFile, error) {
	if err := cfg.ApplyPreset(preset); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if configFile == "" {
		sizing := config.DefaultSizingFile()
		return sizing, sizing.Validate()
	}
	return config.LoadSizingFile(configFile)
}

// percentileOverride returns the percentile chosen outside the sizing file, or 0
func percentileOverride(flagValue float64) float64 {
	switch {
	case flagValue > 0:
		return flagValue
	case preset != "" && preset != "default", os.Getenv("RIGHTSIZE_PERCENTILE") != "":
		return cfg.Percentile
	}
	return 0
}

func buildPipeline(ctx context.Context, sizing *config.SizingFile, opts pipelineOptions) (*pipeline, error) {
	log := logr.FromContextOrDiscard(ctx)

	if !opts.AllNamespaces && opts.Namespace == "" {
		return nil, fmt.Errorf("%w: either --namespace or --all-namespaces must be specified", recommender.ErrInvalidConfiguration)
	}

	kube, metricsClient, err := scanner.NewClients(kubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	source, err := selectSource(ctx, metricsClient)
	if err != nil {
		return nil, err
	}

	providerName := cfg.PricingProvider
	if providerName == "" && sizing.Pricing.Provider == "" {
		detected, region, err := pricing.DetectProvider(ctx, kube)
		if err != nil {
			log.V(1).Info("Cloud detection failed, using default pricing", "error", err.Error())
		}
		log.V(1).Info("Detected cloud provider", "provider", detected, "region", region)
		providerName = detected
	}
	priceList, err := sizing.PricingProvider(providerName)
	if err != nil {
		return nil, err
	}

	namespace := opts.Namespace
	if opts.AllNamespaces {
		namespace = ""
	}

	options := []analyzer.Option{analyzer.WithPricing(priceList)}
	if opts.Observer != nil {
		options = append(options, analyzer.WithObserver(opts.Observer))
	}

	a := analyzer.New(source, analyzer.Options{
		ClusterID:   cfg.ClusterID,
		Namespace:   namespace,
		Lookback:    cfg.MetricsDuration,
		Percentile:  opts.PercentileOverride,
		Sizing:      sizing.Sizing(),
		Concurrency: cfg.Concurrency,
		RawSamples:  opts.RawSamples,
	}, options...)

	return &pipeline{
		scanner:  scanner.New(kube, cfg.ClusterID),
		analyzer: a,
		opts:     opts,
	}, nil
}

// selectSource prefers Prometheus and falls back to metrics-server when it is unreachable
func selectSource(ctx context.Context, metricsClient metricsv.Interface) (datasource.StatisticsSource, error) {
	log := logr.FromContextOrDiscard(ctx)

	prom, err := datasource.NewPrometheusSource(datasource.PrometheusConfig{
		URL:         cfg.PrometheusURL,
		BearerToken: cfg.PrometheusToken,
	})
	if err != nil {
		log.Info("Prometheus initialization failed, falling back to metrics-server", "error", err.Error())
	} else if prom.IsAvailable(ctx) {
		log.V(1).Info("Using Prometheus", "url", prom.URL(), "lookbackDays", cfg.MetricsLookbackDays)
		return prom, nil
	} else {
		log.Info("Prometheus not reachable, falling back to metrics-server", "url", prom.URL())
	}

	ms := datasource.NewMetricsServerSource(metricsClient)
	if !ms.IsAvailable(ctx) {
		return nil, fmt.Errorf("no metrics source available: Prometheus at %s and metrics-server are both unreachable", cfg.PrometheusURL)
	}
	log.Info("Using metrics-server; recommendations reflect current usage only")
	return ms, nil
}

func openStore(ctx context.Context) (*storage.SQLStore, error) {
	store, err := storage.Open(ctx, storage.Config{
		Type: cfg.StorageDriver(),
		Path: cfg.StoragePath,
		URL:  cfg.DatabaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}
