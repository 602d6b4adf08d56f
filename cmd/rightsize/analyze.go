package main

import (
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/opscart/k8s-rightsizer/pkg/metrics"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
	"github.com/opscart/k8s-rightsizer/pkg/reporter"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		namespace     string
		allNamespaces bool
		outputFormat  string
		lookbackDays  int
		percentile    float64
		concurrency   int
		save          bool
		rawSamples    bool
		metricsFile   string
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Recommend requests and limits for workloads",
		Example: `  rightsize analyze -n shop
  rightsize analyze -A -o commands
  rightsize analyze -n shop --lookback 14 --percentile 99 -o vpa`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logr.FromContextOrDiscard(ctx)

			format, err := reporter.ParseFormat(outputFormat)
			if err != nil {
				return fmt.Errorf("%w: %w", recommender.ErrInvalidConfiguration, err)
			}
			if cmd.Flags().Changed("lookback") {
				cfg.SetLookbackDays(lookbackDays)
			}
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if percentile != 0 {
				cfg.Percentile = percentile
			}

			sizing, err := loadSettings()
			if err != nil {
				return err
			}

			opts := pipelineOptions{
				Namespace:          namespace,
				AllNamespaces:      allNamespaces,
				RawSamples:         rawSamples,
				PercentileOverride: percentileOverride(percentile),
			}
			var collector *metrics.Collector
			if metricsFile != "" {
				collector = metrics.NewCollector()
				opts.Observer = collector
			}

			p, err := buildPipeline(ctx, sizing, opts)
			if err != nil {
				return err
			}

			run, err := p.Run(ctx)
			if err != nil {
				return err
			}

			if err := reporter.Write(cmd.OutOrStdout(), run, format); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}

			if save {
				store, err := openStore(ctx)
				if err != nil {
					return err
				}
				defer store.Close()

				if err := store.SaveRun(ctx, run); err != nil {
					return fmt.Errorf("failed to save run: %w", err)
				}
				log.Info("Saved run", "run", run.ID, "storage", cfg.StorageDriver())
			}

			if collector != nil {
				if err := collector.WriteTextfile(metricsFile); err != nil {
					return err
				}
				log.V(1).Info("Wrote metrics", "path", metricsFile)
			}

			if n := run.FailureCount(); n > 0 {
				log.Info("Some workloads could not be sized", "failures", n, "elapsed", run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String())
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to analyze")
	cmd.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "Analyze all namespaces")
	cmd.Flags().StringVarP(&outputFormat, "output", "o", string(reporter.FormatTable), "Output format: table, json, yaml, csv, commands, vpa")
	cmd.Flags().IntVar(&lookbackDays, "lookback", 7, "Days of usage history to analyze")
	cmd.Flags().Float64Var(&percentile, "percentile", 0, "Percentile for every resource, e.g. 95 (defaults to the sizing configuration)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Workload dimensions analyzed in parallel")
	cmd.Flags().BoolVar(&save, "save", false, "Save the run to history storage")
	cmd.Flags().BoolVar(&rawSamples, "raw-samples", false, "Fetch full usage series and compute statistics locally")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics to a node-exporter textfile")

	return cmd
}
