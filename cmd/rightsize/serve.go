package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-rightsizer/pkg/metrics"
	"github.com/opscart/k8s-rightsizer/pkg/server"
)

func newServeCmd() *cobra.Command {
	var (
		namespace     string
		allNamespaces bool
		addr          string
		schedule      string
		noStore       bool
		retention     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis on a schedule and serve results over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("schedule") {
				cfg.Schedule = schedule
			}

			sizing, err := loadSettings()
			if err != nil {
				return err
			}

			collector := metrics.NewCollector()
			p, err := buildPipeline(ctx, sizing, pipelineOptions{
				Namespace:          namespace,
				AllNamespaces:      allNamespaces,
				PercentileOverride: percentileOverride(0),
				Observer:           collector,
			})
			if err != nil {
				return err
			}

			var srv *server.Server
			opts := server.Options{Addr: cfg.ListenAddr, Schedule: cfg.Schedule, Retention: retention}
			if noStore {
				srv, err = server.New(p.Run, opts, nil, collector)
			} else {
				store, openErr := openStore(ctx)
				if openErr != nil {
					return openErr
				}
				defer store.Close()
				srv, err = server.New(p.Run, opts, store, collector)
			}
			if err != nil {
				return err
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to analyze")
	cmd.Flags().BoolVarP(&allNamespaces, "all-namespaces", "A", false, "Analyze all namespaces")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address")
	cmd.Flags().StringVar(&schedule, "schedule", "@every 6h", "Cron schedule for analysis runs")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Keep runs in memory only")
	cmd.Flags().DurationVar(&retention, "retention", 0, "Delete stored runs older than this after each run, e.g. 720h (0 keeps all)")

	return cmd
}
