package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/opscart/k8s-rightsizer/pkg/config"
	"github.com/opscart/k8s-rightsizer/pkg/logging"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	// Global flags
	kubeconfig string
	configFile string
	preset     string
	verbose    bool
	logJSON    bool

	cfg *config.Config
)

func main() {
	cfg = config.NewConfig()

	rootCmd := &cobra.Command{
		Use:           "rightsize",
		Short:         "Kubernetes resource right-sizing recommendations",
		Long:          `Recommend CPU and memory requests and limits from observed usage percentiles in Prometheus or metrics-server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				cfg.Verbose = true
			}
			log := logging.New(os.Stderr, logging.Options{Verbose: cfg.Verbose, JSON: logJSON})
			cmd.SetContext(logr.NewContext(cmd.Context(), log))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync(logr.FromContextOrDiscard(cmd.Context()))
		},
	}

	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path to the kubeconfig file (defaults to in-cluster or ~/.kube/config)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Sizing configuration YAML file")
	rootCmd.PersistentFlags().StringVar(&preset, "preset", "", "Lookback/percentile preset: dev, production, critical")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Log in JSON")

	rootCmd.AddCommand(newAnalyzeCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, recommender.ErrInvalidConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
