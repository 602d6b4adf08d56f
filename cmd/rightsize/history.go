package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/reporter"
)

func newHistoryCmd() *cobra.Command {
	var (
		namespace string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "history [workload]",
		Short: "View past runs, or the recommendations recorded for one workload",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, namespace, limit)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs found")
					return nil
				}

				fmt.Fprintln(tw, "ID\tSTARTED\tNAMESPACE\tSOURCE\tWORKLOADS\tFAILURES\tSAVINGS")
				for _, r := range runs {
					ns := r.Namespace
					if ns == "" {
						ns = "*"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t$%.2f\n",
						r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), ns, r.Source,
						r.Workloads, r.Failures, r.TotalSavings)
				}
				return tw.Flush()
			}

			if namespace == "" {
				namespace = "default"
			}
			entries, err := store.WorkloadHistory(ctx, namespace, args[0], limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintf(out, "No history for %s/%s\n", namespace, args[0])
				return nil
			}

			fmt.Fprintln(tw, "CREATED\tCONTAINER\tRESOURCE\tCURRENT\tREQUEST\tLIMIT\tSAVINGS\tRISK\tNOTES")
			for _, e := range entries {
				notes := e.Error
				if notes == "" && len(e.Warnings) > 0 {
					notes = fmt.Sprint(e.Warnings)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t$%.2f\t%s\t%s\n",
					e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Container, e.Dimension,
					quantity(e.Dimension, e.CurrentRequest), quantity(e.Dimension, e.RequestValue),
					quantity(e.Dimension, e.LimitValue), e.SavingsMonthly, e.Risk, notes)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&namespace, "namespace", "n", "", "Namespace to filter by")
	cmd.Flags().IntVar(&limit, "limit", 10, "Number of entries to show")

	return cmd
}

func quantity(dimension models.ResourceDimension, value int64) string {
	if value <= 0 {
		return "-"
	}
	return reporter.Quantity(dimension, value).String()
}
