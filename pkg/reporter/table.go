package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

const none = "<none>"

// WriteTable prints one line per workload and dimension followed by a summary
func WriteTable(w io.Writer, run *models.AnalysisRun) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAMESPACE\tKIND\tNAME\tCONTAINER\tRESOURCE\tCURRENT\tREQUEST\tLIMIT\tCHANGE\tSAVINGS\tRISK\tWARNINGS\n")

	for _, row := range run.Results {
		wl := row.Workload
		for _, d := range row.Results {
			current := formatQuantity(d.Dimension, wl.Resources.Request(d.Dimension))

			if d.Failed() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t-\t-\t-\t-\t%s\terror: %s\n",
					wl.Namespace, wl.Kind, wl.Name, wl.Container, d.Dimension, current, row.Risk, d.Error)
				continue
			}
			if d.Recommendation == nil {
				continue
			}

			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				wl.Namespace,
				wl.Kind,
				wl.Name,
				wl.Container,
				d.Dimension,
				current,
				formatQuantity(d.Dimension, d.Recommendation.RequestValue),
				formatQuantity(d.Dimension, d.Recommendation.LimitValue),
				formatDelta(d.Delta),
				formatSavings(d),
				row.Risk,
				formatWarnings(d.Recommendation.Warnings))
		}
	}

	if err := tw.Flush(); err != nil {
		return err
	}

	return writeSummary(w, Summarize(run))
}

func writeSummary(w io.Writer, s *Summary) error {
	fmt.Fprintf(w, "\nSUMMARY:\n\n")

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Workloads\t%d\n", s.Workloads)
	fmt.Fprintf(tw, "Recommendations\t%d\n", s.Recommendations)
	fmt.Fprintf(tw, "Failures\t%d\n", s.Failures)
	for _, kind := range []models.WarningKind{models.WarningNearLimitSaturation, models.WarningUnderUtilized, models.WarningIncreaseNeeded} {
		if n := s.Warnings[kind]; n > 0 {
			fmt.Fprintf(tw, "%s\t%d\n", kind, n)
		}
	}
	fmt.Fprintf(tw, "Estimated monthly savings\t$%.2f\n", s.TotalSavings)

	if len(s.EnvironmentStats) > 0 {
		fmt.Fprintf(tw, "\nENVIRONMENT\tWORKLOADS\tRECOMMENDATIONS\tSAVINGS\n")
		for _, env := range s.SortedEnvironments() {
			fmt.Fprintf(tw, "%s\t%d\t%d\t$%.2f\n", env.Environment, env.WorkloadCount, env.Recommendations, env.TotalSavings)
		}
	}

	return tw.Flush()
}

// formatQuantity renders a native-unit value the way Kubernetes manifests spell it
func formatQuantity(dimension models.ResourceDimension, value int64) string {
	if value <= 0 {
		return none
	}
	return Quantity(dimension, value).String()
}

// Quantity converts millicores or MiB to a resource.Quantity
func Quantity(dimension models.ResourceDimension, value int64) *resource.Quantity {
	if dimension == models.DimensionCPU {
		return resource.NewMilliQuantity(value, resource.DecimalSI)
	}
	return resource.NewQuantity(value*1024*1024, resource.BinarySI)
}

func formatDelta(delta *models.DeltaReport) string {
	if delta == nil {
		return "-"
	}
	switch delta.Direction {
	case models.DeltaReduction:
		return fmt.Sprintf("-%.0f%%", delta.Percent)
	case models.DeltaIncrease:
		return fmt.Sprintf("+%.0f%%", delta.Percent)
	}
	return "0%"
}

func formatSavings(d *models.DimensionResult) string {
	if d.Delta == nil {
		return "-"
	}
	return fmt.Sprintf("$%.2f", d.SavingsMonthly)
}

func formatWarnings(warnings []models.Warning) string {
	if len(warnings) == 0 {
		return none
	}
	kinds := make([]string, len(warnings))
	for i, w := range warnings {
		kinds[i] = string(w.Kind)
	}
	return strings.Join(kinds, ",")
}
