package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// WriteCSV writes one row per workload and dimension, then a summary block
func WriteCSV(writer io.Writer, run *models.AnalysisRun) error {
	w := csv.NewWriter(writer)

	header := []string{
		"Namespace",
		"Kind",
		"Workload",
		"Container",
		"Environment",
		"Resource",
		"Unit",
		"Current Request",
		"Recommended Request",
		"Recommended Limit",
		"Change (%)",
		"Monthly Savings ($)",
		"Risk",
		"Warnings",
		"Error",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range run.Results {
		wl := row.Workload
		for _, d := range row.Results {
			record := []string{
				wl.Namespace,
				wl.Kind,
				wl.Name,
				wl.Container,
				string(wl.Environment),
				string(d.Dimension),
				d.Dimension.Unit(),
				strconv.FormatInt(wl.Resources.Request(d.Dimension), 10),
				"", "", "", "",
				string(row.Risk),
				"",
				d.Error,
			}
			if rec := d.Recommendation; rec != nil {
				record[8] = strconv.FormatInt(rec.RequestValue, 10)
				record[9] = strconv.FormatInt(rec.LimitValue, 10)
				record[13] = formatWarnings(rec.Warnings)
			}
			if d.Delta != nil {
				change := d.Delta.Percent
				if d.Delta.Direction == models.DeltaReduction {
					change = -change
				}
				record[10] = fmt.Sprintf("%.1f", change)
				record[11] = fmt.Sprintf("%.2f", d.SavingsMonthly)
			}

			if err := w.Write(record); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	s := Summarize(run)
	summary := [][]string{
		{},
		{"SUMMARY"},
		{"Total Workloads", strconv.Itoa(s.Workloads)},
		{"Recommendations", strconv.Itoa(s.Recommendations)},
		{"Failures", strconv.Itoa(s.Failures)},
		{"Total Monthly Savings", fmt.Sprintf("$%.2f", s.TotalSavings)},
		{},
		{"ENVIRONMENT BREAKDOWN"},
		{"Environment", "Workloads", "Recommendations", "Savings"},
	}
	for _, env := range s.SortedEnvironments() {
		summary = append(summary, []string{
			env.Environment,
			strconv.Itoa(env.WorkloadCount),
			strconv.Itoa(env.Recommendations),
			fmt.Sprintf("$%.2f", env.TotalSavings),
		})
	}

	if err := w.WriteAll(summary); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}
	return nil
}
