// Package reporter renders analysis runs for humans and tools.
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"sigs.k8s.io/yaml"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatTable    ReportFormat = "table"
	FormatJSON     ReportFormat = "json"
	FormatYAML     ReportFormat = "yaml"
	FormatCSV      ReportFormat = "csv"
	FormatCommands ReportFormat = "commands"
	FormatVPA      ReportFormat = "vpa"
)

// Formats lists every supported format
var Formats = []ReportFormat{FormatTable, FormatJSON, FormatYAML, FormatCSV, FormatCommands, FormatVPA}

// ParseFormat validates a format name
func ParseFormat(s string) (ReportFormat, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (table, json, yaml, csv, commands, vpa)", s)
}

// Summary aggregates a run
type Summary struct {
	Workloads        int                          `json:"workloads"`
	Recommendations  int                          `json:"recommendations"`
	Failures         int                          `json:"failures"`
	Warnings         map[models.WarningKind]int   `json:"warnings"`
	TotalSavings     float64                      `json:"totalSavings"`
	EnvironmentStats map[string]*EnvironmentStats `json:"environments"`
}

// EnvironmentStats holds statistics per environment
type EnvironmentStats struct {
	Environment     string  `json:"environment"`
	WorkloadCount   int     `json:"workloads"`
	Recommendations int     `json:"recommendations"`
	TotalSavings    float64 `json:"totalSavings"`
}

// Report is the document behind the json and yaml formats
type Report struct {
	Run     *models.AnalysisRun `json:"run"`
	Summary *Summary            `json:"summary"`
}

// Summarize computes the summary of a run
func Summarize(run *models.AnalysisRun) *Summary {
	s := &Summary{
		Warnings:         make(map[models.WarningKind]int),
		EnvironmentStats: make(map[string]*EnvironmentStats),
	}

	for _, row := range run.Results {
		s.Workloads++

		env := string(row.Workload.Environment)
		if env == "" {
			env = string(models.EnvironmentUnknown)
		}
		envStat, ok := s.EnvironmentStats[env]
		if !ok {
			envStat = &EnvironmentStats{Environment: env}
			s.EnvironmentStats[env] = envStat
		}
		envStat.WorkloadCount++

		for _, d := range row.Results {
			if d.Failed() {
				s.Failures++
				continue
			}
			if d.Recommendation == nil {
				continue
			}
			s.Recommendations++
			envStat.Recommendations++
			for _, w := range d.Recommendation.Warnings {
				s.Warnings[w.Kind]++
			}
			s.TotalSavings += d.SavingsMonthly
			envStat.TotalSavings += d.SavingsMonthly
		}
	}

	return s
}

// SortedEnvironments returns the per-environment stats ordered by name
func (s *Summary) SortedEnvironments() []*EnvironmentStats {
	stats := make([]*EnvironmentStats, 0, len(s.EnvironmentStats))
	for _, st := range s.EnvironmentStats {
		stats = append(stats, st)
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Environment < stats[j].Environment })
	return stats
}

// Write renders run to w in the given format
func Write(w io.Writer, run *models.AnalysisRun, format ReportFormat) error {
	switch format {
	case FormatTable, "":
		return WriteTable(w, run)
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(&Report{Run: run, Summary: Summarize(run)})
	case FormatYAML:
		data, err := yaml.Marshal(&Report{Run: run, Summary: Summarize(run)})
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = w.Write(data)
		return err
	case FormatCSV:
		return WriteCSV(w, run)
	case FormatCommands:
		return WriteCommands(w, run)
	case FormatVPA:
		return WriteVPA(w, run)
	}
	return fmt.Errorf("unknown output format %q", format)
}
