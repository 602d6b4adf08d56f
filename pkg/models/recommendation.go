package models

import "time"

// WarningKind tags a risk condition found while sizing
type WarningKind string

const (
	WarningNearLimitSaturation WarningKind = "NEAR_LIMIT_SATURATION"
	WarningUnderUtilized       WarningKind = "UNDER_UTILIZED"
	WarningIncreaseNeeded      WarningKind = "INCREASE_NEEDED"
)

// Warning carries the metric that triggered it and the margin past its threshold
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Metric    string      `json:"metric"`
	Value     float64     `json:"value"`
	Threshold float64     `json:"threshold"`
	Margin    float64     `json:"margin"`
}

// Recommendation is the sizing output for one (entity, dimension) pair
type Recommendation struct {
	Dimension    ResourceDimension `json:"dimension"`
	RequestValue int64             `json:"request"`
	LimitValue   int64             `json:"limit"`
	Warnings     []Warning         `json:"warnings,omitempty"`
}

// HasWarning reports whether a warning of the given kind is present
func (r *Recommendation) HasWarning(kind WarningKind) bool {
	for _, w := range r.Warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// DeltaDirection describes how a recommendation moves the current request
type DeltaDirection string

const (
	DeltaReduction DeltaDirection = "reduction"
	DeltaIncrease  DeltaDirection = "increase"
	DeltaUnchanged DeltaDirection = "unchanged"
)

// DeltaReport compares a recommendation against the current request
type DeltaReport struct {
	Direction   DeltaDirection `json:"direction"`
	Percent     float64        `json:"percent"`
	Current     int64          `json:"current"`
	Recommended int64          `json:"recommended"`
}

// RiskLevel summarizes how risky applying a recommendation is
type RiskLevel string

const (
	RiskNone   RiskLevel = "NONE"
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// DimensionResult is the outcome for one dimension of a workload
type DimensionResult struct {
	Dimension      ResourceDimension `json:"dimension"`
	Statistics     *UsageStatistics  `json:"statistics,omitempty"`
	Pattern        *UsagePattern     `json:"pattern,omitempty"`
	Growth         *GrowthTrend      `json:"growth,omitempty"`
	Recommendation *Recommendation   `json:"recommendation,omitempty"`
	Delta          *DeltaReport      `json:"delta,omitempty"`
	SavingsMonthly float64           `json:"savingsMonthly"`
	Error          string            `json:"error,omitempty"`
}

// Failed reports whether this dimension could not be sized
func (d *DimensionResult) Failed() bool {
	return d.Error != ""
}

// WorkloadResult is one row of an analysis run
type WorkloadResult struct {
	Workload *Workload          `json:"workload"`
	Results  []*DimensionResult `json:"results"`
	Risk     RiskLevel          `json:"risk"`
}

// Dimension returns the result for d, or nil
func (w *WorkloadResult) Dimension(d ResourceDimension) *DimensionResult {
	for _, r := range w.Results {
		if r.Dimension == d {
			return r
		}
	}
	return nil
}

// AnalysisRun is the output of one batch invocation
type AnalysisRun struct {
	ID         string            `json:"id"`
	ClusterID  string            `json:"clusterId"`
	Namespace  string            `json:"namespace"`
	Lookback   time.Duration     `json:"lookback"`
	Percentile float64           `json:"percentile"`
	Source     string            `json:"source"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Results    []*WorkloadResult `json:"results"`
}

// TotalSavings sums estimated monthly savings across all rows
func (r *AnalysisRun) TotalSavings() float64 {
	total := 0.0
	for _, wr := range r.Results {
		for _, d := range wr.Results {
			total += d.SavingsMonthly
		}
	}
	return total
}

// FailureCount counts dimensions that could not be sized
func (r *AnalysisRun) FailureCount() int {
	n := 0
	for _, wr := range r.Results {
		for _, d := range wr.Results {
			if d.Failed() {
				n++
			}
		}
	}
	return n
}
