package storage

import (
	"context"
	"errors"
	"time"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultListLimit = 20
)

// ErrNotFound is returned when a run does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for persistent run history
type Store interface {
	SaveRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id string) (*models.AnalysisRun, error)
	LatestRun(ctx context.Context, namespace string) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, namespace string, limit int) ([]*RunSummary, error)
	WorkloadHistory(ctx context.Context, namespace, name string, limit int) ([]*HistoryEntry, error)

	// Prune deletes runs started before cutoff and returns how many were removed
	Prune(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects the backend. URL is used for postgres, Path for sqlite.
type Config struct {
	Type string
	Path string
	URL  string
}

// RunSummary is the header of a stored run without its rows
type RunSummary struct {
	ID           string        `json:"id"`
	ClusterID    string        `json:"clusterId,omitempty"`
	Namespace    string        `json:"namespace"`
	Source       string        `json:"source"`
	Percentile   float64       `json:"percentile"`
	Lookback     time.Duration `json:"lookback"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	Workloads    int           `json:"workloads"`
	Failures     int           `json:"failures"`
	TotalSavings float64       `json:"totalSavings"`
}

// HistoryEntry is one stored (workload, dimension) outcome
type HistoryEntry struct {
	RunID          string                   `json:"runId"`
	Namespace      string                   `json:"namespace"`
	Kind           string                   `json:"kind"`
	Name           string                   `json:"name"`
	Container      string                   `json:"container"`
	Dimension      models.ResourceDimension `json:"dimension"`
	CurrentRequest int64                    `json:"currentRequest"`
	RequestValue   int64                    `json:"request"`
	LimitValue     int64                    `json:"limit"`
	SavingsMonthly float64                  `json:"savingsMonthly"`
	Risk           models.RiskLevel         `json:"risk"`
	Warnings       []models.WarningKind     `json:"warnings,omitempty"`
	Error          string                   `json:"error,omitempty"`
	CreatedAt      time.Time                `json:"createdAt"`
}
