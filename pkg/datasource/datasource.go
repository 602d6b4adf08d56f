// Package datasource fetches usage statistics from metrics backends.
package datasource

import (
	"context"
	"regexp"
	"time"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// StatisticsSource returns summary statistics for one workload dimension.
// Values are in the dimension's native unit (millicores or MiB).
type StatisticsSource interface {
	FetchStatistics(ctx context.Context, workload *models.Workload, dimension models.ResourceDimension, lookback time.Duration, percentile float64) (models.UsageStatistics, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

// SampleSource returns raw samples so statistics can be derived locally
type SampleSource interface {
	FetchSamples(ctx context.Context, workload *models.Workload, dimension models.ResourceDimension, lookback time.Duration) ([]models.UsageSample, error)
}

const bytesPerMiB = 1024 * 1024

// Characters Kubernetes uses for generated name suffixes and pod-template-hash values
const generatedChars = "[bcdfghjklmnpqrstvwxz2456789]"

// podNamePattern matches the names of the pods a workload controller creates.
// "api-7d9f8b6c4-xk2p9" belongs to Deployment api, "db-0" to StatefulSet db and
// "agent-x7k2p" to DaemonSet agent. The pattern is unanchored; PromQL anchors it.
func podNamePattern(workload *models.Workload) string {
	name := regexp.QuoteMeta(workload.Name)
	deployment := name + "-" + generatedChars + "+-" + generatedChars + "{5}"
	statefulSet := name + "-[0-9]+"
	daemonSet := name + "-" + generatedChars + "{5}"

	switch workload.Kind {
	case "Deployment":
		return deployment
	case "StatefulSet":
		return statefulSet
	case "DaemonSet":
		return daemonSet
	}
	return "(?:" + deployment + "|" + statefulSet + "|" + daemonSet + ")"
}

// podMatcher compiles podNamePattern for matching names locally
func podMatcher(workload *models.Workload) *regexp.Regexp {
	return regexp.MustCompile("^(?:" + podNamePattern(workload) + ")$")
}
