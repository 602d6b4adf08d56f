package models

import "time"

// ResourceDimension identifies the resource a recommendation sizes
type ResourceDimension string

const (
	DimensionCPU    ResourceDimension = "cpu"
	DimensionMemory ResourceDimension = "memory"
)

// Dimensions lists every supported dimension in report order
var Dimensions = []ResourceDimension{DimensionCPU, DimensionMemory}

// Unit returns the native unit suffix (millicores or mebibytes)
func (d ResourceDimension) Unit() string {
	if d == DimensionCPU {
		return "m"
	}
	return "Mi"
}

// Compressible reports whether exceeding the limit throttles rather than kills
func (d ResourceDimension) Compressible() bool {
	return d == DimensionCPU
}

// Valid reports whether d is a known dimension
func (d ResourceDimension) Valid() bool {
	return d == DimensionCPU || d == DimensionMemory
}

// Environment is the deployment stage a namespace belongs to
type Environment string

const (
	EnvironmentProduction  Environment = "production"
	EnvironmentStaging     Environment = "staging"
	EnvironmentDevelopment Environment = "development"
	EnvironmentUnknown     Environment = "unknown"
)

// Workload identifies one container of a Kubernetes workload
type Workload struct {
	ClusterID   string      `json:"clusterId,omitempty"`
	Namespace   string      `json:"namespace"`
	Kind        string      `json:"kind"`
	Name        string      `json:"name"`
	Container   string      `json:"container"`
	Environment Environment `json:"environment,omitempty"`

	// HPA names the HorizontalPodAutoscaler targeting the workload, if any
	HPA string `json:"hpa,omitempty"`

	Resources ContainerResources `json:"resources"`
}

// Key returns namespace/kind/name/container
func (w *Workload) Key() string {
	return w.Namespace + "/" + w.Kind + "/" + w.Name + "/" + w.Container
}

// ContainerResources holds the currently configured values in native units.
// Zero means not set.
type ContainerResources struct {
	CPURequest    int64 `json:"cpuRequest,omitempty"`    // millicores
	CPULimit      int64 `json:"cpuLimit,omitempty"`      // millicores
	MemoryRequest int64 `json:"memoryRequest,omitempty"` // MiB
	MemoryLimit   int64 `json:"memoryLimit,omitempty"`   // MiB
}

// Request returns the current request for a dimension
func (c ContainerResources) Request(d ResourceDimension) int64 {
	if d == DimensionCPU {
		return c.CPURequest
	}
	return c.MemoryRequest
}

// Limit returns the current limit for a dimension
func (c ContainerResources) Limit(d ResourceDimension) int64 {
	if d == DimensionCPU {
		return c.CPULimit
	}
	return c.MemoryLimit
}

// UsageSample is a single observation of one dimension
type UsageSample struct {
	Timestamp time.Time
	Value     float64
}

// UsageStatistics summarizes samples over a lookback window, in native units
type UsageStatistics struct {
	P50            float64 `json:"p50"`
	Percentile     float64 `json:"percentile"`
	PercentileRank float64 `json:"percentileRank"` // e.g. 95; zero when unspecified
	P99            float64 `json:"p99"`
	Max            float64 `json:"max"`
	SampleCount    int     `json:"sampleCount"`
}

// UsagePattern describes how variable a usage series is
type UsagePattern struct {
	Type      string  `json:"type"`      // steady, moderate, spiky, highly-variable, unknown
	Variation float64 `json:"variation"` // coefficient of variation
}

// GrowthTrend describes usage growth fitted over the lookback window
type GrowthTrend struct {
	RatePerMonth    float64 `json:"ratePerMonth"` // percent
	Confidence      float64 `json:"confidence"`   // R²
	Predicted3Month float64 `json:"predicted3Month"`
	IsGrowing       bool    `json:"isGrowing"`
}
