package pricing

import (
	"fmt"
	"strings"

	"github.com/opscart/k8s-rightsizer/pkg/models"
)

// Provider prices an amount of one resource dimension per month
type Provider interface {
	// MonthlyCost takes an amount in the dimension's native unit (millicores or MiB)
	MonthlyCost(dimension models.ResourceDimension, amount int64) float64
	Name() string
}

// Rates are list prices in USD per month
type Rates struct {
	CPUCostPerCore   float64 `yaml:"cpuCostPerCore" json:"cpuCostPerCore"`
	MemoryCostPerGiB float64 `yaml:"memoryCostPerGiB" json:"memoryCostPerGiB"`
}

// Typical on-demand rates per cloud, averaged over general purpose node types
var presets = map[string]Rates{
	"default": {CPUCostPerCore: 23.0, MemoryCostPerGiB: 3.0},
	"aws":     {CPUCostPerCore: 33.0, MemoryCostPerGiB: 4.5},
	"azure":   {CPUCostPerCore: 35.0, MemoryCostPerGiB: 4.3},
	"gcp":     {CPUCostPerCore: 31.0, MemoryCostPerGiB: 4.2},
}

// StaticProvider applies fixed rates
type StaticProvider struct {
	name  string
	rates Rates
}

// NewStaticProvider creates a provider with explicit rates. Zero rates fall back to the defaults.
func NewStaticProvider(name string, rates Rates) *StaticProvider {
	if rates.CPUCostPerCore == 0 {
		rates.CPUCostPerCore = presets["default"].CPUCostPerCore
	}
	if rates.MemoryCostPerGiB == 0 {
		rates.MemoryCostPerGiB = presets["default"].MemoryCostPerGiB
	}
	return &StaticProvider{name: name, rates: rates}
}

// NewProvider returns the preset for a cloud name (aws, azure, gcp, default)
func NewProvider(name string) (*StaticProvider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = "default"
	}

	rates, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown pricing provider: %s", name)
	}
	return NewStaticProvider(name, rates), nil
}

func (p *StaticProvider) Name() string {
	return p.name
}

// Rates returns the rates in use
func (p *StaticProvider) Rates() Rates {
	return p.rates
}

func (p *StaticProvider) MonthlyCost(dimension models.ResourceDimension, amount int64) float64 {
	switch dimension {
	case models.DimensionCPU:
		return float64(amount) / 1000.0 * p.rates.CPUCostPerCore
	case models.DimensionMemory:
		return float64(amount) / 1024.0 * p.rates.MemoryCostPerGiB
	}
	return 0
}

// MonthlySavings is the cost difference between the current and recommended request.
// Negative values mean the recommendation costs more.
func MonthlySavings(p Provider, dimension models.ResourceDimension, current, recommended int64) float64 {
	if p == nil || current <= 0 {
		return 0
	}
	return p.MonthlyCost(dimension, current) - p.MonthlyCost(dimension, recommended)
}
