package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/pricing"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
)

// SizingFile is the YAML document passed with --config.
//
//	cpu:
//	  requestMultiplier: 1.2
//	  roundingStep: {request: 50, limit: 100}
//	memory:
//	  limitMultiplier: 1.5
//	pricing:
//	  provider: aws
//
// Keys left out keep their defaults.
type SizingFile struct {
	CPU     recommender.SizingConfig `yaml:"cpu"`
	Memory  recommender.SizingConfig `yaml:"memory"`
	Pricing PricingConfig            `yaml:"pricing"`
}

// PricingConfig picks a preset and optionally overrides its rates
type PricingConfig struct {
	Provider      string `yaml:"provider"`
	pricing.Rates `yaml:",inline"`
}

// DefaultSizingFile returns the built-in defaults
func DefaultSizingFile() *SizingFile {
	return &SizingFile{
		CPU:    recommender.DefaultSizingConfig(models.DimensionCPU),
		Memory: recommender.DefaultSizingConfig(models.DimensionMemory),
	}
}

// LoadSizingFile reads path on top of the defaults. An empty path returns the defaults.
func LoadSizingFile(path string) (*SizingFile, error) {
	file := DefaultSizingFile()
	if path == "" {
		return file, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sizing config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s: %w", recommender.ErrInvalidConfiguration, path, err)
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return file, nil
}

// Validate checks both dimensions and reports all problems
func (f *SizingFile) Validate() error {
	var err error
	if cpuErr := f.CPU.Validate(); cpuErr != nil {
		err = multierr.Append(err, fmt.Errorf("cpu: %w", cpuErr))
	}
	if memErr := f.Memory.Validate(); memErr != nil {
		err = multierr.Append(err, fmt.Errorf("memory: %w", memErr))
	}
	return err
}

// Sizing returns the per-dimension configs
func (f *SizingFile) Sizing() map[models.ResourceDimension]recommender.SizingConfig {
	return map[models.ResourceDimension]recommender.SizingConfig{
		models.DimensionCPU:    f.CPU,
		models.DimensionMemory: f.Memory,
	}
}

// PricingProvider builds the provider. The environment's provider wins over the file's preset.
func (f *SizingFile) PricingProvider(override string) (pricing.Provider, error) {
	name := f.Pricing.Provider
	if override != "" {
		name = override
	}

	preset, err := pricing.NewProvider(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", recommender.ErrInvalidConfiguration, err)
	}

	rates := preset.Rates()
	if f.Pricing.CPUCostPerCore > 0 {
		rates.CPUCostPerCore = f.Pricing.CPUCostPerCore
	}
	if f.Pricing.MemoryCostPerGiB > 0 {
		rates.MemoryCostPerGiB = f.Pricing.MemoryCostPerGiB
	}
	return pricing.NewStaticProvider(preset.Name(), rates), nil
}
