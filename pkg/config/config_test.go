package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opscart/k8s-rightsizer/pkg/models"
	"github.com/opscart/k8s-rightsizer/pkg/recommender"
)

func TestNewConfigDefaults(t *testing.T) {
	for _, key := range []string{"METRICS_LOOKBACK_DAYS", "RIGHTSIZE_PERCENTILE", "PROMETHEUS_URL", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := NewConfig()

	assert.Equal(t, 7, cfg.MetricsLookbackDays)
	assert.Equal(t, 7*24*time.Hour, cfg.MetricsDuration)
	assert.Equal(t, 95.0, cfg.Percentile)
	assert.Equal(t, "http://localhost:9090", cfg.PrometheusURL)
	assert.Equal(t, "sqlite", cfg.StorageDriver())
	assert.NoError(t, cfg.Validate())
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("METRICS_LOOKBACK_DAYS", "15")
	t.Setenv("RIGHTSIZE_PERCENTILE", "99")
	t.Setenv("RIGHTSIZE_CONCURRENCY", "16")
	t.Setenv("PROMETHEUS_URL", "http://prometheus:9090")
	t.Setenv("DATABASE_URL", "postgres://rightsize@db/rightsize?sslmode=disable")

	cfg := NewConfig()

	assert.Equal(t, 15, cfg.MetricsLookbackDays)
	assert.Equal(t, 15*24*time.Hour, cfg.MetricsDuration)
	assert.Equal(t, 99.0, cfg.Percentile)
	assert.Equal(t, 16, cfg.Concurrency)
	assert.Equal(t, "http://prometheus:9090", cfg.PrometheusURL)
	assert.Equal(t, "postgres", cfg.StorageDriver())
}

func TestPresets(t *testing.T) {
	tests := []struct {
		preset     string
		days       int
		percentile float64
	}{
		{"dev", 3, 90},
		{"production", 14, 95},
		{"critical", 30, 99},
	}

	for _, tt := range tests {
		t.Run(tt.preset, func(t *testing.T) {
			cfg := NewConfig()
			require.NoError(t, cfg.ApplyPreset(tt.preset))
			assert.Equal(t, tt.days, cfg.MetricsLookbackDays)
			assert.Equal(t, time.Duration(tt.days)*24*time.Hour, cfg.MetricsDuration)
			assert.Equal(t, tt.percentile, cfg.Percentile)
		})
	}

	assert.ErrorIs(t, NewConfig().ApplyPreset("yolo"), recommender.ErrInvalidConfiguration)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name          string
		setupConfig   func(*Config)
		errorContains []string
	}{
		{name: "valid default config", setupConfig: func(*Config) {}},
		{name: "valid edge case 1 day", setupConfig: func(c *Config) { c.SetLookbackDays(1) }},
		{name: "valid edge case 90 days", setupConfig: func(c *Config) { c.SetLookbackDays(90) }},
		{
			name:          "lookback too low",
			setupConfig:   func(c *Config) { c.SetLookbackDays(0) },
			errorContains: []string{"at least 1 day"},
		},
		{
			name:          "lookback too high",
			setupConfig:   func(c *Config) { c.SetLookbackDays(100) },
			errorContains: []string{"cannot exceed 90 days"},
		},
		{
			name: "every problem is reported",
			setupConfig: func(c *Config) {
				c.Percentile = 100
				c.Concurrency = 0
				c.PrometheusURL = ""
			},
			errorContains: []string{"percentile", "concurrency", "PROMETHEUS_URL"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.StoragePath = "history.db"
			tt.setupConfig(cfg)

			err := cfg.Validate()
			if len(tt.errorContains) == 0 {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, recommender.ErrInvalidConfiguration)
			for _, want := range tt.errorContains {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sizing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadSizingFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, `
cpu:
  requestMultiplier: 1.1
  roundingStep:
    request: 25
memory:
  limitMultiplier: 1.5
`)

	file, err := LoadSizingFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1.1, file.CPU.RequestMultiplier)
	assert.Equal(t, 1.5, file.CPU.LimitMultiplier)
	assert.Equal(t, int64(25), file.CPU.RoundingStep.Request)
	assert.Equal(t, int64(100), file.CPU.RoundingStep.Limit)
	assert.Equal(t, 50.0, file.CPU.UnderUtilizedThreshold)

	assert.Equal(t, 1.3, file.Memory.RequestMultiplier)
	assert.Equal(t, 1.5, file.Memory.LimitMultiplier)

	sizing := file.Sizing()
	assert.Equal(t, file.CPU, sizing[models.DimensionCPU])
}

func TestLoadSizingFileRejectsInvalid(t *testing.T) {
	_, err := LoadSizingFile(writeFile(t, "cpu:\n  roundingStep:\n    request: 0\nmemory:\n  percentile: 100\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, recommender.ErrInvalidConfiguration)
	assert.Contains(t, err.Error(), "cpu")
	assert.Contains(t, err.Error(), "memory")

	_, err = LoadSizingFile(writeFile(t, "cpu:\n  requestMultiplyer: 2\n"))
	assert.ErrorIs(t, err, recommender.ErrInvalidConfiguration)

	_, err = LoadSizingFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadSizingFileEmpty(t *testing.T) {
	file, err := LoadSizingFile(writeFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultSizingFile(), file)

	file, err = LoadSizingFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSizingFile(), file)
}

func TestPricingProvider(t *testing.T) {
	file, err := LoadSizingFile(writeFile(t, "pricing:\n  provider: aws\n  memoryCostPerGiB: 5\n"))
	require.NoError(t, err)

	p, err := file.PricingProvider("")
	require.NoError(t, err)
	assert.Equal(t, "aws", p.Name())
	assert.Equal(t, 33.0, p.MonthlyCost(models.DimensionCPU, 1000))
	assert.Equal(t, 5.0, p.MonthlyCost(models.DimensionMemory, 1024))

	p, err = file.PricingProvider("gcp")
	require.NoError(t, err)
	assert.Equal(t, "gcp", p.Name())

	_, err = file.PricingProvider("oracle")
	assert.ErrorIs(t, err, recommender.ErrInvalidConfiguration)
}
