package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/multierr"

	"github.com/opscart/k8s-rightsizer/pkg/recommender"
)

// Config holds application configuration
type Config struct {
	// Prometheus
	PrometheusURL   string
	PrometheusToken string

	// Storage. DatabaseURL selects PostgreSQL, otherwise runs go to the SQLite file at StoragePath.
	DatabaseURL string
	StoragePath string

	// Analysis
	MetricsLookbackDays int
	MetricsDuration     time.Duration
	Percentile          float64
	Concurrency         int
	ClusterID           string
	PricingProvider     string

	// Service mode
	ListenAddr string
	Schedule   string

	Verbose bool
}

// NewConfig creates a new configuration with defaults, overridden by environment variables
func NewConfig() *Config {
	lookbackDays := getEnvInt("METRICS_LOOKBACK_DAYS", 7)

	return &Config{
		PrometheusURL:       getEnv("PROMETHEUS_URL", "http://localhost:9090"),
		PrometheusToken:     getEnv("PROMETHEUS_TOKEN", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		StoragePath:         getEnv("STORAGE_PATH", defaultStoragePath()),
		MetricsLookbackDays: lookbackDays,
		MetricsDuration:     time.Duration(lookbackDays) * 24 * time.Hour,
		Percentile:          getEnvFloat("RIGHTSIZE_PERCENTILE", recommender.DefaultPercentile),
		Concurrency:         getEnvInt("RIGHTSIZE_CONCURRENCY", 4),
		ClusterID:           getEnv("CLUSTER_ID", ""),
		PricingProvider:     getEnv("PRICING_PROVIDER", ""),
		ListenAddr:          getEnv("LISTEN_ADDR", ":8080"),
		Schedule:            getEnv("RIGHTSIZE_SCHEDULE", "@every 6h"),
		Verbose:             getEnvBool("VERBOSE", false),
	}
}

// SetLookbackDays updates the lookback window
func (c *Config) SetLookbackDays(days int) {
	c.MetricsLookbackDays = days
	c.MetricsDuration = time.Duration(days) * 24 * time.Hour
}

// UseDevPreset trades history for speed
func (c *Config) UseDevPreset() {
	c.SetLookbackDays(3)
	c.Percentile = 90
}

// UseProductionPreset covers two weekly cycles
func (c *Config) UseProductionPreset() {
	c.SetLookbackDays(14)
	c.Percentile = 95
}

// UseCriticalPreset sizes limits from a month of P99
func (c *Config) UseCriticalPreset() {
	c.SetLookbackDays(30)
	c.Percentile = 99
}

// ApplyPreset selects a preset by name
func (c *Config) ApplyPreset(name string) error {
	switch name {
	case "", "default":
	case "dev":
		c.UseDevPreset()
	case "production":
		c.UseProductionPreset()
	case "critical":
		c.UseCriticalPreset()
	default:
		return fmt.Errorf("%w: unknown preset %q (dev, production, critical)", recommender.ErrInvalidConfiguration, name)
	}
	return nil
}

// StorageDriver returns "postgres" or "sqlite"
func (c *Config) StorageDriver() string {
	if c.DatabaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var err error

	if c.PrometheusURL == "" {
		err = multierr.Append(err, fmt.Errorf("PROMETHEUS_URL must be set"))
	}
	if c.MetricsLookbackDays < 1 {
		err = multierr.Append(err, fmt.Errorf("lookback must be at least 1 day"))
	}
	if c.MetricsLookbackDays > 90 {
		err = multierr.Append(err, fmt.Errorf("lookback cannot exceed 90 days"))
	}
	if !(c.Percentile > 50 && c.Percentile < 100) {
		err = multierr.Append(err, fmt.Errorf("percentile must be in (50, 100), got %v", c.Percentile))
	}
	if c.Concurrency < 1 {
		err = multierr.Append(err, fmt.Errorf("concurrency must be at least 1"))
	}
	if c.DatabaseURL == "" && c.StoragePath == "" {
		err = multierr.Append(err, fmt.Errorf("either DATABASE_URL or STORAGE_PATH must be set"))
	}

	if err != nil {
		return fmt.Errorf("%w: %w", recommender.ErrInvalidConfiguration, err)
	}
	return nil
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "rightsize.db"
	}
	return filepath.Join(home, ".k8s-rightsizer", "history.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
