package config

import (
	"strings"
	"time"

	"github.com/marmos91/certdedup/internal/bytesize"
)

// Default values applied when the configuration leaves fields unset.
const (
	DefaultFingerprintField = "fingerprint"
	DefaultSpillPolicy      = "all"
	DefaultCompression      = "gzip"
	DefaultMetricsListen    = ":9464"
	DefaultWatchDebounce    = 2 * time.Second
)

// DefaultMemoryCeiling bounds in-memory buckets unless configured.
const DefaultMemoryCeiling = 256 * bytesize.MiB

// GetDefaultConfig returns a configuration with all defaults applied.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyInputDefaults(&cfg.Input)
	applySpillDefaults(&cfg.Spill)
	applyLoggingDefaults(&cfg.Logging)
	applyMetricsDefaults(&cfg.Metrics)
	applyWatchDefaults(&cfg.Watch)
}

func applyInputDefaults(cfg *InputConfig) {
	if cfg.FingerprintField == "" {
		cfg.FingerprintField = DefaultFingerprintField
	}
}

func applySpillDefaults(cfg *SpillConfig) {
	if cfg.MemoryCeiling == 0 {
		cfg.MemoryCeiling = DefaultMemoryCeiling
	}
	if cfg.Policy == "" {
		cfg.Policy = DefaultSpillPolicy
	}
	if cfg.Compression == "" {
		cfg.Compression = DefaultCompression
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	// Enabled defaults to false (opt-in for metrics)
	if cfg.Listen == "" {
		cfg.Listen = DefaultMetricsListen
	}
}

func applyWatchDefaults(cfg *WatchConfig) {
	if cfg.Debounce == 0 {
		cfg.Debounce = DefaultWatchDebounce
	}
}
