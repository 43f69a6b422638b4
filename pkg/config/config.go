// Package config loads certdedup configuration from file, environment
// and defaults.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority, applied by the commands)
//  2. Environment variables (CERTDEDUP_*)
//  3. Configuration file (YAML)
//  4. Default values (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/certdedup/internal/bytesize"
)

// Config represents the certdedup configuration.
type Config struct {
	// Input describes the jsonlines source to deduplicate
	Input InputConfig `mapstructure:"input" yaml:"input"`

	// Output describes the deduplicated jsonlines destination
	Output OutputConfig `mapstructure:"output" yaml:"output"`

	// Spill controls the memory ceiling and temp-storage behavior
	Spill SpillConfig `mapstructure:"spill" yaml:"spill"`

	// Strict aborts the run on the first malformed line instead of
	// skipping and counting it
	Strict bool `mapstructure:"strict" yaml:"strict"`

	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics contains Prometheus metrics configuration (watch mode)
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Watch contains watch-mode configuration
	Watch WatchConfig `mapstructure:"watch" yaml:"watch"`
}

// InputConfig describes the input file and record shape.
type InputConfig struct {
	// Path is the jsonlines input file
	Path string `mapstructure:"path" yaml:"path"`

	// FingerprintField is the dotted path of the fingerprint inside each
	// object, e.g. "fingerprint" or "data.leaf_cert.fingerprint"
	// Default: "fingerprint"
	FingerprintField string `mapstructure:"fingerprint_field" yaml:"fingerprint_field"`
}

// OutputConfig describes the output file and filtering.
type OutputConfig struct {
	// Path is the jsonlines output file, written atomically
	Path string `mapstructure:"path" yaml:"path"`

	// DuplicatesOnly emits only fingerprints with two or more
	// certificates
	// Default: false
	DuplicatesOnly bool `mapstructure:"duplicates_only" yaml:"duplicates_only"`
}

// SpillConfig controls the partitioner's memory ceiling and run files.
type SpillConfig struct {
	// MemoryCeiling is the in-memory bucket estimate that triggers a
	// spill. Accepts human-readable sizes like "256Mi" or "1GB".
	// Default: 256Mi
	MemoryCeiling bytesize.ByteSize `mapstructure:"memory_ceiling" yaml:"memory_ceiling"`

	// Policy selects which buckets spill on a ceiling breach: "all"
	// flushes everything, "largest" flushes the biggest buckets until
	// half the buffered bytes are released.
	// Default: "all"
	Policy string `mapstructure:"policy" yaml:"policy"`

	// TempDir hosts the per-run temp namespace
	// Default: the system temp directory
	TempDir string `mapstructure:"temp_dir" yaml:"temp_dir,omitempty"`

	// Compression selects run file compression: "gzip" or "none"
	// Default: "gzip"
	Compression string `mapstructure:"compression" yaml:"compression"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	// Default: INFO
	Level string `mapstructure:"level" yaml:"level"`

	// Format is the output format: text or json
	// Default: text
	Format string `mapstructure:"format" yaml:"format"`

	// Output is "stdout", "stderr", or a file path
	// Default: stderr
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus endpoint served in watch mode.
type MetricsConfig struct {
	// Enabled turns on the metrics registry and HTTP endpoint
	// Default: false
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Listen is the metrics HTTP listen address
	// Default: ":9464"
	Listen string `mapstructure:"listen" yaml:"listen"`
}

// WatchConfig controls watch mode.
type WatchConfig struct {
	// Debounce is how long to wait after the last input change before
	// re-running the dedup
	// Default: 2s
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	if !configFileFound {
		cfg := GetDefaultConfig()
		return cfg, nil
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when an
// explicitly requested config file does not exist.
func MustLoad(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  certdedup init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	switch cfg.Spill.Policy {
	case "all", "largest":
	default:
		return fmt.Errorf("spill.policy must be \"all\" or \"largest\", got %q", cfg.Spill.Policy)
	}

	switch cfg.Spill.Compression {
	case "gzip", "none":
	default:
		return fmt.Errorf("spill.compression must be \"gzip\" or \"none\", got %q", cfg.Spill.Compression)
	}

	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be DEBUG, INFO, WARN or ERROR, got %q", cfg.Logging.Level)
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen is required when metrics are enabled")
	}

	if cfg.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got %s", cfg.Watch.Debounce)
	}

	return nil
}

// SaveConfig saves the configuration to the specified file path in YAML.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config file
// settings. Environment variables use the CERTDEDUP_ prefix, e.g.
// CERTDEDUP_SPILL_MEMORY_CEILING=1Gi.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("CERTDEDUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}

	return true, nil
}

// configDecodeHooks returns a combined decode hook for all custom types.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and integers to bytesize.ByteSize,
// so config files can use human-readable sizes like "256Mi" or "1GB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files
// can use human-readable durations like "30s" or "5m".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			// Assume nanoseconds for raw integers
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "certdedup")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "certdedup")
}

// GetDefaultConfigPath returns the default config file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists reports whether a config file exists at the
// default location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
