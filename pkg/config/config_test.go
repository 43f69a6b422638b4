package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/certdedup/internal/bytesize"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestGetDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := GetDefaultConfig()

	assert.Equal(t, DefaultFingerprintField, cfg.Input.FingerprintField)
	assert.Equal(t, DefaultMemoryCeiling, cfg.Spill.MemoryCeiling)
	assert.Equal(t, DefaultSpillPolicy, cfg.Spill.Policy)
	assert.Equal(t, DefaultCompression, cfg.Spill.Compression)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stderr", cfg.Logging.Output)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, DefaultMetricsListen, cfg.Metrics.Listen)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
	assert.False(t, cfg.Strict)
	assert.False(t, cfg.Output.DuplicatesOnly)

	require.NoError(t, Validate(cfg))
}

func TestApplyDefaultsPreservesExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.Spill.MemoryCeiling = 64 * bytesize.MiB
	cfg.Spill.Policy = "largest"
	cfg.Logging.Level = "debug"

	ApplyDefaults(cfg)

	assert.Equal(t, 64*bytesize.MiB, cfg.Spill.MemoryCeiling)
	assert.Equal(t, "largest", cfg.Spill.Policy)
	// Levels are normalized to uppercase.
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, DefaultCompression, cfg.Spill.Compression)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
input:
  path: /data/ctl_records.jsonlines
  fingerprint_field: data.leaf_cert.fingerprint
output:
  path: /data/duplicates.jsonline
  duplicates_only: true
spill:
  memory_ceiling: 1Gi
  policy: largest
  compression: none
strict: true
logging:
  level: debug
  format: json
watch:
  debounce: 5s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/ctl_records.jsonlines", cfg.Input.Path)
	assert.Equal(t, "data.leaf_cert.fingerprint", cfg.Input.FingerprintField)
	assert.Equal(t, "/data/duplicates.jsonline", cfg.Output.Path)
	assert.True(t, cfg.Output.DuplicatesOnly)
	assert.Equal(t, bytesize.GiB, cfg.Spill.MemoryCeiling)
	assert.Equal(t, "largest", cfg.Spill.Policy)
	assert.Equal(t, "none", cfg.Spill.Compression)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 5*time.Second, cfg.Watch.Debounce)
}

func TestLoadPartialConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
input:
  path: in.jsonl
output:
  path: out.jsonl
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "in.jsonl", cfg.Input.Path)
	assert.Equal(t, DefaultFingerprintField, cfg.Input.FingerprintField)
	assert.Equal(t, DefaultMemoryCeiling, cfg.Spill.MemoryCeiling)
	assert.Equal(t, DefaultSpillPolicy, cfg.Spill.Policy)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)
}

func TestLoadNumericMemoryCeiling(t *testing.T) {
	path := writeConfig(t, `
spill:
  memory_ceiling: 1048576
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, bytesize.MiB, cfg.Spill.MemoryCeiling)
}

func TestLoadInvalidConfigFails(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "bad policy",
			content: `
spill:
  policy: newest
`,
		},
		{
			name: "bad compression",
			content: `
spill:
  compression: zstd
`,
		},
		{
			name: "bad log level",
			content: `
logging:
  level: verbose
`,
		},
		{
			name: "bad log format",
			content: `
logging:
  format: xml
`,
		},
		{
			name: "negative debounce",
			content: `
watch:
  debounce: -1s
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestMustLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := MustLoad(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "certdedup init")
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Input.Path = "in.jsonl"
	cfg.Output.Path = "out.jsonl"
	cfg.Spill.MemoryCeiling = 512 * bytesize.MiB
	cfg.Spill.Policy = "largest"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, cfg.Input.Path, loaded.Input.Path)
	assert.Equal(t, cfg.Output.Path, loaded.Output.Path)
	assert.Equal(t, cfg.Spill.MemoryCeiling, loaded.Spill.MemoryCeiling)
	assert.Equal(t, cfg.Spill.Policy, loaded.Spill.Policy)
	assert.Equal(t, cfg.Watch.Debounce, loaded.Watch.Debounce)
}

func TestEnvOverride(t *testing.T) {
	// Env overrides apply to keys present in the config file.
	path := writeConfig(t, `
input:
  path: in.jsonl
spill:
  memory_ceiling: 256Mi
  policy: all
`)

	t.Setenv("CERTDEDUP_SPILL_MEMORY_CEILING", "2Gi")
	t.Setenv("CERTDEDUP_SPILL_POLICY", "largest")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2*bytesize.GiB, cfg.Spill.MemoryCeiling)
	assert.Equal(t, "largest", cfg.Spill.Policy)
}
