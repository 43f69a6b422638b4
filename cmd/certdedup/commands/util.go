package commands

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/marmos91/certdedup/internal/bytesize"
	"github.com/marmos91/certdedup/internal/logger"
	"github.com/marmos91/certdedup/pkg/config"
	"github.com/marmos91/certdedup/pkg/engine"
	"github.com/marmos91/certdedup/pkg/metrics"
	"github.com/marmos91/certdedup/pkg/spill"
)

// Flag values shared by run and watch. Empty/false means "not set";
// the config file value applies.
var (
	flagInput          string
	flagOutput         string
	flagMemoryCeiling  string
	flagTempDir        string
	flagStrict         bool
	flagDuplicatesOnly bool
)

// addEngineFlags registers the flags that override engine configuration.
func addEngineFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagInput, "input", "i", "", "input jsonlines file (overrides input.path)")
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output jsonlines file (overrides output.path)")
	cmd.Flags().StringVar(&flagMemoryCeiling, "memory-ceiling", "", "spill threshold, e.g. 256Mi (overrides spill.memory_ceiling)")
	cmd.Flags().StringVar(&flagTempDir, "temp-dir", "", "directory for spilled runs (overrides spill.temp_dir)")
	cmd.Flags().BoolVar(&flagStrict, "strict", false, "abort on the first malformed line")
	cmd.Flags().BoolVar(&flagDuplicatesOnly, "duplicates-only", false, "emit only fingerprints with two or more certificates")
}

// loadConfig loads the configuration and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return nil, err
	}

	if flagInput != "" {
		cfg.Input.Path = flagInput
	}
	if flagOutput != "" {
		cfg.Output.Path = flagOutput
	}
	if flagMemoryCeiling != "" {
		ceiling, err := bytesize.Parse(flagMemoryCeiling)
		if err != nil {
			return nil, fmt.Errorf("invalid --memory-ceiling: %w", err)
		}
		cfg.Spill.MemoryCeiling = ceiling
	}
	if flagTempDir != "" {
		cfg.Spill.TempDir = flagTempDir
	}
	if flagStrict {
		cfg.Strict = true
	}
	if flagDuplicatesOnly {
		cfg.Output.DuplicatesOnly = true
	}

	if cfg.Input.Path == "" {
		return nil, fmt.Errorf("no input file: set input.path in the config or pass --input")
	}
	if cfg.Output.Path == "" {
		return nil, fmt.Errorf("no output file: set output.path in the config or pass --output")
	}

	return cfg, nil
}

// InitLogger initializes the structured logger from the configuration.
func InitLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// newEngine builds an engine from the configuration.
func newEngine(cfg *config.Config, recorder *metrics.DedupRecorder) (*engine.Engine, error) {
	return engine.New(engine.Options{
		InputPath:        cfg.Input.Path,
		OutputPath:       cfg.Output.Path,
		FingerprintField: cfg.Input.FingerprintField,
		MemoryCeiling:    cfg.Spill.MemoryCeiling.Uint64(),
		Policy:           spill.Policy(cfg.Spill.Policy),
		Compression:      cfg.Spill.Compression,
		TempDir:          cfg.Spill.TempDir,
		Strict:           cfg.Strict,
		DuplicatesOnly:   cfg.Output.DuplicatesOnly,
		Metrics:          recorder,
	})
}

// printSummary renders the run statistics as a compact table.
func printSummary(w io.Writer, stats *engine.Stats) {
	table := tablewriter.NewWriter(w)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.Append([]string{"Records read", strconv.FormatUint(stats.RecordsRead, 10)})
	table.Append([]string{"Malformed lines skipped", strconv.FormatUint(stats.MalformedLines, 10)})
	table.Append([]string{"Runs spilled", strconv.Itoa(stats.RunsCreated)})
	table.Append([]string{"Unique fingerprints", strconv.FormatUint(stats.UniqueFingerprints, 10)})
	table.Append([]string{"Groups written", strconv.FormatUint(stats.GroupsEmitted, 10)})
	table.Append([]string{"Peak bucket memory", bytesize.ByteSize(stats.PeakBucketBytes).String()})
	table.Append([]string{"Partition time", stats.PartitionDuration.Round(time.Millisecond).String()})
	table.Append([]string{"Merge time", stats.MergeDuration.Round(time.Millisecond).String()})

	table.Render()
}
