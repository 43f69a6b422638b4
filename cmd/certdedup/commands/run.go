package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/certdedup/internal/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deduplicate an input file once",
	Long: `Run a single dedup pass: read the input jsonlines file, group records
by fingerprint under the configured memory ceiling, and write one output
line per unique fingerprint.

The output file is written atomically: it appears complete or not at all.

Examples:
  # Deduplicate with config-file settings
  certdedup run

  # Override input and output
  certdedup run --input ctl_records.jsonlines --output duplicates.jsonline

  # Force frequent spilling for a memory-constrained host
  certdedup run -i in.jsonl -o out.jsonl --memory-ceiling 64Mi

  # Report only fingerprints that actually have duplicates
  certdedup run -i in.jsonl -o out.jsonl --duplicates-only

  # Use environment variable overrides
  CERTDEDUP_SPILL_MEMORY_CEILING=1Gi certdedup run -i in.jsonl -o out.jsonl`,
	RunE: runRun,
}

func init() {
	addEngineFlags(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := newEngine(cfg, nil)
	if err != nil {
		return err
	}

	stats, err := eng.Run(ctx)
	if err != nil {
		logger.Error("dedup run failed", logger.Err(err))
		return err
	}

	printSummary(os.Stdout, stats)
	return nil
}
