// Package engine orchestrates the two-phase dedup lifecycle: a single
// partition pass over the input that spills sorted runs under a memory
// ceiling, followed by a k-way merge of runs plus residue that emits one
// output line per unique fingerprint.
//
// The engine owns a temp namespace for the duration of one run and
// guarantees that on every exit path, success or failure, no run files
// remain and no partial output file is visible: output is written to a
// temporary sibling and renamed into place only after a successful merge.
package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/certdedup/internal/logger"
	"github.com/marmos91/certdedup/pkg/merge"
	"github.com/marmos91/certdedup/pkg/metrics"
	"github.com/marmos91/certdedup/pkg/record"
	"github.com/marmos91/certdedup/pkg/spill"
)

// Phase names used in error diagnostics and metrics labels.
const (
	PhasePartition = "partition"
	PhaseMerge     = "merge"
)

// Options configures one Engine.
type Options struct {
	// InputPath is the jsonlines input file.
	InputPath string

	// OutputPath is the jsonlines output file. Created atomically: it
	// either appears complete or not at all.
	OutputPath string

	// FingerprintField is the dotted path of the fingerprint inside each
	// input object. Empty selects record.DefaultFingerprintField.
	FingerprintField string

	// MemoryCeiling bounds the in-memory bucket estimate in bytes.
	// Zero disables spilling.
	MemoryCeiling uint64

	// Policy selects which buckets spill on a ceiling breach.
	Policy spill.Policy

	// Compression selects run file compression (gzip or none).
	Compression string

	// TempDir hosts the per-run temp namespace. Empty uses os.TempDir.
	TempDir string

	// Strict aborts the run on the first malformed line instead of
	// skipping and counting it.
	Strict bool

	// DuplicatesOnly emits only fingerprints with two or more
	// certificates, matching the original duplicate-report use case.
	DuplicatesOnly bool

	// Metrics receives counters when non-nil.
	Metrics *metrics.DedupRecorder
}

// Engine deduplicates one input file into one output file. An Engine is
// reusable: each Run call owns a fresh temp namespace, so concurrent
// executions never collide.
type Engine struct {
	opts  Options
	codec *record.Codec
}

// New validates the options and creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.InputPath == "" {
		return nil, errors.New("engine: input path is required")
	}
	if opts.OutputPath == "" {
		return nil, errors.New("engine: output path is required")
	}
	return &Engine{
		opts:  opts,
		codec: record.NewCodec(opts.FingerprintField),
	}, nil
}

// Run executes the full partition and merge lifecycle.
//
// On error or cancellation all temporary state is removed and no output
// file is produced. The returned error identifies the failing phase.
func (e *Engine) Run(ctx context.Context) (*Stats, error) {
	tempNS := filepath.Join(e.tempDir(), "certdedup-"+uuid.NewString())
	if err := os.MkdirAll(tempNS, 0700); err != nil {
		return nil, fmt.Errorf("%s: create temp namespace %s: %w", PhasePartition, tempNS, err)
	}
	defer os.RemoveAll(tempNS)

	logger.Info("dedup run starting",
		logger.InputPath(e.opts.InputPath),
		logger.OutputPath(e.opts.OutputPath),
		logger.TempDir(tempNS),
		logger.Ceiling(e.opts.MemoryCeiling),
	)

	stats := &Stats{}

	residue, runs, err := e.partition(ctx, tempNS, stats)
	if err != nil {
		return nil, err
	}

	if err := e.mergeAndEmit(ctx, residue, runs, stats); err != nil {
		return nil, err
	}

	logger.Info("dedup run complete",
		logger.Records(stats.RecordsRead),
		logger.Malformed(stats.MalformedLines),
		logger.Runs(stats.RunsCreated),
		logger.Groups(stats.GroupsEmitted),
		logger.BucketBytes(stats.PeakBucketBytes),
	)

	return stats, nil
}

func (e *Engine) tempDir() string {
	if e.opts.TempDir != "" {
		return e.opts.TempDir
	}
	return os.TempDir()
}

// partition performs the single ingest pass: decode each line, absorb it
// into buckets, spill under the ceiling. Returns the residue and the run
// files in creation order.
func (e *Engine) partition(ctx context.Context, tempNS string, stats *Stats) (*spill.Buckets, []spill.Run, error) {
	start := time.Now()

	f, err := os.Open(e.opts.InputPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: open input %s: %w", PhasePartition, e.opts.InputPath, err)
	}
	defer f.Close()

	partitioner := spill.NewPartitioner(e.codec, spill.Options{
		Dir:           tempNS,
		MemoryCeiling: e.opts.MemoryCeiling,
		Policy:        e.opts.Policy,
		Compression:   e.opts.Compression,
	})

	br := bufio.NewReaderSize(f, 1024*1024)
	var lineNo uint64

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", PhasePartition, err)
		}

		line, err := br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, nil, fmt.Errorf("%s: read input %s: %w", PhasePartition, e.opts.InputPath, err)
		}
		atEOF := err == io.EOF

		if len(bytes.TrimSpace(line)) == 0 {
			if atEOF {
				break
			}
			continue
		}

		lineNo++
		stats.RecordsRead++
		e.opts.Metrics.RecordRead()

		rec, derr := e.codec.Decode(line)
		if derr != nil {
			var malformed *record.MalformedRecordError
			if errors.As(derr, &malformed) {
				malformed.Line = lineNo
			}
			if e.opts.Strict {
				return nil, nil, fmt.Errorf("%s: %w", PhasePartition, derr)
			}
			stats.MalformedLines++
			e.opts.Metrics.RecordMalformed()
			logger.Debug("skipping malformed line", logger.Records(lineNo), logger.Err(derr))
			if atEOF {
				break
			}
			continue
		}

		spillsBefore := partitioner.Spills()
		if err := partitioner.Ingest(ctx, rec); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", PhasePartition, err)
		}
		if partitioner.Spills() > spillsBefore {
			e.opts.Metrics.RecordSpill()
			e.opts.Metrics.RecordRun()
			e.opts.Metrics.SetBucketBytes(partitioner.BucketBytes())
		}

		if atEOF {
			break
		}
	}

	residue, runs := partitioner.Finish()
	stats.RunsCreated = len(runs)
	stats.SpillEvents = partitioner.Spills()
	stats.PeakBucketBytes = partitioner.PeakBytes()
	stats.PartitionDuration = time.Since(start)
	e.opts.Metrics.SetBucketBytes(residue.Bytes())
	e.opts.Metrics.ObservePhase(PhasePartition, stats.PartitionDuration.Seconds())

	logger.Info("partition phase complete",
		logger.Records(stats.RecordsRead),
		logger.Malformed(stats.MalformedLines),
		logger.Runs(len(runs)),
		logger.Buckets(residue.Len()),
		logger.DurationMs(logger.Duration(start)),
	)

	return residue, runs, nil
}

// mergeAndEmit merges all runs plus the residue and writes the output
// atomically: groups stream into a temp sibling of the output path,
// which is fsynced and renamed only after the merge finishes.
func (e *Engine) mergeAndEmit(ctx context.Context, residue *spill.Buckets, runs []spill.Run, stats *Stats) (err error) {
	start := time.Now()

	sources := make([]merge.Source, 0, len(runs)+1)
	for _, run := range runs {
		reader, oerr := spill.OpenRun(run, e.codec, true)
		if oerr != nil {
			closeSources(sources)
			return fmt.Errorf("%s: %w", PhaseMerge, oerr)
		}
		sources = append(sources, reader)
	}
	sources = append(sources, spill.NewResidueSource(residue))

	merger, merr := merge.New(sources...)
	if merr != nil {
		return fmt.Errorf("%s: %w", PhaseMerge, merr)
	}
	defer merger.Close()

	tmpPath := fmt.Sprintf("%s.tmp-%s", e.opts.OutputPath, uuid.NewString())
	out, oerr := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if oerr != nil {
		return fmt.Errorf("%s: create output %s: %w", PhaseMerge, tmpPath, oerr)
	}

	renamed := false
	defer func() {
		if !renamed {
			out.Close()
			os.Remove(tmpPath)
		}
	}()

	bw := bufio.NewWriterSize(out, 1024*1024)

	for {
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%s: %w", PhaseMerge, cerr)
		}

		group, gerr := merger.Next()
		if gerr == io.EOF {
			break
		}
		if gerr != nil {
			return fmt.Errorf("%s: %w", PhaseMerge, gerr)
		}

		stats.UniqueFingerprints++
		if e.opts.DuplicatesOnly && len(group.Certificates) < 2 {
			continue
		}

		if werr := e.codec.EncodeGroup(bw, group); werr != nil {
			return fmt.Errorf("%s: write output %s: %w", PhaseMerge, e.opts.OutputPath, werr)
		}
		stats.GroupsEmitted++
		e.opts.Metrics.RecordGroup()
	}

	if ferr := bw.Flush(); ferr != nil {
		return fmt.Errorf("%s: flush output %s: %w", PhaseMerge, e.opts.OutputPath, ferr)
	}
	if serr := out.Sync(); serr != nil {
		return fmt.Errorf("%s: sync output %s: %w", PhaseMerge, e.opts.OutputPath, serr)
	}
	if cerr := out.Close(); cerr != nil {
		return fmt.Errorf("%s: close output %s: %w", PhaseMerge, e.opts.OutputPath, cerr)
	}
	if rerr := os.Rename(tmpPath, e.opts.OutputPath); rerr != nil {
		return fmt.Errorf("%s: rename output %s: %w", PhaseMerge, e.opts.OutputPath, rerr)
	}
	renamed = true

	stats.MergeDuration = time.Since(start)
	e.opts.Metrics.ObservePhase(PhaseMerge, stats.MergeDuration.Seconds())

	logger.Info("merge phase complete",
		logger.Sources(len(sources)),
		logger.Groups(stats.GroupsEmitted),
		logger.DurationMs(logger.Duration(start)),
	)

	return nil
}

func closeSources(sources []merge.Source) {
	for _, src := range sources {
		src.Close()
	}
}
