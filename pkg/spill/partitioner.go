package spill

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/marmos91/certdedup/internal/logger"
	"github.com/marmos91/certdedup/pkg/record"
)

// Policy selects which buckets are flushed when the memory ceiling is
// exceeded. Both policies are deterministic for a given input.
type Policy string

const (
	// PolicyAll flushes every bucket on each spill event. One spill
	// produces one run holding everything buffered so far.
	PolicyAll Policy = "all"

	// PolicyLargest flushes the largest buckets by estimated bytes
	// (ties broken by fingerprint) until at least half the buffered
	// bytes are released. Small hot keys stay resident.
	PolicyLargest Policy = "largest"
)

// Options configures a Partitioner.
type Options struct {
	// Dir is the temp namespace the partitioner writes runs into. Must
	// exist and be exclusively owned by the current execution.
	Dir string

	// MemoryCeiling is the bucket byte estimate that triggers a spill.
	// Zero disables spilling entirely (everything stays in memory).
	MemoryCeiling uint64

	// Policy selects the eviction policy. Defaults to PolicyAll.
	Policy Policy

	// Compression selects the run file compression. Defaults to gzip.
	Compression string
}

// Partitioner ingests decoded records and bounds peak memory by spilling
// buckets to sorted run files. Not safe for concurrent use; the ingest
// path is single-threaded by design, matching the input's single pass.
type Partitioner struct {
	opts    Options
	codec   *record.Codec
	buckets *Buckets
	runs    []Run

	spills    int
	peakBytes uint64
}

// NewPartitioner creates a partitioner spilling into opts.Dir.
func NewPartitioner(codec *record.Codec, opts Options) *Partitioner {
	if opts.Policy == "" {
		opts.Policy = PolicyAll
	}
	if opts.Compression == "" {
		opts.Compression = CompressionGzip
	}
	return &Partitioner{
		opts:    opts,
		codec:   codec,
		buckets: NewBuckets(),
	}
}

// Ingest absorbs one record, spilling first if the previous record pushed
// the estimate over the ceiling. A single bucket larger than the ceiling
// spills whole: one fingerprint's duplicate set is never split within a
// spill event, so the ceiling can be transiently overshot by the size of
// the largest duplicate set.
func (p *Partitioner) Ingest(ctx context.Context, rec record.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.buckets.Add(rec)
	if p.buckets.Bytes() > p.peakBytes {
		p.peakBytes = p.buckets.Bytes()
	}

	if p.opts.MemoryCeiling > 0 && p.buckets.Bytes() > p.opts.MemoryCeiling {
		if err := p.spill(); err != nil {
			return err
		}
	}
	return nil
}

// spill flushes the policy-selected buckets as one sorted run.
func (p *Partitioner) spill() error {
	fps := p.selectVictims()
	if len(fps) == 0 {
		return nil
	}

	start := time.Now()
	run, err := writeRun(p.opts.Dir, len(p.runs), p.codec, p.opts.Compression, p.buckets, fps)
	if err != nil {
		return fmt.Errorf("spill: %w", err)
	}

	for _, fp := range fps {
		p.buckets.Remove(fp)
	}
	p.runs = append(p.runs, run)
	p.spills++

	logger.Debug("spilled run",
		logger.RunFile(run.Path),
		logger.Records(run.Records),
		logger.BucketBytes(p.buckets.Bytes()),
		logger.DurationMs(logger.Duration(start)),
	)
	return nil
}

// selectVictims returns the fingerprints to flush, sorted ascending.
func (p *Partitioner) selectVictims() []string {
	switch p.opts.Policy {
	case PolicyLargest:
		fps := p.buckets.SortedFingerprints()
		// Order by size descending, fingerprint ascending on ties.
		sort.SliceStable(fps, func(i, j int) bool {
			return p.buckets.SizeOf(fps[i]) > p.buckets.SizeOf(fps[j])
		})

		target := p.buckets.Bytes() / 2
		var released uint64
		var victims []string
		for _, fp := range fps {
			if released >= target {
				break
			}
			victims = append(victims, fp)
			released += p.buckets.SizeOf(fp)
		}
		sort.Strings(victims)
		return victims
	default:
		return p.buckets.SortedFingerprints()
	}
}

// Finish ends the partition phase and returns the never-spilled residue
// buckets together with all runs created, in creation order.
func (p *Partitioner) Finish() (*Buckets, []Run) {
	return p.buckets, p.runs
}

// Spills returns the number of spill events so far.
func (p *Partitioner) Spills() int {
	return p.spills
}

// PeakBytes returns the highest bucket byte estimate observed.
func (p *Partitioner) PeakBytes() uint64 {
	return p.peakBytes
}

// BucketBytes returns the current bucket byte estimate.
func (p *Partitioner) BucketBytes() uint64 {
	return p.buckets.Bytes()
}
