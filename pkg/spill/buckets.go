// Package spill implements the bounded-memory partitioning stage: records
// accumulate in per-fingerprint buckets until a configured memory ceiling
// is hit, at which point buckets are flushed to sorted run files in a
// temporary namespace owned by the current execution.
package spill

import (
	"encoding/json"
	"sort"

	"github.com/marmos91/certdedup/pkg/record"
)

// Per-entry accounting overhead added on top of raw payload bytes.
// Covers slice headers and map bookkeeping; an estimate, not a measurement.
const (
	entryOverhead  = 48
	bucketOverhead = 96
)

// Buckets maps fingerprints to their accumulated payloads in arrival
// order. It tracks an estimate of the bytes held so the partitioner can
// enforce the memory ceiling. Not safe for concurrent use.
type Buckets struct {
	m     map[string][]json.RawMessage
	sizes map[string]uint64
	bytes uint64
}

// NewBuckets creates an empty bucket set.
func NewBuckets() *Buckets {
	return &Buckets{
		m:     make(map[string][]json.RawMessage),
		sizes: make(map[string]uint64),
	}
}

// Add appends the record's payload to its fingerprint bucket, creating
// the bucket if absent. Arrival order within a bucket is preserved; it
// determines the order of duplicates in the final output.
func (b *Buckets) Add(rec record.Record) {
	cost := uint64(len(rec.Payload)) + entryOverhead
	if _, ok := b.m[rec.Fingerprint]; !ok {
		cost += uint64(len(rec.Fingerprint)) + bucketOverhead
	}
	b.m[rec.Fingerprint] = append(b.m[rec.Fingerprint], rec.Payload)
	b.sizes[rec.Fingerprint] += cost
	b.bytes += cost
}

// Bytes returns the estimated bytes currently held across all buckets.
func (b *Buckets) Bytes() uint64 {
	return b.bytes
}

// Len returns the number of distinct fingerprints currently buffered.
func (b *Buckets) Len() int {
	return len(b.m)
}

// Records returns the total number of buffered payloads.
func (b *Buckets) Records() int {
	n := 0
	for _, payloads := range b.m {
		n += len(payloads)
	}
	return n
}

// SortedFingerprints returns all buffered fingerprints in ascending
// lexicographic order.
func (b *Buckets) SortedFingerprints() []string {
	fps := make([]string, 0, len(b.m))
	for fp := range b.m {
		fps = append(fps, fp)
	}
	sort.Strings(fps)
	return fps
}

// SizeOf returns the estimated bytes held by a single fingerprint bucket.
func (b *Buckets) SizeOf(fp string) uint64 {
	return b.sizes[fp]
}

// Get returns the payloads of a fingerprint bucket in arrival order.
func (b *Buckets) Get(fp string) []json.RawMessage {
	return b.m[fp]
}

// Remove drops a fingerprint bucket and releases its accounted bytes.
func (b *Buckets) Remove(fp string) {
	if size, ok := b.sizes[fp]; ok {
		b.bytes -= size
		delete(b.sizes, fp)
		delete(b.m, fp)
	}
}
