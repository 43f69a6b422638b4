package engine

import "time"

// Stats summarizes one completed dedup run.
type Stats struct {
	// RecordsRead is the number of input lines read, malformed included.
	RecordsRead uint64

	// MalformedLines is the number of undecodable lines skipped.
	MalformedLines uint64

	// RunsCreated is the number of sorted run files spilled to temp storage.
	RunsCreated int

	// SpillEvents is the number of times the memory ceiling forced a spill.
	SpillEvents int

	// GroupsEmitted is the number of output lines written (unique
	// fingerprints, after the duplicates-only filter when enabled).
	GroupsEmitted uint64

	// UniqueFingerprints is the number of distinct fingerprints seen,
	// regardless of output filtering.
	UniqueFingerprints uint64

	// PeakBucketBytes is the highest in-memory bucket estimate observed.
	PeakBucketBytes uint64

	// PartitionDuration and MergeDuration time the two phases.
	PartitionDuration time.Duration
	MergeDuration     time.Duration
}
