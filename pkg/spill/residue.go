package spill

import (
	"io"

	"github.com/marmos91/certdedup/pkg/record"
)

// ResidueSource yields the never-spilled residue buckets as one more
// sorted source for the merge phase: fingerprints ascending, payloads in
// arrival order within each fingerprint.
type ResidueSource struct {
	buckets *Buckets
	fps     []string
	fpIdx   int
	payIdx  int
}

// NewResidueSource sorts the residue in place and wraps it as a source.
func NewResidueSource(buckets *Buckets) *ResidueSource {
	return &ResidueSource{
		buckets: buckets,
		fps:     buckets.SortedFingerprints(),
	}
}

// Records returns the total number of records held by the residue.
func (s *ResidueSource) Records() int {
	return s.buckets.Records()
}

// Next returns the next residue record, or io.EOF when exhausted.
func (s *ResidueSource) Next() (record.Record, error) {
	for s.fpIdx < len(s.fps) {
		fp := s.fps[s.fpIdx]
		payloads := s.buckets.Get(fp)
		if s.payIdx < len(payloads) {
			rec := record.Record{Fingerprint: fp, Payload: payloads[s.payIdx]}
			s.payIdx++
			return rec, nil
		}
		s.fpIdx++
		s.payIdx = 0
	}
	return record.Record{}, io.EOF
}

// Close releases the residue. The backing buckets stay owned by the
// partitioner; nothing to free here.
func (s *ResidueSource) Close() error {
	return nil
}
