// Package merge implements the k-way merge over sorted record sources.
//
// Every source (spilled run files and the in-memory residue) yields
// records in ascending fingerprint order. The merger repeatedly selects
// the smallest fingerprint across all sources, drains every source's
// consecutive equal-fingerprint records in source order, and emits the
// combined payloads as one group. Output groups are strictly ascending
// by fingerprint, each fingerprint exactly once.
package merge

import (
	"container/heap"
	"fmt"
	"io"

	"github.com/marmos91/certdedup/pkg/record"
)

// Source is a sorted, forward-only stream of records. Next returns
// io.EOF when the source is exhausted; Close must be safe to call after
// that (run sources delete their backing file on Close).
type Source interface {
	Next() (record.Record, error)
	Close() error
}

// head is one source's current front record inside the priority queue.
type head struct {
	rec record.Record
	src int
}

// headQueue orders heads by fingerprint, then by source sequence so that
// equal fingerprints drain in a fixed priority order. Runs carry lower
// sequences than the residue, so spilled (older) data comes first.
type headQueue []head

func (q headQueue) Len() int { return len(q) }

func (q headQueue) Less(i, j int) bool {
	if q[i].rec.Fingerprint != q[j].rec.Fingerprint {
		return q[i].rec.Fingerprint < q[j].rec.Fingerprint
	}
	return q[i].src < q[j].src
}

func (q headQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *headQueue) Push(x any) { *q = append(*q, x.(head)) }

func (q *headQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

// Merger combines k sorted sources into one ordered stream of groups.
type Merger struct {
	sources []Source
	queue   headQueue
	err     error
}

// New primes every source and returns a ready merger. Source order is
// the tie-break priority: pass runs in creation order first, the residue
// last. Exhausted-on-arrival sources are closed immediately.
func New(sources ...Source) (*Merger, error) {
	m := &Merger{sources: sources}

	for i, src := range sources {
		rec, err := src.Next()
		if err == io.EOF {
			if cerr := src.Close(); cerr != nil {
				m.closeAll()
				return nil, cerr
			}
			continue
		}
		if err != nil {
			m.closeAll()
			return nil, fmt.Errorf("prime merge source %d: %w", i, err)
		}
		m.queue = append(m.queue, head{rec: rec, src: i})
	}

	heap.Init(&m.queue)
	return m, nil
}

// Next returns the next group in ascending fingerprint order, or io.EOF
// when all sources are exhausted. After a non-EOF error the merger is
// unusable and the caller should Close it.
func (m *Merger) Next() (record.Group, error) {
	if m.err != nil {
		return record.Group{}, m.err
	}
	if m.queue.Len() == 0 {
		return record.Group{}, io.EOF
	}

	fp := m.queue[0].rec.Fingerprint
	group := record.Group{Fingerprint: fp}

	// Drain every source holding this fingerprint. The heap surfaces
	// them in source order because equal keys compare by sequence.
	for m.queue.Len() > 0 && m.queue[0].rec.Fingerprint == fp {
		h := heap.Pop(&m.queue).(head)
		group.Certificates = append(group.Certificates, h.rec.Payload)

		// Advance this source past its equal-keyed run.
		if err := m.advance(h.src, fp, &group); err != nil {
			m.err = err
			return record.Group{}, err
		}
	}

	return group, nil
}

// advance consumes records from one source while they match fp, then
// pushes the source's next differing record back onto the queue. Sources
// that hit EOF are closed (deleting run files immediately).
func (m *Merger) advance(src int, fp string, group *record.Group) error {
	for {
		rec, err := m.sources[src].Next()
		if err == io.EOF {
			return m.sources[src].Close()
		}
		if err != nil {
			return fmt.Errorf("merge source %d: %w", src, err)
		}

		if rec.Fingerprint < fp {
			return fmt.Errorf("merge source %d: records out of order (%q after %q)", src, rec.Fingerprint, fp)
		}
		if rec.Fingerprint == fp {
			group.Certificates = append(group.Certificates, rec.Payload)
			continue
		}

		heap.Push(&m.queue, head{rec: rec, src: src})
		return nil
	}
}

// Close closes every source. Safe after normal exhaustion; sources
// already closed by the merge are expected to tolerate a second Close.
func (m *Merger) Close() error {
	return m.closeAll()
}

func (m *Merger) closeAll() error {
	var first error
	for _, src := range m.sources {
		if err := src.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
