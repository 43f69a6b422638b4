package spill

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/certdedup/internal/bufpool"
	"github.com/marmos91/certdedup/pkg/record"
)

// Compression modes for spilled run files.
const (
	CompressionGzip = "gzip"
	CompressionNone = "none"
)

// Run describes one spilled run file: a fingerprint-sorted sequence of
// records, written by a single spill event and consumed exactly once by
// the merge phase.
type Run struct {
	// Path is the run file location inside the temp namespace.
	Path string

	// Seq is the creation order of the run, starting at 0. The merger
	// drains equal-fingerprint records in ascending Seq order.
	Seq int

	// Records is the number of records written to the run.
	Records uint64
}

// writeRun flushes the given fingerprints (already sorted ascending) from
// the buckets into a new run file. Record encoding is parallelized per
// bucket; the file itself is written strictly in fingerprint order, so
// the resulting run is sorted regardless of encoding concurrency.
func writeRun(dir string, seq int, codec *record.Codec, compression string, buckets *Buckets, fps []string) (Run, error) {
	name := fmt.Sprintf("run-%04d.jsonl", seq)
	if compression == CompressionGzip {
		name += ".gz"
	}
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return Run{}, fmt.Errorf("create run file %s: %w", path, err)
	}

	bw := bufio.NewWriterSize(f, 256*1024)
	var w io.Writer = bw
	var gz *gzip.Writer
	if compression == CompressionGzip {
		gz = gzip.NewWriter(bw)
		w = gz
	}

	chunks := make([]*bytes.Buffer, len(fps))
	g := new(errgroup.Group)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, fp := range fps {
		g.Go(func() error {
			buf := bufpool.Get()
			for _, payload := range buckets.Get(fp) {
				rec := record.Record{Fingerprint: fp, Payload: payload}
				if err := codec.EncodeRecord(buf, rec); err != nil {
					return err
				}
			}
			chunks[i] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		f.Close()
		os.Remove(path)
		return Run{}, fmt.Errorf("encode run %s: %w", path, err)
	}

	var records uint64
	for i, fp := range fps {
		if _, err := w.Write(chunks[i].Bytes()); err != nil {
			f.Close()
			os.Remove(path)
			return Run{}, fmt.Errorf("write run file %s: %w", path, err)
		}
		records += uint64(len(buckets.Get(fp)))
		bufpool.Put(chunks[i])
		chunks[i] = nil
	}

	if gz != nil {
		if err := gz.Close(); err != nil {
			f.Close()
			os.Remove(path)
			return Run{}, fmt.Errorf("finish run file %s: %w", path, err)
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(path)
		return Run{}, fmt.Errorf("flush run file %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Run{}, fmt.Errorf("close run file %s: %w", path, err)
	}

	return Run{Path: path, Seq: seq, Records: records}, nil
}

// Reader streams records back out of a run file in fingerprint order.
// When RemoveOnClose is set the file is deleted on Close, so a fully
// consumed run releases its disk space immediately.
type Reader struct {
	run           Run
	f             *os.File
	gz            *gzip.Reader
	br            *bufio.Reader
	codec         *record.Codec
	removeOnClose bool
	closed        bool
}

// OpenRun opens a run file for sequential reading.
func OpenRun(run Run, codec *record.Codec, removeOnClose bool) (*Reader, error) {
	f, err := os.Open(run.Path)
	if err != nil {
		return nil, fmt.Errorf("open run file %s: %w", run.Path, err)
	}

	r := &Reader{
		run:           run,
		f:             f,
		codec:         codec,
		removeOnClose: removeOnClose,
	}

	if filepath.Ext(run.Path) == ".gz" {
		gz, err := gzip.NewReader(bufio.NewReaderSize(f, 256*1024))
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open run file %s: %w", run.Path, err)
		}
		r.gz = gz
		r.br = bufio.NewReader(gz)
	} else {
		r.br = bufio.NewReaderSize(f, 256*1024)
	}

	return r, nil
}

// Next returns the next record from the run, or io.EOF when exhausted.
func (r *Reader) Next() (record.Record, error) {
	line, err := r.br.ReadBytes('\n')
	if err == io.EOF && len(bytes.TrimSpace(line)) == 0 {
		return record.Record{}, io.EOF
	}
	if err != nil && err != io.EOF {
		return record.Record{}, fmt.Errorf("read run file %s: %w", r.run.Path, err)
	}

	rec, derr := r.codec.DecodeRecord(bytes.TrimSpace(line))
	if derr != nil {
		return record.Record{}, fmt.Errorf("run file %s: %w", r.run.Path, derr)
	}
	return rec, nil
}

// Close closes the reader and, when configured, deletes the run file.
// Safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error
	if r.gz != nil {
		if err := r.gz.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.f.Close(); err != nil {
		errs = append(errs, err)
	}
	if r.removeOnClose {
		if err := os.Remove(r.run.Path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close run file %s: %v", r.run.Path, errs[0])
	}
	return nil
}
