// Package bufpool provides reusable byte buffers for record encoding.
//
// Encoding allocates one buffer per emitted group and per spilled bucket,
// so over a multi-gigabyte input the encode path is allocation-heavy.
// Pooling the buffers keeps steady-state allocation flat. Buffers that
// grow past a retention cap are dropped instead of returned, so one
// oversized certificate chain does not pin memory in the pool.
package bufpool

import (
	"bytes"
	"sync"
)

// MaxRetain is the largest buffer capacity kept in the pool. Larger
// buffers are released to the garbage collector on Put.
const MaxRetain = 1 << 20

var pool = sync.Pool{
	New: func() any { return new(bytes.Buffer) },
}

// Get returns an empty buffer from the pool.
func Get() *bytes.Buffer {
	buf := pool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// Put returns a buffer to the pool unless it grew past the retention cap.
// The buffer must not be used after Put.
func Put(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > MaxRetain {
		return
	}
	pool.Put(buf)
}
