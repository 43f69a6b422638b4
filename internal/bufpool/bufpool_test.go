package bufpool

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetReturnsEmptyBuffer(t *testing.T) {
	t.Parallel()

	buf := Get()
	assert.Equal(t, 0, buf.Len())

	buf.WriteString("leftover")
	Put(buf)

	// Any pooled buffer comes back reset.
	again := Get()
	assert.Equal(t, 0, again.Len())
	Put(again)
}

func TestPutDropsOversizedBuffers(t *testing.T) {
	t.Parallel()

	buf := new(bytes.Buffer)
	buf.Grow(MaxRetain + 1)
	Put(buf) // must not panic, buffer is simply dropped

	Put(nil) // nil is a no-op
}
