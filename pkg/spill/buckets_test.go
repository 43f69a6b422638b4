package spill

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/certdedup/pkg/record"
)

func rec(fp, payload string) record.Record {
	return record.Record{Fingerprint: fp, Payload: json.RawMessage(payload)}
}

func TestBucketsAdd(t *testing.T) {
	t.Parallel()

	b := NewBuckets()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, uint64(0), b.Bytes())

	b.Add(rec("aa", `{"n":1}`))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 1, b.Records())

	// First entry pays payload, entry and bucket overhead.
	first := uint64(7) + entryOverhead + uint64(2) + bucketOverhead
	assert.Equal(t, first, b.Bytes())
	assert.Equal(t, first, b.SizeOf("aa"))

	// Second entry to the same bucket pays no bucket overhead.
	b.Add(rec("aa", `{"n":2}`))
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, 2, b.Records())
	assert.Equal(t, first+7+entryOverhead, b.Bytes())
}

func TestBucketsArrivalOrder(t *testing.T) {
	t.Parallel()

	b := NewBuckets()
	b.Add(rec("aa", `{"n":1}`))
	b.Add(rec("aa", `{"n":2}`))
	b.Add(rec("aa", `{"n":3}`))

	payloads := b.Get("aa")
	assert.Equal(t, []json.RawMessage{
		json.RawMessage(`{"n":1}`),
		json.RawMessage(`{"n":2}`),
		json.RawMessage(`{"n":3}`),
	}, payloads)
}

func TestBucketsSortedFingerprints(t *testing.T) {
	t.Parallel()

	b := NewBuckets()
	b.Add(rec("cc", `{}`))
	b.Add(rec("aa", `{}`))
	b.Add(rec("bb", `{}`))

	assert.Equal(t, []string{"aa", "bb", "cc"}, b.SortedFingerprints())
}

func TestBucketsRemove(t *testing.T) {
	t.Parallel()

	b := NewBuckets()
	b.Add(rec("aa", `{"n":1}`))
	b.Add(rec("bb", `{"n":2}`))

	sizeBB := b.SizeOf("bb")
	b.Remove("aa")

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, sizeBB, b.Bytes())
	assert.Nil(t, b.Get("aa"))
	assert.Equal(t, uint64(0), b.SizeOf("aa"))

	// Removing an absent fingerprint is a no-op.
	b.Remove("aa")
	assert.Equal(t, sizeBB, b.Bytes())
}
