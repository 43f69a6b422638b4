package merge

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/certdedup/pkg/record"
)

// memSource is an in-memory Source for tests.
type memSource struct {
	recs   []record.Record
	idx    int
	closed int
}

func src(pairs ...string) *memSource {
	s := &memSource{}
	for i := 0; i < len(pairs); i += 2 {
		s.recs = append(s.recs, record.Record{
			Fingerprint: pairs[i],
			Payload:     json.RawMessage(pairs[i+1]),
		})
	}
	return s
}

func (s *memSource) Next() (record.Record, error) {
	if s.idx >= len(s.recs) {
		return record.Record{}, io.EOF
	}
	r := s.recs[s.idx]
	s.idx++
	return r, nil
}

func (s *memSource) Close() error {
	s.closed++
	return nil
}

func drain(t *testing.T, m *Merger) []record.Group {
	t.Helper()

	var groups []record.Group
	for {
		g, err := m.Next()
		if err == io.EOF {
			return groups
		}
		require.NoError(t, err)
		groups = append(groups, g)
	}
}

func payloads(g record.Group) []string {
	out := make([]string, len(g.Certificates))
	for i, c := range g.Certificates {
		out[i] = string(c)
	}
	return out
}

func TestMergerSingleSource(t *testing.T) {
	t.Parallel()

	m, err := New(src("aa", `{"n":1}`, "aa", `{"n":2}`, "bb", `{"n":3}`))
	require.NoError(t, err)
	defer m.Close()

	groups := drain(t, m)
	require.Len(t, groups, 2)
	assert.Equal(t, "aa", groups[0].Fingerprint)
	assert.Equal(t, []string{`{"n":1}`, `{"n":2}`}, payloads(groups[0]))
	assert.Equal(t, "bb", groups[1].Fingerprint)
	assert.Equal(t, []string{`{"n":3}`}, payloads(groups[1]))
}

func TestMergerAscendingAcrossSources(t *testing.T) {
	t.Parallel()

	m, err := New(
		src("bb", `{"s":0}`, "dd", `{"s":0}`),
		src("aa", `{"s":1}`, "cc", `{"s":1}`),
		src("cc", `{"s":2}`, "ee", `{"s":2}`),
	)
	require.NoError(t, err)
	defer m.Close()

	groups := drain(t, m)
	require.Len(t, groups, 5)

	var fps []string
	for _, g := range groups {
		fps = append(fps, g.Fingerprint)
	}
	assert.Equal(t, []string{"aa", "bb", "cc", "dd", "ee"}, fps)

	// cc appears in sources 1 and 2; source order decides payload order.
	assert.Equal(t, []string{`{"s":1}`, `{"s":2}`}, payloads(groups[2]))
}

func TestMergerTieBreakFollowsSourceOrder(t *testing.T) {
	t.Parallel()

	// Every source holds the same fingerprint. The group must list the
	// payloads in the order the sources were passed to New.
	m, err := New(
		src("aa", `{"run":0,"i":0}`, "aa", `{"run":0,"i":1}`),
		src("aa", `{"run":1,"i":0}`),
		src("aa", `{"residue":true}`),
	)
	require.NoError(t, err)
	defer m.Close()

	groups := drain(t, m)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{
		`{"run":0,"i":0}`,
		`{"run":0,"i":1}`,
		`{"run":1,"i":0}`,
		`{"residue":true}`,
	}, payloads(groups[0]))
}

func TestMergerEmptySources(t *testing.T) {
	t.Parallel()

	empty := src()
	m, err := New(empty, src("aa", `{}`), src())
	require.NoError(t, err)
	defer m.Close()

	// Exhausted-on-arrival sources are closed during priming.
	assert.Equal(t, 1, empty.closed)

	groups := drain(t, m)
	require.Len(t, groups, 1)
	assert.Equal(t, "aa", groups[0].Fingerprint)
}

func TestMergerNoSources(t *testing.T) {
	t.Parallel()

	m, err := New()
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestMergerClosesExhaustedSources(t *testing.T) {
	t.Parallel()

	a := src("aa", `{}`)
	b := src("bb", `{}`)
	m, err := New(a, b)
	require.NoError(t, err)

	groups := drain(t, m)
	require.Len(t, groups, 2)

	// Each source is closed as soon as it reports EOF mid-merge.
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestMergerDetectsOutOfOrderSource(t *testing.T) {
	t.Parallel()

	m, err := New(src("bb", `{}`, "aa", `{}`))
	require.NoError(t, err)
	defer m.Close()

	_, err = m.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of order")

	// The merger is unusable after the error.
	_, err2 := m.Next()
	assert.Equal(t, err, err2)
}
