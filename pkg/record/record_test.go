package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodec_Decode(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")

	tests := []struct {
		name    string
		line    string
		wantFP  string
		wantErr bool
	}{
		{"simple record", `{"fingerprint":"AA:BB","v":1}`, "AA:BB", false},
		{"fingerprint only", `{"fingerprint":"X"}`, "X", false},
		{"surrounding whitespace", `  {"fingerprint":"X","v":1}  `, "X", false},
		{"empty line", ``, "", true},
		{"whitespace line", `   `, "", true},
		{"invalid JSON", `{"fingerprint":"X"`, "", true},
		{"not an object", `["fingerprint"]`, "", true},
		{"missing fingerprint", `{"v":1}`, "", true},
		{"empty fingerprint", `{"fingerprint":""}`, "", true},
		{"non-string fingerprint", `{"fingerprint":42}`, "", true},
		{"trailing garbage", `{"fingerprint":"X"} trailing`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := codec.Decode([]byte(tt.line))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedRecord), "error should wrap ErrMalformedRecord")

				var malformed *MalformedRecordError
				assert.True(t, errors.As(err, &malformed))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantFP, rec.Fingerprint)
			assert.True(t, json.Valid(rec.Payload))
		})
	}
}

func TestCodec_Decode_NestedFieldPath(t *testing.T) {
	t.Parallel()

	// The certificate transparency log shape.
	codec := NewCodec("data.leaf_cert.fingerprint")

	line := `{"data":{"leaf_cert":{"fingerprint":"DE:AD","subject":"CN=example"}},"message_type":"certificate_update"}`
	rec, err := codec.Decode([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, "DE:AD", rec.Fingerprint)
	assert.JSONEq(t,
		`{"data":{"leaf_cert":{"subject":"CN=example"}},"message_type":"certificate_update"}`,
		string(rec.Payload))

	// Missing intermediate object
	_, err = codec.Decode([]byte(`{"data":{}}`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestCodec_Decode_PayloadExcludesFingerprint(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")
	line := `{"fingerprint":"X","nested":{"a":[1,2,3]},"s":"hello"}`

	rec, err := codec.Decode([]byte(line))
	require.NoError(t, err)
	assert.Equal(t, `{"nested":{"a":[1,2,3]},"s":"hello"}`, string(rec.Payload),
		"payload must be the remaining fields, byte for byte")
}

func TestCodec_EncodeGroup(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")

	tests := []struct {
		name  string
		group Group
		want  string
	}{
		{
			name: "two certificates",
			group: Group{
				Fingerprint: "X",
				Certificates: []json.RawMessage{
					json.RawMessage(`{"fingerprint":"X","v":1}`),
					json.RawMessage(`{"fingerprint":"X","v":2}`),
				},
			},
			want: `{"fingerprint":"X","certificates":[{"fingerprint":"X","v":1},{"fingerprint":"X","v":2}]}` + "\n",
		},
		{
			name: "single certificate",
			group: Group{
				Fingerprint:  "Y",
				Certificates: []json.RawMessage{json.RawMessage(`{"fingerprint":"Y","v":3}`)},
			},
			want: `{"fingerprint":"Y","certificates":[{"fingerprint":"Y","v":3}]}` + "\n",
		},
		{
			name: "fingerprint needing escaping",
			group: Group{
				Fingerprint:  `a"b`,
				Certificates: []json.RawMessage{json.RawMessage(`{}`)},
			},
			want: `{"fingerprint":"a\"b","certificates":[{}]}` + "\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			require.NoError(t, codec.EncodeGroup(&buf, tt.group))
			assert.Equal(t, tt.want, buf.String())
			assert.True(t, json.Valid(buf.Bytes()[:buf.Len()-1]), "output line must be valid JSON")
		})
	}
}

func TestCodec_EncodeGroup_Deterministic(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")
	g := Group{
		Fingerprint: "Z",
		Certificates: []json.RawMessage{
			json.RawMessage(`{"fingerprint":"Z","b":2,"a":1}`),
		},
	}

	var first, second bytes.Buffer
	require.NoError(t, codec.EncodeGroup(&first, g))
	require.NoError(t, codec.EncodeGroup(&second, g))
	assert.Equal(t, first.String(), second.String())
}

func TestCodec_RunRecordRoundTrip(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")
	rec := Record{
		Fingerprint: "AA:BB",
		Payload:     json.RawMessage(`{"fingerprint":"AA:BB","v":1}`),
	}

	var buf bytes.Buffer
	require.NoError(t, codec.EncodeRecord(&buf, rec))

	line := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	got, err := codec.DecodeRecord(line)
	require.NoError(t, err)
	assert.Equal(t, rec.Fingerprint, got.Fingerprint)
	assert.JSONEq(t, string(rec.Payload), string(got.Payload))
}

func TestCodec_DecodeRecord_Errors(t *testing.T) {
	t.Parallel()

	codec := NewCodec("")

	_, err := codec.DecodeRecord([]byte(`not json`))
	assert.Error(t, err)

	_, err = codec.DecodeRecord([]byte(`{"payload":{}}`))
	assert.Error(t, err, "run record without fingerprint must fail")
}
