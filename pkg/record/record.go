// Package record implements the jsonlines codec for certificate records.
//
// A record is one input line: a JSON object carrying a fingerprint field
// (possibly nested, e.g. data.leaf_cert.fingerprint for certificate
// transparency logs) plus an arbitrary payload. The payload is the input
// object minus the fingerprint field, treated as opaque bytes: it is
// never re-marshaled, so the remaining fields survive into the output
// byte-for-byte.
package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/buger/jsonparser"

	"github.com/marmos91/certdedup/internal/bufpool"
)

// DefaultFingerprintField is the field holding the deduplication key when
// no explicit path is configured.
const DefaultFingerprintField = "fingerprint"

// Record is one decoded input line. Immutable once read.
type Record struct {
	// Fingerprint is the deduplication key, an opaque byte-comparable string.
	Fingerprint string

	// Payload is the input object with the fingerprint field removed.
	Payload json.RawMessage
}

// Group is the unit written to output: one unique fingerprint with all of
// its payloads in deterministic order.
type Group struct {
	Fingerprint  string
	Certificates []json.RawMessage
}

// Codec decodes input lines into Records and encodes Groups back to
// output lines. A Codec is safe for concurrent use.
type Codec struct {
	fieldPath []string
}

// NewCodec creates a codec extracting the fingerprint from the given
// dotted field path ("fingerprint", "data.leaf_cert.fingerprint", ...).
// An empty path selects DefaultFingerprintField.
func NewCodec(fieldPath string) *Codec {
	if fieldPath == "" {
		fieldPath = DefaultFingerprintField
	}
	return &Codec{fieldPath: strings.Split(fieldPath, ".")}
}

// Decode decodes one input line into a Record.
//
// Returns a *MalformedRecordError when the line is not a valid JSON
// object or the fingerprint field is missing or empty. Malformed lines
// are never fatal by themselves; the caller decides whether to skip or
// abort.
func (c *Codec) Decode(line []byte) (Record, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Record{}, &MalformedRecordError{Reason: "empty line"}
	}

	// jsonparser tolerates trailing garbage, so validate the whole line
	// first. Payload bytes flow into the output verbatim and must be
	// well-formed JSON.
	if !json.Valid(trimmed) {
		return Record{}, &MalformedRecordError{Reason: "invalid JSON"}
	}
	if trimmed[0] != '{' {
		return Record{}, &MalformedRecordError{Reason: "not a JSON object"}
	}

	fp, err := jsonparser.GetString(trimmed, c.fieldPath...)
	if err != nil {
		return Record{}, &MalformedRecordError{
			Reason: fmt.Sprintf("fingerprint field %q: %v", strings.Join(c.fieldPath, "."), err),
		}
	}
	if fp == "" {
		return Record{}, &MalformedRecordError{Reason: "empty fingerprint"}
	}

	// The remaining fields form the payload. Delete works on a copy so
	// the caller's line buffer is never mutated.
	payload := make(json.RawMessage, len(trimmed))
	copy(payload, trimmed)
	payload = jsonparser.Delete(payload, c.fieldPath...)

	return Record{Fingerprint: fp, Payload: payload}, nil
}

// EncodeGroup writes one output line for the group:
//
//	{"fingerprint":"...","certificates":[<payload>,...]}
//
// Payloads are written verbatim in order, so encoding is deterministic.
func (c *Codec) EncodeGroup(w io.Writer, g Group) error {
	fp, err := json.Marshal(g.Fingerprint)
	if err != nil {
		return fmt.Errorf("encode fingerprint %q: %w", g.Fingerprint, err)
	}

	buf := bufpool.Get()
	defer bufpool.Put(buf)
	buf.Grow(len(fp) + 64)
	buf.WriteString(`{"fingerprint":`)
	buf.Write(fp)
	buf.WriteString(`,"certificates":[`)
	for i, cert := range g.Certificates {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(cert)
	}
	buf.WriteString("]}\n")

	_, err = w.Write(buf.Bytes())
	return err
}

// runLine is the framing for records inside spilled run files. Runs are
// themselves jsonlines so they can be inspected with standard tooling.
type runLine struct {
	Fingerprint string          `json:"fingerprint"`
	Payload     json.RawMessage `json:"payload"`
}

// EncodeRecord writes one run-file line for the record.
func (c *Codec) EncodeRecord(w io.Writer, rec Record) error {
	data, err := json.Marshal(runLine{Fingerprint: rec.Fingerprint, Payload: rec.Payload})
	if err != nil {
		return fmt.Errorf("encode run record %q: %w", rec.Fingerprint, err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// DecodeRecord decodes one run-file line back into a Record.
func (c *Codec) DecodeRecord(line []byte) (Record, error) {
	var rl runLine
	if err := json.Unmarshal(line, &rl); err != nil {
		return Record{}, fmt.Errorf("decode run record: %w", err)
	}
	if rl.Fingerprint == "" {
		return Record{}, fmt.Errorf("decode run record: empty fingerprint")
	}
	return Record{Fingerprint: rl.Fingerprint, Payload: rl.Payload}, nil
}
