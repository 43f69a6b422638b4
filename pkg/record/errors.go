package record

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord is the sentinel wrapped by every MalformedRecordError.
// Use errors.Is(err, ErrMalformedRecord) to distinguish per-line decode
// failures from fatal I/O errors.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError describes a single undecodable input line.
type MalformedRecordError struct {
	// Line is the 1-based input line number, when known.
	Line uint64

	// Reason describes why the line could not be decoded.
	Reason string
}

func (e *MalformedRecordError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed record at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed record: %s", e.Reason)
}

func (e *MalformedRecordError) Unwrap() error {
	return ErrMalformedRecord
}
