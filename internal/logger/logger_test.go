package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	Info("partition phase complete", Records(42), Runs(3))

	out := buf.String()
	assert.Contains(t, out, "[INFO]")
	assert.Contains(t, out, "partition phase complete")
	assert.Contains(t, out, "records=42")
	assert.Contains(t, out, "runs=3")
}

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json")

	Info("dedup run complete", Groups(7), InputPath("/data/in.jsonl"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dedup run complete", entry["msg"])
	assert.Equal(t, float64(7), entry["groups"])
	assert.Equal(t, "/data/in.jsonl", entry["input_path"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text")

	Debug("not shown")
	Info("not shown either")
	Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "not shown")
	assert.Equal(t, 1, strings.Count(out, "shown"))
}

func TestInvalidLevelIgnored(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text")

	SetLevel("CHATTY")
	Info("still logged")

	assert.Contains(t, buf.String(), "still logged")
}
