package logger

import (
	"log/slog"
)

// Standard field keys for structured logging. Use these keys consistently
// across all log statements so runs can be queried in log aggregation.
const (
	// Run lifecycle
	KeyPhase      = "phase"       // Engine phase: partition, merge
	KeyInputPath  = "input_path"  // Input jsonlines file
	KeyOutputPath = "output_path" // Output jsonlines file
	KeyTempDir    = "temp_dir"    // Temp namespace owned by this run
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message

	// Partitioning
	KeyRecords     = "records"      // Records read so far / in total
	KeyMalformed   = "malformed"    // Malformed lines skipped
	KeyBuckets     = "buckets"      // In-memory bucket count
	KeyBucketBytes = "bucket_bytes" // Estimated in-memory bucket bytes
	KeyCeiling     = "ceiling"      // Configured memory ceiling in bytes
	KeySpills      = "spills"       // Spill events so far

	// Runs and merging
	KeyRunFile = "run_file" // Spilled run file path
	KeyRuns    = "runs"     // Number of run files
	KeySources = "sources"  // Number of merge sources (runs + residue)
	KeyGroups  = "groups"   // Unique fingerprints emitted
)

// Phase returns a slog.Attr for the engine phase
func Phase(name string) slog.Attr {
	return slog.String(KeyPhase, name)
}

// InputPath returns a slog.Attr for the input file path
func InputPath(p string) slog.Attr {
	return slog.String(KeyInputPath, p)
}

// OutputPath returns a slog.Attr for the output file path
func OutputPath(p string) slog.Attr {
	return slog.String(KeyOutputPath, p)
}

// TempDir returns a slog.Attr for the temp namespace path
func TempDir(p string) slog.Attr {
	return slog.String(KeyTempDir, p)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Records returns a slog.Attr for the record count
func Records(n uint64) slog.Attr {
	return slog.Uint64(KeyRecords, n)
}

// Malformed returns a slog.Attr for the malformed line count
func Malformed(n uint64) slog.Attr {
	return slog.Uint64(KeyMalformed, n)
}

// Buckets returns a slog.Attr for the in-memory bucket count
func Buckets(n int) slog.Attr {
	return slog.Int(KeyBuckets, n)
}

// BucketBytes returns a slog.Attr for estimated in-memory bucket bytes
func BucketBytes(n uint64) slog.Attr {
	return slog.Uint64(KeyBucketBytes, n)
}

// Ceiling returns a slog.Attr for the configured memory ceiling
func Ceiling(n uint64) slog.Attr {
	return slog.Uint64(KeyCeiling, n)
}

// Spills returns a slog.Attr for the spill event count
func Spills(n int) slog.Attr {
	return slog.Int(KeySpills, n)
}

// RunFile returns a slog.Attr for a spilled run file path
func RunFile(p string) slog.Attr {
	return slog.String(KeyRunFile, p)
}

// Runs returns a slog.Attr for the run file count
func Runs(n int) slog.Attr {
	return slog.Int(KeyRuns, n)
}

// Sources returns a slog.Attr for the merge source count
func Sources(n int) slog.Attr {
	return slog.Int(KeySources, n)
}

// Groups returns a slog.Attr for the emitted group count
func Groups(n uint64) slog.Attr {
	return slog.Uint64(KeyGroups, n)
}
