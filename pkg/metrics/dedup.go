package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DedupRecorder holds the Prometheus series for one dedup engine.
//
// A nil *DedupRecorder is valid and records nothing, so callers never
// need to branch on whether metrics are enabled.
type DedupRecorder struct {
	recordsRead   prometheus.Counter
	malformed     prometheus.Counter
	spillEvents   prometheus.Counter
	runsCreated   prometheus.Counter
	groupsEmitted prometheus.Counter
	bucketBytes   prometheus.Gauge
	phaseSeconds  *prometheus.HistogramVec
}

// NewDedupRecorder creates a Prometheus-backed recorder.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewDedupRecorder() *DedupRecorder {
	if !IsEnabled() {
		return nil
	}

	reg := Registry()

	return &DedupRecorder{
		recordsRead: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certdedup_records_read_total",
			Help: "Total input records read",
		}),
		malformed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certdedup_malformed_lines_total",
			Help: "Total malformed input lines skipped",
		}),
		spillEvents: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certdedup_spill_events_total",
			Help: "Total spill events triggered by the memory ceiling",
		}),
		runsCreated: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certdedup_runs_created_total",
			Help: "Total sorted run files written to temp storage",
		}),
		groupsEmitted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "certdedup_groups_emitted_total",
			Help: "Total unique fingerprints written to output",
		}),
		bucketBytes: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "certdedup_bucket_bytes",
			Help: "Estimated bytes currently held by in-memory buckets",
		}),
		phaseSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "certdedup_phase_duration_seconds",
			Help:    "Duration of engine phases",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"phase"}),
	}
}

// RecordRead records one input record read.
func (r *DedupRecorder) RecordRead() {
	if r == nil {
		return
	}
	r.recordsRead.Inc()
}

// RecordMalformed records one malformed input line.
func (r *DedupRecorder) RecordMalformed() {
	if r == nil {
		return
	}
	r.malformed.Inc()
}

// RecordSpill records one spill event.
func (r *DedupRecorder) RecordSpill() {
	if r == nil {
		return
	}
	r.spillEvents.Inc()
}

// RecordRun records one run file created.
func (r *DedupRecorder) RecordRun() {
	if r == nil {
		return
	}
	r.runsCreated.Inc()
}

// RecordGroup records one group emitted.
func (r *DedupRecorder) RecordGroup() {
	if r == nil {
		return
	}
	r.groupsEmitted.Inc()
}

// SetBucketBytes records the current in-memory bucket byte estimate.
func (r *DedupRecorder) SetBucketBytes(n uint64) {
	if r == nil {
		return
	}
	r.bucketBytes.Set(float64(n))
}

// ObservePhase records the duration of one engine phase in seconds.
func (r *DedupRecorder) ObservePhase(phase string, seconds float64) {
	if r == nil {
		return
	}
	r.phaseSeconds.WithLabelValues(phase).Observe(seconds)
}
