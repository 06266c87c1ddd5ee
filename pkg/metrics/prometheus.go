package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsIngested      *prometheus.CounterVec
	normalizationErrors *prometheus.CounterVec
	mergeAnomalies      *prometheus.CounterVec
	batchesDropped      *prometheus.CounterVec
	snapshotsPublished  prometheus.Counter
	applyLatency        prometheus.Histogram
	sourceUp            *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedeck_events_ingested_total",
				Help: "Total canonical events produced by the normalizer",
			},
			[]string{"source", "kind"},
		),
		normalizationErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedeck_normalization_errors_total",
				Help: "Total malformed payloads or records dropped during normalization",
			},
			[]string{"source"},
		),
		mergeAnomalies: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedeck_merge_anomalies_total",
				Help: "Total events the state store refused to merge",
			},
			[]string{"kind"},
		),
		batchesDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedeck_batches_dropped_total",
				Help: "Total coalesced batches trimmed because the apply queue was full",
			},
			[]string{"source"},
		),
		snapshotsPublished: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradedeck_snapshots_published_total",
				Help: "Total snapshots committed and published",
			},
		),
		applyLatency: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradedeck_apply_duration_seconds",
				Help:    "Duration of one apply-and-publish cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		sourceUp: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tradedeck_source_up",
				Help: "Whether a source is currently delivering (1) or failing (0)",
			},
			[]string{"source"},
		),
	}
}

func (r *Recorder) RecordEventsIngested(source, kind string, n int) {
	r.eventsIngested.WithLabelValues(source, kind).Add(float64(n))
}

func (r *Recorder) RecordNormalizationError(source string) {
	r.normalizationErrors.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordMergeAnomaly(kind string) {
	r.mergeAnomalies.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordBatchDropped(source string) {
	r.batchesDropped.WithLabelValues(source).Inc()
}

func (r *Recorder) RecordSnapshotPublished() {
	r.snapshotsPublished.Inc()
}

func (r *Recorder) RecordApplyLatency(seconds float64) {
	r.applyLatency.Observe(seconds)
}

func (r *Recorder) RecordSourceUp(source string, up bool) {
	v := 0.0
	if up {
		v = 1.0
	}
	r.sourceUp.WithLabelValues(source).Set(v)
}
