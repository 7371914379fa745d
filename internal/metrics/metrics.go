package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a dedup process
type Metrics struct {
	RecordsIn       prometheus.Counter
	RecordsDropped  prometheus.Counter
	SanitizedFields *prometheus.CounterVec
	CandidatePairs  *prometheus.CounterVec
	MatchedPairs    *prometheus.CounterVec
	Clusters        prometheus.Gauge
	RunDuration     prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RecordsIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedup_records_in_total",
			Help: "Total number of raw intake records submitted for deduplication",
		}),
		RecordsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "dedup_records_dropped_total",
			Help: "Records removed because their patient_id was ambiguous",
		}),
		SanitizedFields: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dedup_sanitized_fields_total",
			Help: "Field values rewritten or nulled by each sanitizer stage",
		}, []string{"stage"}),
		CandidatePairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dedup_candidate_pairs_total",
			Help: "Candidate pairs generated by blocking, per pass",
		}, []string{"pass"}),
		MatchedPairs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dedup_matched_pairs_total",
			Help: "Candidate pairs classified as matches, per pass",
		}, []string{"pass"}),
		Clusters: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dedup_clusters",
			Help: "Number of clusters produced by the last run",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dedup_run_duration_seconds",
			Help:    "Wall time of a complete dedup run",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
	}
}

// The observe helpers accept a nil receiver so callers can run without metrics.

// ObserveInput records the size of a submitted batch
func (m *Metrics) ObserveInput(n int) {
	if m == nil {
		return
	}
	m.RecordsIn.Add(float64(n))
}

// ObserveDropped records records removed for ambiguous ids
func (m *Metrics) ObserveDropped(n int) {
	if m == nil {
		return
	}
	m.RecordsDropped.Add(float64(n))
}

// ObserveStage records how many fields a sanitizer stage changed
func (m *Metrics) ObserveStage(stage string, changed int) {
	if m == nil {
		return
	}
	m.SanitizedFields.WithLabelValues(stage).Add(float64(changed))
}

// ObservePass records the candidate and matched pair counts of one pass
func (m *Metrics) ObservePass(pass string, candidates, matched int) {
	if m == nil {
		return
	}
	m.CandidatePairs.WithLabelValues(pass).Add(float64(candidates))
	m.MatchedPairs.WithLabelValues(pass).Add(float64(matched))
}

// ObserveRun records the cluster count and duration of a finished run
func (m *Metrics) ObserveRun(clusters int, took time.Duration) {
	if m == nil {
		return
	}
	m.Clusters.Set(float64(clusters))
	m.RunDuration.Observe(took.Seconds())
}
