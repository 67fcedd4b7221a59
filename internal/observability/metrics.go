package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/saviobatista/movement-logger/internal/parser"
)

const namespace = "movement_logger"

// Metrics holds the Prometheus collectors for parsing and persistence.
type Metrics struct {
	UploadsParsed  prometheus.Counter
	LinesAccepted  prometheus.Counter
	LinesSkipped   prometheus.Counter
	FieldMisses    *prometheus.CounterVec // labels: field
	LineFailures   prometheus.Counter
	ParseDuration  prometheus.Histogram
	RecordsSaved   prometheus.Counter
	UploadsDeleted prometheus.Counter
	RawLogsEmitted prometheus.Counter
	CacheLookups   *prometheus.CounterVec // labels: cache={preview,summary}, result={hit,miss}

	collectors []prometheus.Collector
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	m := &Metrics{
		UploadsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_parsed_total",
			Help: help("Parser runs over movement logs. Previews served from cache are not counted."),
		}),
		LinesAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_accepted_total",
			Help: help("Lines that produced a record."),
		}),
		LinesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "lines_skipped_total",
			Help: help("Non-blank lines dropped as too short or header lines."),
		}),
		FieldMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "field_misses_total",
			Help: help("Fields left at their sentinel value, by field."),
		}, []string{"field"}),
		LineFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "line_failures_total",
			Help: help("Lines that hit an unexpected failure during extraction."),
		}),
		ParseDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "parse_duration_seconds",
			Help:    help("Duration of one parsing run."),
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		RecordsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "records_saved_total",
			Help: help("Flight records written to the database."),
		}),
		UploadsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "uploads_deleted_total",
			Help: help("Uploads deleted by their owners."),
		}),
		RawLogsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "raw_logs_emitted_total",
			Help: help("Raw movement reports published by the ingestor."),
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_lookups_total",
			Help: help("Redis cache lookups by cache and result."),
		}, []string{"cache", "result"}),
	}
	m.collectors = []prometheus.Collector{
		m.UploadsParsed, m.LinesAccepted, m.LinesSkipped, m.FieldMisses, m.LineFailures,
		m.ParseDuration, m.RecordsSaved, m.UploadsDeleted, m.RawLogsEmitted, m.CacheLookups,
	}
	return m
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors...)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

// ObserveResult records the line and miss counts of one parsing run. Callers
// invoke it only when the parser actually ran, so cache hits show up in
// CacheLookups and nowhere else.
func (m *Metrics) ObserveResult(res *parser.Result, seconds float64) {
	m.UploadsParsed.Inc()
	m.ParseDuration.Observe(seconds)
	m.LinesAccepted.Add(float64(len(res.Records)))
	m.LinesSkipped.Add(float64(res.Skipped))
	for f, n := range res.MissCounts() {
		if n > 0 {
			m.FieldMisses.WithLabelValues(parser.Field(f).String()).Add(float64(n))
		}
	}
	m.LineFailures.Add(float64(res.Failures()))
}

// CacheResult counts one cache lookup
func (m *Metrics) CacheResult(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(cache, result).Inc()
}
