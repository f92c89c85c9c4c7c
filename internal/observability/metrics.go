package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "traffic_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for ingestion
// and dashboard queries.
type Metrics struct {
	FilesRead      prometheus.Counter
	FileErrors     prometheus.Counter
	RowsRead       prometheus.Counter
	RowsDropped    *prometheus.CounterVec // labels: reason={date,coordinates}
	RecordsLoaded  prometheus.Gauge
	IngestDuration prometheus.Histogram

	// Table cache metrics.
	CacheLookups *prometheus.CounterVec // labels: result={hit,miss}

	QueryDuration prometheus.Histogram

	// Publishing metrics.
	RecordsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		FilesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_read_total",
			Help:      "Total source files parsed successfully.",
		}),
		FileErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_errors_total",
			Help:      "Total source files skipped because they could not be parsed.",
		}),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "Total data rows read from source files.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows excluded from the unified table by reason.",
		}, []string{"reason"}),
		RecordsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_loaded",
			Help:      "Number of records in the most recently built table.",
		}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Duration of a full read and normalize pass over the source files.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Table cache lookups by result.",
		}, []string{"result"}),
		QueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of a filter and aggregate pass.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Total normalized records written to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total failed attempts to publish a table.",
		}),
	}

	prometheus.MustRegister(
		m.FilesRead,
		m.FileErrors,
		m.RowsRead,
		m.RowsDropped,
		m.RecordsLoaded,
		m.IngestDuration,
		m.CacheLookups,
		m.QueryDuration,
		m.RecordsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		FilesRead:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "files_read_total"}),
		FileErrors:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "file_errors_total"}),
		RowsRead:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rows_read_total"}),
		RowsDropped:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "rows_dropped_total"}, []string{"reason"}),
		RecordsLoaded:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "records_loaded"}),
		IngestDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "ingest_duration_seconds"}),
		CacheLookups:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "cache_lookups_total"}, []string{"result"}),
		QueryDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "query_duration_seconds"}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "records_published_total"}),
		PublishErrors:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "publish_errors_total"}),
	}
}
