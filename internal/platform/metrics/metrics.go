// Package metrics provides the prometheus collectors for a warehouse build.
// A build is a batch process, so metrics are written to a node-exporter
// textfile at the end of the run instead of being scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all build metrics on a private registry
// A nil *Metrics is valid and records nothing
type Metrics struct {
	RecordsRead     *prometheus.CounterVec
	RecordsRejected *prometheus.CounterVec
	UnmappedColumns *prometheus.CounterVec
	DriftEvents     *prometheus.CounterVec
	Conflicts       *prometheus.CounterVec
	RowsWritten     *prometheus.CounterVec

	PartitionsTotal  *prometheus.CounterVec
	PartitionRetries prometheus.Counter

	PartitionDuration *prometheus.HistogramVec
	BuildDuration     prometheus.Gauge
	Employers         prometheus.Gauge
	LastSuccess       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a metrics set registered on its own registry
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.RecordsRead = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "records_read_total",
		Help:      "Raw records read from source extracts",
	}, []string{"domain"})

	m.RecordsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "records_rejected_total",
		Help:      "Records quarantined by reason code",
	}, []string{"domain", "reason"})

	m.UnmappedColumns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "unmapped_columns_total",
		Help:      "Source columns with no logical mapping",
	}, []string{"domain"})

	m.DriftEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "schema_drift_total",
		Help:      "Extracts rejected for missing required fields",
	}, []string{"domain"})

	m.Conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "pk_conflicts_total",
		Help:      "Records that lost primary key precedence",
	}, []string{"table"})

	m.RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "rows_written_total",
		Help:      "Rows promoted into table partitions",
	}, []string{"table"})

	m.PartitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "partitions_total",
		Help:      "Partitions attempted by outcome",
	}, []string{"table", "outcome"})

	m.PartitionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "visawh",
		Name:      "partition_retries_total",
		Help:      "Partition write retries after a retryable error",
	})

	m.PartitionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "visawh",
		Name:      "partition_write_seconds",
		Help:      "Partition stage, write and promote duration",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"table"})

	m.BuildDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "visawh",
		Name:      "build_duration_seconds",
		Help:      "Wall time of the last build",
	})

	m.Employers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "visawh",
		Name:      "employers",
		Help:      "Employer dimension size after the last build",
	})

	m.LastSuccess = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "visawh",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last promoted build version",
	})

	m.registry.MustRegister(
		m.RecordsRead, m.RecordsRejected, m.UnmappedColumns, m.DriftEvents,
		m.Conflicts, m.RowsWritten, m.PartitionsTotal, m.PartitionRetries,
		m.PartitionDuration, m.BuildDuration, m.Employers, m.LastSuccess,
	)
	return m
}

// Registry exposes the gatherer for tests and textfile output
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// AddRead counts raw records for a domain
func (m *Metrics) AddRead(domain string, n int) {
	if m != nil && n > 0 {
		m.RecordsRead.WithLabelValues(domain).Add(float64(n))
	}
}

// IncReject counts one quarantined record
func (m *Metrics) IncReject(domain, reason string) {
	if m != nil {
		m.RecordsRejected.WithLabelValues(domain, reason).Inc()
	}
}

// AddUnmapped counts unmapped columns seen in an extract
func (m *Metrics) AddUnmapped(domain string, n int) {
	if m != nil && n > 0 {
		m.UnmappedColumns.WithLabelValues(domain).Add(float64(n))
	}
}

// IncDrift counts one extract rejected for schema drift
func (m *Metrics) IncDrift(domain string) {
	if m != nil {
		m.DriftEvents.WithLabelValues(domain).Inc()
	}
}

// AddConflicts counts losing rows for a table
func (m *Metrics) AddConflicts(table string, n int) {
	if m != nil && n > 0 {
		m.Conflicts.WithLabelValues(table).Add(float64(n))
	}
}

// ObservePartition records one partition outcome ("ok" or "error"), its rows and duration
func (m *Metrics) ObservePartition(table, outcome string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.PartitionsTotal.WithLabelValues(table, outcome).Inc()
	m.PartitionDuration.WithLabelValues(table).Observe(d.Seconds())
	if outcome == "ok" && rows > 0 {
		m.RowsWritten.WithLabelValues(table).Add(float64(rows))
	}
}

// IncRetry counts one partition retry
func (m *Metrics) IncRetry() {
	if m != nil {
		m.PartitionRetries.Inc()
	}
}

// SetEmployers records the employer dimension size
func (m *Metrics) SetEmployers(n int) {
	if m != nil {
		m.Employers.Set(float64(n))
	}
}

// FinishBuild records wall time and, when promoted, the success timestamp
func (m *Metrics) FinishBuild(d time.Duration, promoted bool, at time.Time) {
	if m == nil {
		return
	}
	m.BuildDuration.Set(d.Seconds())
	if promoted {
		m.LastSuccess.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the registry in text exposition format, atomically
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
