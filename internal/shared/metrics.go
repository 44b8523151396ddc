package shared

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric names exported by the storage engine
const (
	MetricOperations      = "lsmstore_operations_total"
	MetricOperationErrors = "lsmstore_operation_errors_total"
	MetricOperationTime   = "lsmstore_operation_duration_seconds"
	MetricFlushes         = "lsmstore_flushes_total"
	MetricFlushTime       = "lsmstore_flush_duration_seconds"
	MetricMemTableKeys    = "lsmstore_memtable_keys"
	MetricPendingFlushes  = "lsmstore_pending_flushes"
	MetricTables          = "lsmstore_tables"
	MetricWALBytes        = "lsmstore_wal_bytes"
)

// StorageMetrics holds the Prometheus collectors of one engine
type StorageMetrics struct {
	operations      *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	flushes         *prometheus.CounterVec
	flushTime       prometheus.Histogram
	memTableKeys    prometheus.Gauge
	pendingFlushes  prometheus.Gauge
	tables          prometheus.Gauge
	walBytes        prometheus.Gauge
}

// NewStorageMetrics creates the engine collectors and registers them with reg
func NewStorageMetrics(reg prometheus.Registerer) *StorageMetrics {
	factory := promauto.With(reg)

	return &StorageMetrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOperations,
				Help: "Total number of storage operations",
			},
			[]string{"operation"},
		),
		operationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricOperationErrors,
				Help: "Total number of failed storage operations",
			},
			[]string{"operation", "error_type"},
		),
		operationTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricOperationTime,
				Help:    "Duration of storage operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		flushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFlushes,
				Help: "Total number of memtable flushes",
			},
			[]string{"result"},
		),
		flushTime: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricFlushTime,
				Help:    "Duration of memtable flushes in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		memTableKeys: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricMemTableKeys,
				Help: "Number of keys in the active memtable",
			},
		),
		pendingFlushes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricPendingFlushes,
				Help: "Number of frozen memtables waiting to be flushed",
			},
		),
		tables: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricTables,
				Help: "Number of table files written by this process",
			},
		),
		walBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricWALBytes,
				Help: "Size of the write-ahead log in bytes",
			},
		),
	}
}

// RecordOperation records the outcome of a storage operation
func (m *StorageMetrics) RecordOperation(operation string, duration time.Duration, errType string) {
	m.operations.WithLabelValues(operation).Inc()
	m.operationTime.WithLabelValues(operation).Observe(duration.Seconds())
	if errType != "" {
		m.operationErrors.WithLabelValues(operation, errType).Inc()
	}
}

// RecordFlush records a finished flush attempt
func (m *StorageMetrics) RecordFlush(duration time.Duration, err error) {
	m.flushTime.Observe(duration.Seconds())
	if err != nil {
		m.flushes.WithLabelValues("failure").Inc()
		return
	}
	m.flushes.WithLabelValues("success").Inc()
}

// UpdateEngineState updates the engine gauges
func (m *StorageMetrics) UpdateEngineState(memTableKeys, pendingFlushes, tables int, walBytes int64) {
	m.memTableKeys.Set(float64(memTableKeys))
	m.pendingFlushes.Set(float64(pendingFlushes))
	m.tables.Set(float64(tables))
	m.walBytes.Set(float64(walBytes))
}
