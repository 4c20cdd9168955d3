// Package metrics provides datastore metrics for observability
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DatastoreMetrics contains Prometheus metrics for ledger and query operations
type DatastoreMetrics struct {
	registry *prometheus.Registry

	dbOperationsTotal   *prometheus.CounterVec
	dbOperationDuration *prometheus.HistogramVec
	dbTransactionsTotal *prometheus.CounterVec
	purgedRowsTotal     *prometheus.CounterVec

	collectors []prometheus.Collector
}

// NewDatastoreMetrics creates and registers new datastore metrics
func NewDatastoreMetrics(registry *prometheus.Registry) (*DatastoreMetrics, error) {
	m := &DatastoreMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DatastoreMetrics) initMetrics() {
	m.dbOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	m.dbOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datastore_db_operation_duration_seconds",
			Help:    "Time taken for database operations",
			Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount15),
		},
		[]string{"operation"},
	)

	m.dbTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_db_transactions_total",
			Help: "Total number of ledger transactions",
		},
		[]string{"status"}, // committed, rollback
	)

	m.purgedRowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datastore_retention_purged_rows_total",
			Help: "Total number of rows removed by the retention janitor",
		},
		[]string{"table"},
	)

	m.collectors = []prometheus.Collector{
		m.dbOperationsTotal,
		m.dbOperationDuration,
		m.dbTransactionsTotal,
		m.purgedRowsTotal,
	}
}

// Describe implements the Collector interface
func (m *DatastoreMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DatastoreMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordDbOperation records a database operation outcome and its duration in seconds
func (m *DatastoreMetrics) RecordDbOperation(operation, status string, duration float64) {
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
	m.dbOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordTransaction records a ledger transaction outcome
func (m *DatastoreMetrics) RecordTransaction(status string) {
	m.dbTransactionsTotal.WithLabelValues(status).Inc()
}

// RecordPurged adds rows removed from table by retention
func (m *DatastoreMetrics) RecordPurged(table string, rows int64) {
	m.purgedRowsTotal.WithLabelValues(table).Add(float64(rows))
}
