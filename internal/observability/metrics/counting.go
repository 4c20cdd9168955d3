package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// CountingMetrics covers the transition engine: message outcomes,
// accepted transitions, alerts and per-area occupancy.
type CountingMetrics struct {
	registry *prometheus.Registry

	messagesProcessed  prometheus.Counter
	messagesDiscarded  *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	rejectedTotal      *prometheus.CounterVec
	alertsTotal        *prometheus.CounterVec
	occupancy          *prometheus.GaugeVec
	trackedObjects     prometheus.Gauge
	evictionsTotal     prometheus.Counter
	processingDuration prometheus.Histogram

	collectors []prometheus.Collector
}

// NewCountingMetrics creates and registers the engine metrics.
func NewCountingMetrics(registry *prometheus.Registry) (*CountingMetrics, error) {
	m := &CountingMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register counting metrics: %w", err)
	}
	return m, nil
}

func (m *CountingMetrics) initMetrics() {
	m.messagesProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counting_messages_processed_total",
		Help: "Total number of event messages that reached the tracking cache",
	})
	m.messagesDiscarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counting_messages_discarded_total",
		Help: "Total number of event messages discarded before tracking",
	}, []string{"reason"})
	m.transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counting_transitions_total",
		Help: "Total number of committed transitions",
	}, []string{"area", "direction"})
	m.rejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counting_transitions_rejected_total",
		Help: "Total number of transition candidates that were not committed",
	}, []string{"reason"})
	m.alertsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "counting_alerts_total",
		Help: "Total number of capacity alerts emitted",
	}, []string{"area", "type"})
	m.occupancy = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "counting_area_occupancy",
		Help: "Current occupancy per area",
	}, []string{"area"})
	m.trackedObjects = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "counting_tracked_objects",
		Help: "Number of objects in the tracking cache",
	})
	m.evictionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "counting_tracker_evictions_total",
		Help: "Total number of tracked objects evicted for inactivity",
	})
	m.processingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "counting_message_processing_seconds",
		Help:    "Time spent handling one event message",
		Buckets: prometheus.ExponentialBuckets(BucketStart1ms, BucketFactor2, BucketCount10),
	})

	m.collectors = []prometheus.Collector{
		m.messagesProcessed,
		m.messagesDiscarded,
		m.transitionsTotal,
		m.rejectedTotal,
		m.alertsTotal,
		m.occupancy,
		m.trackedObjects,
		m.evictionsTotal,
		m.processingDuration,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *CountingMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *CountingMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// RecordProcessed counts a message handled by the engine.
func (m *CountingMetrics) RecordProcessed(seconds float64) {
	m.messagesProcessed.Inc()
	m.processingDuration.Observe(seconds)
}

// RecordDiscarded counts a message dropped before tracking.
func (m *CountingMetrics) RecordDiscarded(reason string) {
	m.messagesDiscarded.WithLabelValues(reason).Inc()
}

// RecordTransition counts a committed transition and updates the area gauge.
func (m *CountingMetrics) RecordTransition(area, direction string, occupancy int) {
	m.transitionsTotal.WithLabelValues(area, direction).Inc()
	m.occupancy.WithLabelValues(area).Set(float64(occupancy))
}

// RecordRejected counts a candidate that was not committed.
func (m *CountingMetrics) RecordRejected(reason string) {
	m.rejectedTotal.WithLabelValues(reason).Inc()
}

// RecordAlert counts an emitted alert.
func (m *CountingMetrics) RecordAlert(area, alertType string) {
	m.alertsTotal.WithLabelValues(area, alertType).Inc()
}

// SetOccupancy sets the occupancy gauge for an area.
func (m *CountingMetrics) SetOccupancy(area string, occupancy int) {
	m.occupancy.WithLabelValues(area).Set(float64(occupancy))
}

// SetTrackedObjects reports the tracking cache size and adds evictions.
func (m *CountingMetrics) SetTrackedObjects(size, evicted int) {
	m.trackedObjects.Set(float64(size))
	if evicted > 0 {
		m.evictionsTotal.Add(float64(evicted))
	}
}
