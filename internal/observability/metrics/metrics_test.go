package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findMetric returns the gathered metric named name whose labels include want
func findMetric(t *testing.T, registry *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, metric := range family.GetMetric() {
			labels := make(map[string]string, len(metric.GetLabel()))
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return metric
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, want)
	return nil
}

func TestCountingMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewCountingMetrics(registry)
	require.NoError(t, err)

	m.RecordTransition("Lobby", "enter", 1)
	m.RecordTransition("Lobby", "enter", 2)
	m.RecordTransition("Lobby", "exit", 1)
	m.RecordAlert("Lobby", "exceeded")
	m.RecordDiscarded(DropLabel)
	m.SetTrackedObjects(4, 2)
	m.SetTrackedObjects(3, 0)

	enters := findMetric(t, registry, "counting_transitions_total", map[string]string{"area": "Lobby", "direction": "enter"})
	assert.InDelta(t, 2, enters.GetCounter().GetValue(), 0)

	occupancy := findMetric(t, registry, "counting_area_occupancy", map[string]string{"area": "Lobby"})
	assert.InDelta(t, 1, occupancy.GetGauge().GetValue(), 0)

	alerts := findMetric(t, registry, "counting_alerts_total", map[string]string{"type": "exceeded"})
	assert.InDelta(t, 1, alerts.GetCounter().GetValue(), 0)

	tracked := findMetric(t, registry, "counting_tracked_objects", nil)
	assert.InDelta(t, 3, tracked.GetGauge().GetValue(), 0)

	evictions := findMetric(t, registry, "counting_tracker_evictions_total", nil)
	assert.InDelta(t, 2, evictions.GetCounter().GetValue(), 0)
}

func TestMQTTMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewMQTTMetrics(registry)
	require.NoError(t, err)

	m.UpdateConnectionStatus(true)
	m.RecordReceived(512)
	m.IncrementDropped()
	m.SetQueueDepth(7)

	assert.InDelta(t, 1, findMetric(t, registry, "mqtt_connection_status", nil).GetGauge().GetValue(), 0)
	assert.InDelta(t, 1, findMetric(t, registry, "mqtt_messages_dropped_total", nil).GetCounter().GetValue(), 0)
	assert.InDelta(t, 7, findMetric(t, registry, "mqtt_queue_depth", nil).GetGauge().GetValue(), 0)
	assert.Equal(t, uint64(1), findMetric(t, registry, "mqtt_message_size_bytes", nil).GetHistogram().GetSampleCount())
}

func TestDatastoreMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewDatastoreMetrics(registry)
	require.NoError(t, err)

	m.RecordDbOperation(OpCommit, StatusSuccess, 0.002)
	m.RecordTransaction("committed")
	m.RecordPurged("counting_events", 150)

	ops := findMetric(t, registry, "datastore_db_operations_total", map[string]string{"operation": OpCommit})
	assert.InDelta(t, 1, ops.GetCounter().GetValue(), 0)

	purged := findMetric(t, registry, "datastore_retention_purged_rows_total", map[string]string{"table": "counting_events"})
	assert.InDelta(t, 150, purged.GetCounter().GetValue(), 0)
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewCountingMetrics(registry)
	require.NoError(t, err)

	_, err = NewCountingMetrics(registry)
	assert.Error(t, err)
}
