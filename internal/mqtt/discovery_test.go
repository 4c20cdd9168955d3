package mqtt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/datastore"
)

func TestSanitizeID(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"occupancy-go":  "occupancy-go",
		"front door #1": "front_door_1",
		"__a//b__":      "a_b",
		"!!!":           "unknown",
	}
	for input, want := range tests {
		assert.Equal(t, want, SanitizeID(input), input)
	}
}

func TestPublishDiscovery(t *testing.T) {
	t.Parallel()
	client := &recordingPublisher{connected: true}
	occupancy := NewOccupancyPublisher(client, conf.MQTTPublishSettings{Prefix: "occupancy/areas"})
	discovery := NewDiscoveryPublisher(client, occupancy, &DiscoveryConfig{
		DiscoveryPrefix:   "homeassistant",
		DeviceName:        "Occupancy",
		NodeID:            "main site",
		Version:           "1.0.0",
		AvailabilityTopic: "occupancy/areas/status",
	})

	areas := []datastore.Area{*testArea(), {ID: 4, Name: "Garage", Kind: datastore.KindVehicle}}
	require.NoError(t, discovery.PublishDiscovery(context.Background(), areas))

	sent := client.sent()
	require.Len(t, sent, 6)
	assert.Equal(t, "homeassistant/sensor/main_site/main_site_area_3_occupancy/config", sent[0].topic)
	assert.True(t, sent[0].retain)

	var payload DiscoveryPayload
	require.NoError(t, json.Unmarshal(sent[0].payload, &payload))
	assert.Equal(t, "occupancy/areas/3/totals", payload.StateTopic)
	assert.Equal(t, "{{ value_json.occupancy }}", payload.ValueTemplate)
	assert.Equal(t, "occupancy_go_main_site_area_3_occupancy", payload.UniqueID)
	assert.Equal(t, "Occupancy Lobby", payload.Device.Name)
	assert.Equal(t, "occupancy/areas/status", payload.AvailabilityTopic)

	require.NoError(t, discovery.RemoveDiscovery(context.Background(), areas[:1]))
	removals := client.sent()[6:]
	require.Len(t, removals, 3)
	assert.Empty(t, removals[0].payload)
}
