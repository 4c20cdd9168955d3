// discovery.go: Home Assistant MQTT auto-discovery of area sensors.
// See: https://www.home-assistant.io/integrations/mqtt/#mqtt-discovery
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tphakala/occupancy-go/internal/datastore"
	"github.com/tphakala/occupancy-go/internal/logger"
)

// Sensor type constants to avoid magic strings
const (
	SensorOccupancy = "occupancy"
	SensorIn        = "in"
	SensorOut       = "out"
)

// deviceIDPrefix is the standard prefix for all device identifiers
const deviceIDPrefix = "occupancy_go"

// AllSensorTypes lists all sensor types for iteration (e.g., during removal)
var AllSensorTypes = []string{SensorOccupancy, SensorIn, SensorOut}

// idSanitizer replaces invalid characters in IDs with underscores.
// Home Assistant requires IDs to contain only [a-zA-Z0-9_-].
var idSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID ensures the ID contains only valid characters for MQTT topics and HA entity IDs.
func SanitizeID(id string) string {
	sanitized := idSanitizer.ReplaceAllString(id, "_")
	for strings.Contains(sanitized, "__") {
		sanitized = strings.ReplaceAll(sanitized, "__", "_")
	}
	sanitized = strings.Trim(sanitized, "_")
	if sanitized == "" {
		sanitized = "unknown"
	}
	return sanitized
}

// DiscoveryPayload represents a Home Assistant MQTT discovery message.
type DiscoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	StateTopic        string          `json:"state_topic"`
	ValueTemplate     string          `json:"value_template,omitempty"`
	UnitOfMeasurement string          `json:"unit_of_measurement,omitempty"`
	StateClass        string          `json:"state_class,omitempty"`
	Icon              string          `json:"icon,omitempty"`
	AvailabilityTopic string          `json:"availability_topic,omitempty"`
	Device            DiscoveryDevice `json:"device"`
}

// DiscoveryDevice represents the device information in a discovery payload.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// DiscoveryConfig holds configuration for generating discovery payloads.
type DiscoveryConfig struct {
	DiscoveryPrefix   string // Home Assistant discovery topic prefix (default: homeassistant)
	DeviceName        string // Base name for devices
	NodeID            string // Node identifier (typically main.name from config)
	Version           string // Software version
	AvailabilityTopic string // optional online/offline topic
}

// DiscoveryPublisher handles publishing Home Assistant discovery messages.
type DiscoveryPublisher struct {
	client    Publisher
	occupancy *OccupancyPublisher
	config    DiscoveryConfig
}

// NewDiscoveryPublisher creates a new discovery publisher. State topics are
// taken from the occupancy publisher so both always agree.
func NewDiscoveryPublisher(client Publisher, occupancy *OccupancyPublisher, config *DiscoveryConfig) *DiscoveryPublisher {
	return &DiscoveryPublisher{
		client:    client,
		occupancy: occupancy,
		config:    *config,
	}
}

// PublishDiscovery publishes discovery configs for all areas. A failing area
// does not stop the others; the first error is returned.
func (p *DiscoveryPublisher) PublishDiscovery(ctx context.Context, areas []datastore.Area) error {
	log := GetLogger()
	log.Info("Publishing Home Assistant discovery messages",
		logger.Int("area_count", len(areas)),
		logger.String("discovery_prefix", p.config.DiscoveryPrefix))

	var firstErr error
	for i := range areas {
		if err := p.publishAreaDiscovery(ctx, &areas[i]); err != nil {
			log.Error("Failed to publish area discovery",
				logger.Int("area_id", int(areas[i].ID)),
				logger.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		return fmt.Errorf("failed to publish discovery for one or more areas: %w", firstErr)
	}
	return nil
}

// publishAreaDiscovery publishes the occupancy, in and out sensors of an area.
func (p *DiscoveryPublisher) publishAreaDiscovery(ctx context.Context, area *datastore.Area) error {
	nodeID := SanitizeID(p.config.NodeID)
	areaKey := p.areaKey(area)
	deviceID := fmt.Sprintf("%s_%s_%s", deviceIDPrefix, nodeID, areaKey)

	device := DiscoveryDevice{
		Identifiers:  []string{deviceID},
		Name:         fmt.Sprintf("%s %s", p.config.DeviceName, area.Name),
		Manufacturer: "occupancy-go",
		Model:        "Area " + string(area.Kind),
		SWVersion:    p.config.Version,
	}
	stateTopic := p.occupancy.TotalsTopic(area.ID)

	sensors := []struct {
		sensorType string
		payload    DiscoveryPayload
	}{
		{SensorOccupancy, DiscoveryPayload{
			Name:          "Occupancy",
			ValueTemplate: "{{ value_json.occupancy }}",
			StateClass:    "measurement",
			Icon:          "mdi:account-group",
		}},
		{SensorIn, DiscoveryPayload{
			Name:          "Entries",
			ValueTemplate: "{{ value_json.in }}",
			StateClass:    "total_increasing",
			Icon:          "mdi:login",
		}},
		{SensorOut, DiscoveryPayload{
			Name:          "Exits",
			ValueTemplate: "{{ value_json.out }}",
			StateClass:    "total_increasing",
			Icon:          "mdi:logout",
		}},
	}

	for _, s := range sensors {
		payload := s.payload
		payload.UniqueID = deviceID + "_" + s.sensorType
		payload.StateTopic = stateTopic
		payload.AvailabilityTopic = p.config.AvailabilityTopic
		payload.Device = device
		if err := p.publishPayload(ctx, p.getSensorTopic(nodeID, areaKey, s.sensorType), &payload); err != nil {
			return err
		}
	}
	return nil
}

// publishPayload marshals and publishes a discovery payload.
func (p *DiscoveryPublisher) publishPayload(ctx context.Context, topic string, payload *DiscoveryPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery payload: %w", err)
	}

	GetLogger().Debug("Publishing discovery message",
		logger.String("topic", topic),
		logger.Int("payload_size", len(data)))

	// Discovery messages must be retained
	return p.client.Publish(ctx, topic, data, 1, true)
}

// getSensorTopic constructs the MQTT discovery topic for a specific sensor.
func (p *DiscoveryPublisher) getSensorTopic(nodeID, areaKey, sensorType string) string {
	objectID := fmt.Sprintf("%s_%s_%s", nodeID, areaKey, sensorType)
	return fmt.Sprintf("%s/sensor/%s/%s/config", p.config.DiscoveryPrefix, nodeID, objectID)
}

func (p *DiscoveryPublisher) areaKey(area *datastore.Area) string {
	return fmt.Sprintf("area_%d", area.ID)
}

// RemoveDiscovery publishes empty payloads to remove all discovery entries.
func (p *DiscoveryPublisher) RemoveDiscovery(ctx context.Context, areas []datastore.Area) error {
	log := GetLogger()
	log.Info("Removing Home Assistant discovery messages")

	nodeID := SanitizeID(p.config.NodeID)
	for i := range areas {
		areaKey := p.areaKey(&areas[i])
		for _, sensorType := range AllSensorTypes {
			topic := p.getSensorTopic(nodeID, areaKey, sensorType)
			if err := p.client.Publish(ctx, topic, nil, 1, true); err != nil {
				log.Warn("Failed to remove sensor discovery",
					logger.String("topic", topic),
					logger.Error(err))
			}
		}
	}
	return nil
}
