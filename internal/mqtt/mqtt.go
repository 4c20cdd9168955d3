// mqtt.go: Package mqtt provides the NVR event subscriber and the occupancy publishers.
package mqtt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/logger"
)

// Message is one payload received from the broker.
type Message struct {
	Topic    string
	Payload  []byte
	Received time.Time
}

// Subscriber delivers event messages through a bounded channel.
type Subscriber interface {
	// Connect connects to the broker and subscribes to the events topic,
	// retrying on the reconnect interval until it succeeds or ctx ends.
	Connect(ctx context.Context) error

	// Messages returns the receive queue. It is closed by Disconnect.
	Messages() <-chan Message

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect unsubscribes, closes the connection and the queue.
	Disconnect()
}

// Publisher sends payloads to the broker.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error
	IsConnected() bool
}

// Client is a subscriber that can also publish on the same connection.
type Client interface {
	Subscriber
	Publisher
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // events topic to subscribe to
	StatusTopic       string // optional retained online/offline topic, offline is the last will
	QueueSize         int
	ReconnectInterval time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:             EventsTopic("frigate"),
		QueueSize:         256,
		ReconnectInterval: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds the client config from application settings.
func ConfigFromSettings(settings *conf.Settings) Config {
	s := settings.Realtime.MQTT
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = clientID(settings.Main.Name)
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Topic = EventsTopic(s.TopicPrefix)
	if s.QueueSize > 0 {
		cfg.QueueSize = s.QueueSize
	}
	if s.ReconnectInterval > 0 {
		cfg.ReconnectInterval = s.ReconnectInterval
	}
	if s.ConnectTimeout > 0 {
		cfg.ConnectTimeout = s.ConnectTimeout
	}
	if s.Publish.Enabled {
		cfg.StatusTopic = strings.TrimSuffix(s.Publish.Prefix, "/") + "/status"
	}
	return cfg
}

// EventsTopic returns the tracked-object events topic under prefix.
func EventsTopic(prefix string) string {
	return strings.TrimSuffix(prefix, "/") + "/events"
}

// clientID appends a short random suffix so two instances never collide on
// the broker.
func clientID(name string) string {
	if name == "" {
		name = "occupancy-go"
	}
	return fmt.Sprintf("%s-%s", name, uuid.NewString()[:8])
}

// GetLogger returns the mqtt module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}
