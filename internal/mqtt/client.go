// client.go: paho based implementation of the MQTT Client interface.
package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/tphakala/occupancy-go/internal/errors"
	"github.com/tphakala/occupancy-go/internal/logger"
	"github.com/tphakala/occupancy-go/internal/observability/metrics"
	"golang.org/x/time/rate"
)

const (
	statusOnline  = "online"
	statusOffline = "offline"
)

// client implements the Client interface.
type client struct {
	config         Config
	internalClient paho.Client
	metrics        *metrics.MQTTMetrics

	mu            sync.Mutex
	reconnecting  bool
	reconnectStop chan struct{}
	stopOnce      sync.Once

	queueMu    sync.RWMutex
	queue      chan Message
	queueOpen  bool
	dropWarn   *rate.Limiter
	dropsSince int
}

// NewClient creates a new MQTT client with the provided configuration.
func NewClient(config Config, m *metrics.MQTTMetrics) (Client, error) {
	if config.Broker == "" {
		return nil, errors.Newf("mqtt broker is not configured").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if _, err := url.Parse(config.Broker); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("broker", config.Broker).
			Build()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultConfig().QueueSize
	}

	c := &client{
		config:        config,
		metrics:       m,
		reconnectStop: make(chan struct{}),
		queue:         make(chan Message, config.QueueSize),
		queueOpen:     true,
		dropWarn:      rate.NewLimiter(rate.Every(10*time.Second), 1),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(true)
	// reconnects run on our own fixed interval
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	if config.StatusTopic != "" {
		opts.SetWill(config.StatusTopic, statusOffline, 1, true)
	}
	c.internalClient = paho.NewClient(opts)

	return c, nil
}

// Connect attempts to establish a connection to the MQTT broker, retrying
// every ReconnectInterval until it succeeds or ctx is done.
func (c *client) Connect(ctx context.Context) error {
	log := GetLogger()
	for {
		err := c.connectOnce(ctx)
		if err == nil {
			return nil
		}
		c.metrics.IncrementErrors()
		log.Warn("MQTT connection failed, retrying",
			logger.String("broker", c.config.Broker),
			logger.Duration("retry_in", c.config.ReconnectInterval),
			logger.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.reconnectStop:
			return errors.Newf("mqtt client stopped").Category(errors.CategoryMQTTConnection).Build()
		case <-time.After(c.config.ReconnectInterval):
			c.metrics.IncrementReconnectAttempts()
		}
	}
}

// connectOnce resolves the broker host and makes a single connection attempt.
func (c *client) connectOnce(ctx context.Context) error {
	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).Category(errors.CategoryConfiguration).Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Category(errors.CategoryMQTTConnection).
				Context("host", host).
				Build()
		}
	}

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("connection timeout after %v", c.config.ConnectTimeout).
			Category(errors.CategoryMQTTConnection).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Category(errors.CategoryMQTTConnection).
			Context("broker", c.config.Broker).
			Build()
	}
	return nil
}

// Messages returns the receive queue.
func (c *client) Messages() <-chan Message {
	return c.queue
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if !c.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	timer := c.metrics.StartPublishTimer()
	defer timer.ObserveDuration()

	token := c.internalClient.Publish(topic, qos, retain, payload)
	timeout := time.NewTimer(c.config.PublishTimeout)
	defer timeout.Stop()

	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout.C:
		c.metrics.IncrementErrors()
		return errors.Newf("publish timeout").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors()
		return errors.New(err).
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	c.metrics.IncrementMessagesDelivered()
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect stops reconnecting, closes the connection and the queue. Safe
// to call more than once.
func (c *client) Disconnect() {
	c.stopOnce.Do(func() {
		close(c.reconnectStop)

		if c.internalClient.IsConnected() {
			c.internalClient.Unsubscribe(c.config.Topic).WaitTimeout(c.config.DisconnectTimeout)
			if c.config.StatusTopic != "" {
				c.internalClient.Publish(c.config.StatusTopic, 1, true, statusOffline).WaitTimeout(c.config.DisconnectTimeout)
			}
			c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		}
		c.metrics.UpdateConnectionStatus(false)

		c.queueMu.Lock()
		c.queueOpen = false
		close(c.queue)
		c.queueMu.Unlock()
	})
}

// onConnect subscribes on every successful (re)connection. A failed
// subscribe is retried on the reconnect interval while the link is up.
func (c *client) onConnect(pc paho.Client) {
	log := GetLogger()
	log.Info("Connected to MQTT broker",
		logger.String("broker", c.config.Broker),
		logger.String("client_id", c.config.ClientID))
	c.metrics.UpdateConnectionStatus(true)

	if err := c.subscribe(pc); err != nil {
		go c.retrySubscribe(pc)
	}
}

// subscribe subscribes to the events topic and announces the client online.
func (c *client) subscribe(pc paho.Client) error {
	log := GetLogger()
	token := pc.Subscribe(c.config.Topic, 0, c.handleMessage)
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		c.metrics.IncrementErrors()
		log.Error("Timed out subscribing to events topic", logger.String("topic", c.config.Topic))
		return errors.Newf("subscribe timeout").
			Category(errors.CategoryMQTTConnection).
			Context("topic", c.config.Topic).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors()
		log.Error("Failed to subscribe to events topic",
			logger.String("topic", c.config.Topic),
			logger.Error(err))
		return err
	}
	log.Info("Subscribed to events topic", logger.String("topic", c.config.Topic))

	if c.config.StatusTopic != "" {
		pc.Publish(c.config.StatusTopic, 1, true, statusOnline)
	}
	return nil
}

// retrySubscribe keeps subscribing until it works, the link drops (the next
// onConnect subscribes again) or the client is stopped.
func (c *client) retrySubscribe(pc paho.Client) {
	for {
		select {
		case <-c.reconnectStop:
			return
		case <-time.After(c.config.ReconnectInterval):
		}
		if !pc.IsConnected() {
			return
		}
		if c.subscribe(pc) == nil {
			return
		}
	}
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	GetLogger().Warn("Connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()
	c.startReconnect()
}

// startReconnect runs a single background reconnect loop. The loop only
// exits once the link is up, so a drop right after reconnecting is not lost.
func (c *client) startReconnect() {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.mu.Unlock()

	go func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			select {
			case <-c.reconnectStop:
				cancel()
			case <-ctx.Done():
			}
		}()

		for {
			select {
			case <-time.After(c.config.ReconnectInterval):
			case <-ctx.Done():
				c.setReconnecting(false)
				return
			}
			c.metrics.IncrementReconnectAttempts()
			if err := c.Connect(ctx); err == nil {
				GetLogger().Info("Reconnected to MQTT broker", logger.String("broker", c.config.Broker))
			}

			// clear the flag under the same lock onConnectionLost checks, so a
			// drop after this point starts a new loop
			c.mu.Lock()
			if c.internalClient.IsConnected() || ctx.Err() != nil {
				c.reconnecting = false
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}()
}

func (c *client) setReconnecting(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnecting = v
}

// handleMessage copies the payload into the bounded queue. When the queue
// is full the message is dropped; the engine never blocks the paho router.
func (c *client) handleMessage(_ paho.Client, msg paho.Message) {
	payload := make([]byte, len(msg.Payload()))
	copy(payload, msg.Payload())
	c.metrics.RecordReceived(len(payload))

	c.queueMu.RLock()
	defer c.queueMu.RUnlock()
	if !c.queueOpen {
		return
	}

	select {
	case c.queue <- Message{Topic: msg.Topic(), Payload: payload, Received: time.Now()}:
		c.metrics.SetQueueDepth(len(c.queue))
	default:
		c.metrics.IncrementDropped()
		c.warnDropped(msg.Topic())
	}
}

func (c *client) warnDropped(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropsSince++
	if !c.dropWarn.Allow() {
		return
	}
	GetLogger().Warn("MQTT receive queue full, dropping messages",
		logger.String("topic", topic),
		logger.Int("queue_size", cap(c.queue)),
		logger.Int("dropped", c.dropsSince))
	c.dropsSince = 0
}
