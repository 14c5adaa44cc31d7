// Package mqtt publishes readings to an MQTT broker with Home
// Assistant discovery.
package mqtt

import (
	"crypto/tls"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Config holds MQTT client configuration.
type Config struct {
	Broker   string // broker address (e.g. "tcp://localhost:1883")
	ClientID string // unique client ID
	Username string // optional
	Password string // optional
	Prefix   string // topic prefix for all state messages
	UseTLS   bool
}

// Client wraps the paho client with topic prefixing and connection
// state tracking.
type Client struct {
	client   mqtt.Client
	config   Config
	mu       sync.RWMutex
	logger   *log.Logger
	isActive bool
}

// New creates a new MQTT client. It does not connect.
func New(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = fmt.Sprintf("thermod-%d", time.Now().Unix())
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "thermod"
	}

	c := &Client{
		config: cfg,
		logger: logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	if cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: false})
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		if c.logger != nil {
			c.logger.Printf("[mqtt] Connection lost: %v", err)
		}
	})
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if c.logger != nil {
			c.logger.Printf("[mqtt] Connected to broker: %s", cfg.Broker)
		}
	})

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes the broker connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isActive {
		return nil
	}

	token := c.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	c.isActive = true
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isActive {
		return
	}

	c.client.Disconnect(250)
	c.isActive = false
}

// Publish sends a message under the configured prefix with QoS 0.
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.publish(c.buildTopic(topic), 0, false, payload)
}

// PublishRetained sends a retained message under the configured prefix
// with QoS 1, used for availability.
func (c *Client) PublishRetained(topic string, payload interface{}) error {
	return c.publish(c.buildTopic(topic), 1, true, payload)
}

// PublishRaw sends a retained message on an absolute topic, used for
// discovery configs outside the prefix.
func (c *Client) PublishRaw(topic string, payload interface{}) error {
	return c.publish(topic, 1, true, payload)
}

func (c *Client) publish(topic string, qos byte, retained bool, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.isActive {
		return fmt.Errorf("MQTT client is not connected")
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}
	return nil
}

func (c *Client) buildTopic(topic string) string {
	return c.config.Prefix + "/" + topic
}

// IsConnected reports whether the client is connected to the broker.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isActive && c.client.IsConnected()
}

// Prefix returns the configured topic prefix.
func (c *Client) Prefix() string {
	return c.config.Prefix
}
