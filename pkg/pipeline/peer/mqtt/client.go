package mqtt

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Client wraps a paho client with blocking token handling and logging.
type Client struct {
	opts    *mqtt.ClientOptions
	client  mqtt.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewClient creates a new MQTT client with the given options and logger.
func NewClient(opts *mqtt.ClientOptions, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		opts:    opts,
		logger:  logger,
		timeout: opts.ConnectTimeout,
	}
}

// Connect establishes a connection to the MQTT broker.
func (c *Client) Connect() error {
	c.client = mqtt.NewClient(c.opts)
	if err := c.wait(c.client.Connect()); err != nil {
		return fmt.Errorf("broker connection error: %w", err)
	}
	return nil
}

// Publish sends a message to the specified MQTT topic.
func (c *Client) Publish(topic string, qos byte, retained bool, payload any) error {
	if err := c.wait(c.client.Publish(topic, qos, retained, payload)); err != nil {
		c.logger.Error("publish error", zap.Error(err), zap.String("topic", topic))
		return err
	}
	c.logger.Debug("message published", zap.String("topic", topic))
	return nil
}

// Subscribe registers a callback for messages on the specified MQTT topic.
func (c *Client) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) error {
	if err := c.wait(c.client.Subscribe(topic, qos, callback)); err != nil {
		c.logger.Error("subscribe error", zap.Error(err), zap.String("topic", topic))
		return fmt.Errorf("subscribe error: %w", err)
	}
	c.logger.Debug("subscribed to topic", zap.String("topic", topic))
	return nil
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(topic string) error {
	return c.wait(c.client.Unsubscribe(topic))
}

// Disconnect closes the connection to the MQTT broker.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
	c.logger.Info("disconnected from MQTT broker")
}

func (c *Client) wait(token mqtt.Token) error {
	if c.timeout > 0 {
		if !token.WaitTimeout(c.timeout) {
			return fmt.Errorf("timed out after %s", c.timeout)
		}
	} else {
		token.Wait()
	}
	return token.Error()
}
