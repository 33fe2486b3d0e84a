// Package broker wraps the MQTT client used by every process that talks to
// the market's message broker: the plant's request intake and pollution
// publisher, the renewable provider, and the admin server's pollution
// subscriber.
package broker

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// QoS levels used on the market topics. Energy requests and pollution batches
// both ride on exactly-once delivery.
const (
	QoSAtLeastOnce  byte = 1
	QoSExactlyOnce  byte = 2
	connectTimeout       = 10 * time.Second
	publishTimeout       = 10 * time.Second
)

// Config holds broker connection settings.
type Config struct {
	URL           string
	ClientID      string
	ReconnectWait time.Duration
}

// Client wraps an MQTT connection with JSON publish/subscribe helpers and
// connection-state tracking.
type Client struct {
	conn mqtt.Client
	log  zerolog.Logger

	mu     sync.Mutex
	topics map[string]byte // subscribed topic -> qos, for duplicate checks and Close
}

// Connect dials the broker. Automatic reconnection is enabled. The session is
// clean and subscriptions made through Subscribe are not re-established after
// a reconnect.
func Connect(cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = time.Second
	}

	c := &Client{
		log:    log.With().Str("component", "broker").Str("client_id", cfg.ClientID).Logger(),
		topics: make(map[string]byte),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.URL).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second).
		SetConnectRetryInterval(cfg.ReconnectWait).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			c.log.Error().Err(err).Msg("broker connection lost, relying on automatic reconnect")
		}).
		SetOnConnectHandler(func(_ mqtt.Client) {
			c.log.Info().Str("url", cfg.URL).Msg("connected to broker")
		})

	conn := mqtt.NewClient(opts)
	tok := conn.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("timed out connecting to broker at %s", cfg.URL)
	}
	if err := tok.Error(); err != nil {
		return nil, errors.Wrapf(err, "connecting to broker at %s", cfg.URL)
	}

	c.conn = conn
	return c, nil
}

// Publish marshals v to JSON and publishes it at the given QoS, blocking until
// the broker acknowledges or the publish times out.
func (c *Client) Publish(topic string, qos byte, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshaling payload")
	}

	tok := c.conn.Publish(topic, qos, false, payload)
	if !tok.WaitTimeout(publishTimeout) {
		return errors.Errorf("timed out publishing to %s", topic)
	}
	if err := tok.Error(); err != nil {
		return errors.Wrapf(err, "publishing to %s", topic)
	}
	return nil
}

// Subscribe registers handler for topic at the given QoS. The handler runs on
// the paho callback goroutine and must hand work off rather than block.
func (c *Client) Subscribe(topic string, qos byte, handler func(payload []byte)) error {
	c.mu.Lock()
	if _, dup := c.topics[topic]; dup {
		c.mu.Unlock()
		return errors.Errorf("already subscribed to %s", topic)
	}
	c.topics[topic] = qos
	c.mu.Unlock()

	tok := c.conn.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Payload())
	})
	if !tok.WaitTimeout(connectTimeout) {
		return errors.Errorf("timed out subscribing to %s", topic)
	}
	if err := tok.Error(); err != nil {
		return errors.Wrapf(err, "subscribing to %s", topic)
	}

	c.log.Info().Str("topic", topic).Uint8("qos", qos).Msg("subscribed")
	return nil
}

// Unsubscribe drops a subscription made with Subscribe.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	delete(c.topics, topic)
	c.mu.Unlock()

	tok := c.conn.Unsubscribe(topic)
	tok.WaitTimeout(connectTimeout)
	return tok.Error()
}

// IsConnected reports the live connection state.
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Close unsubscribes everything and disconnects.
func (c *Client) Close() {
	c.mu.Lock()
	topics := make([]string, 0, len(c.topics))
	for t := range c.topics {
		topics = append(topics, t)
	}
	c.topics = make(map[string]byte)
	c.mu.Unlock()

	for _, t := range topics {
		tok := c.conn.Unsubscribe(t)
		tok.WaitTimeout(time.Second)
	}
	c.conn.Disconnect(250)
	c.log.Info().Msg("disconnected from broker")
}

// ClientID builds the per-process broker client identity.
func ClientID(role string, id int) string {
	return fmt.Sprintf("energymarket-%s-%d", role, id)
}
