package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/agrostack/cosecha/internal/config"
)

// Client wraps the paho connection with the small surface the workers use:
// channel-backed subscriptions and JSON publishing. Subscriptions are
// replayed on every reconnect since the broker session is not persistent.
type Client struct {
	client paho.Client
	qos    byte
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]paho.MessageHandler
}

// NewClient connects to the broker. The component name keeps concurrent
// workers distinguishable in broker logs; a random suffix avoids client-id
// collisions across restarts.
func NewClient(cfg config.MQTTConfig, component string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		qos:    byte(cfg.QoS),
		logger: logger,
		subs:   make(map[string]paho.MessageHandler),
	}

	clientID := fmt.Sprintf("%s-%s-%s", cfg.ClientIDPrefix, component, uuid.NewString()[:8])
	opts := paho.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(pc paho.Client) {
		logger.Info("mqtt connected", "broker", cfg.BrokerURL, "client_id", clientID)
		c.resubscribe(pc)
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = paho.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", cfg.BrokerURL, token.Error())
	}
	return c, nil
}

// Subscribe delivers raw payloads for topic on a buffered channel with one
// expected consumer. When the consumer falls behind, messages are dropped
// with a warning rather than stalling the broker connection.
func (c *Client) Subscribe(topic string, buffer int) (<-chan []byte, error) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan []byte, buffer)
	handler := func(_ paho.Client, msg paho.Message) {
		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())
		select {
		case ch <- payload:
		default:
			c.logger.Warn("subscriber backlog full, dropping message", "topic", msg.Topic())
		}
	}

	c.mu.Lock()
	c.subs[topic] = handler
	c.mu.Unlock()

	if token := c.client.Subscribe(topic, c.qos, handler); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("subscribe %s: %w", topic, token.Error())
	}
	c.logger.Info("subscribed", "topic", topic)
	return ch, nil
}

func (c *Client) resubscribe(pc paho.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for topic, handler := range c.subs {
		if token := pc.Subscribe(topic, c.qos, handler); token.Wait() && token.Error() != nil {
			c.logger.Error("resubscribe failed", "topic", topic, "error", token.Error())
		}
	}
}

// PublishJSON marshals v and publishes it, honouring context cancellation
// while the broker acknowledges.
func (c *Client) PublishJSON(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal payload for %s: %w", topic, err)
	}
	token := c.client.Publish(topic, c.qos, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish to %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports broker connectivity for health checks.
func (c *Client) Connected() bool {
	return c.client.IsConnected()
}

// Close flushes in-flight work and disconnects.
func (c *Client) Close() {
	c.client.Disconnect(250)
	c.logger.Info("mqtt disconnected")
}
