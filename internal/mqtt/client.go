package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/quillon/gpiobridge/internal/config"
)

// MessageHandler is called for each MQTT message received on the
// command subscription. Messages are delivered one at a time, in
// arrival order.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// inboundMessage is one received publish queued for the dispatch
// goroutine.
type inboundMessage struct {
	ctx     context.Context
	topic   string
	payload []byte
}

// Client manages the MQTT connection, announces the device on every
// (re-)connect, and routes inbound commands to the registered handler.
type Client struct {
	cfg        config.MQTTConfig
	instanceID string
	device     DeviceInfo
	logger     *slog.Logger

	mu        sync.Mutex
	handler   MessageHandler
	onConnect func(ctx context.Context)
	cm        *autopaho.ConnectionManager

	// inbound feeds the single dispatch goroutine. One queue, one
	// consumer: commands are handled in the order the broker delivered
	// them, which MQTT guarantees per connection.
	inbound chan inboundMessage
}

// New creates a Client but does not connect. Call [Client.Start] to
// begin the connection process.
func New(cfg config.MQTTConfig, instanceID string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:        cfg,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, cfg.ClientID),
		logger:     logger,
		inbound:    make(chan inboundMessage, 64),
	}
	go c.dispatchLoop()
	return c
}

// SetMessageHandler registers the handler for inbound command messages.
// Must be called before Start.
func (c *Client) SetMessageHandler(h MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// SetOnConnect registers a callback invoked after every successful
// (re-)connect, once discovery, availability, and the command
// subscription are in place. Must be called before Start.
func (c *Client) SetOnConnect(f func(ctx context.Context)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = f
}

// Start initiates the broker connection. autopaho retries failed
// connection attempts indefinitely at the configured interval, so a
// broker outage at boot is not fatal; the device simply comes up once
// the broker does. Start returns once the connection manager is
// running; use [Client.AwaitConnection] to wait for the first
// successful connect.
func (c *Client) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(c.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := c.availabilityTopic()

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:        []*url.URL{brokerURL},
		KeepAlive:         c.cfg.KeepAliveSec,
		ConnectRetryDelay: time.Duration(c.cfg.ConnectRetrySec) * time.Second,
		ConnectUsername:   c.cfg.Username,
		ConnectPassword:   []byte(c.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			c.logger.Info("mqtt connected to broker", "broker", c.cfg.Broker)

			// Publish the connection handle before anything downstream
			// runs: the on-connect callback publishes through this
			// client and must observe a started connection even when
			// the broker connects before Start's own store lands.
			c.mu.Lock()
			c.cm = cm
			onConnect := c.onConnect
			c.mu.Unlock()

			c.publishDiscovery(ctx, cm)
			c.publishAvailability(ctx, cm, "online")
			c.subscribeCommands(ctx, cm)

			if onConnect != nil {
				onConnect(ctx)
			}
		},
		OnConnectError: func(err error) {
			c.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					c.routeMessage(ctx, pr.Packet)
					return true, nil
				},
			},
		},
	}

	// Enable TLS for mqtts:// or ssl:// schemes.
	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mu.Lock()
	c.cm = cm
	c.mu.Unlock()
	return nil
}

// manager returns the connection manager handle, or nil before Start.
func (c *Client) manager() *autopaho.ConnectionManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cm
}

// AwaitConnection blocks until the broker connection is established or
// ctx expires.
func (c *Client) AwaitConnection(ctx context.Context) error {
	cm := c.manager()
	if cm == nil {
		return fmt.Errorf("mqtt client not started")
	}
	return cm.AwaitConnection(ctx)
}

// Unsubscribe drops the command subscription so no further commands
// arrive. Called at the start of shutdown, before the device parks its
// outputs and publishes final statuses. A no-op before Start.
func (c *Client) Unsubscribe(ctx context.Context) error {
	cm := c.manager()
	if cm == nil {
		return nil
	}

	filter := c.commandFilter()
	if _, err := cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}}); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", filter, err)
	}
	c.logger.Info("mqtt unsubscribed", "filter", filter)
	return nil
}

// Stop gracefully disconnects: publishes an "offline" availability
// message and closes the connection. Call [Client.Unsubscribe] first so
// no command races the shutdown. The provided context bounds the whole
// sequence.
func (c *Client) Stop(ctx context.Context) error {
	cm := c.manager()
	if cm == nil {
		return nil
	}

	c.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// PublishStatus publishes a retained status message at QoS 0. Status
// topics tolerate loss: the periodic check re-detects an unreported
// change on the next tick.
func (c *Client) PublishStatus(ctx context.Context, topic, payload string) error {
	cm := c.manager()
	if cm == nil {
		return fmt.Errorf("mqtt client not started")
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: []byte(payload),
		QoS:     0,
		Retain:  true,
	})
	if err != nil {
		return fmt.Errorf("publish status to %s: %w", topic, err)
	}
	return nil
}

// PublishCommand publishes a non-retained command at QoS 1, used to
// drive a peer device's command topic.
func (c *Client) PublishCommand(ctx context.Context, topic, payload string) error {
	cm := c.manager()
	if cm == nil {
		return fmt.Errorf("mqtt client not started")
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: []byte(payload),
		QoS:     1,
		Retain:  false,
	})
	if err != nil {
		return fmt.Errorf("publish command to %s: %w", topic, err)
	}
	return nil
}

// --- Topic helpers ---

func (c *Client) availabilityTopic() string {
	return c.cfg.ClientID + "/availability"
}

func (c *Client) commandFilter() string {
	return c.cfg.ClientID + "/command/#"
}

// --- Connection-up plumbing ---

func (c *Client) subscribeCommands(ctx context.Context, cm *autopaho.ConnectionManager) {
	filter := c.commandFilter()
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: filter, QoS: 1},
		},
	}); err != nil {
		c.logger.Error("mqtt subscribe failed", "filter", filter, "error", err)
		return
	}
	c.logger.Info("mqtt subscribed", "filter", filter)
}

func (c *Client) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   c.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		c.logger.Warn("mqtt availability publish failed",
			"status", status, "error", err)
	} else {
		c.logger.Info("mqtt availability published", "status", status)
	}
}

// routeMessage copies the payload and queues the message for the
// dispatch goroutine. The buffered channel keeps the paho router from
// blocking on hardware reads or on publishes issued from the handler,
// while the single consumer preserves the broker's delivery order: two
// back-to-back commands are always handled in the order they arrived.
func (c *Client) routeMessage(ctx context.Context, pkt *paho.Publish) {
	payload := make([]byte, len(pkt.Payload))
	copy(payload, pkt.Payload)

	c.logger.Log(ctx, config.LevelTrace, "mqtt message received",
		"topic", pkt.Topic, "payload_size", len(payload))

	c.inbound <- inboundMessage{ctx: ctx, topic: pkt.Topic, payload: payload}
}

// dispatchLoop runs for the lifetime of the client, draining inbound
// messages one at a time into the registered handler.
func (c *Client) dispatchLoop() {
	for m := range c.inbound {
		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()

		if handler == nil {
			c.logger.Debug("mqtt message dropped, no handler registered",
				"topic", m.topic)
			continue
		}
		handler(m.ctx, m.topic, m.payload)
	}
}
