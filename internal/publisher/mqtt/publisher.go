// Package mqtt implements a publisher backed by an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/JakeFAU/solar-plant-monitor/internal/publisher"
)

const defaultConnectTimeout = 10 * time.Second

// Config captures broker connection parameters.
type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
}

// Publisher publishes JSON payloads to MQTT topics.
type Publisher struct {
	client paho.Client
	qos    byte
}

var _ publisher.Publisher = (*Publisher)(nil)

// New connects to the broker described by cfg.
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("broker is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect: timed out after %s", timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return NewWithClient(client, cfg.QoS), nil
}

// NewWithClient wraps an already configured client.
func NewWithClient(client paho.Client, qos byte) *Publisher {
	return &Publisher{client: client, qos: qos}
}

// Publish marshals payload to JSON and publishes it to topic. MQTT assigns no
// message IDs visible to publishers, so the returned ID is empty.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	token := p.client.Publish(topic, p.qos, false, data)
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}
	return "", nil
}

// Close disconnects from the broker, allowing in-flight work 250ms to finish.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
