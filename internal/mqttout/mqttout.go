// Package mqttout publishes heading updates to an MQTT broker as retained
// JSON messages.
package mqttout

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

type Config struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
	// Timeout bounds connect and publish waits. Zero means 5s.
	Timeout time.Duration
	Logger  *zap.SugaredLogger
}

// Message is the JSON payload.
type Message struct {
	HeadingDeg int       `json:"heading_deg"`
	Precise    float64   `json:"heading_precise"`
	RawX       int16     `json:"raw_x"`
	RawY       int16     `json:"raw_y"`
	RawZ       int16     `json:"raw_z"`
	Overflow   bool      `json:"overflow,omitempty"`
	Time       time.Time `json:"time"`
}

type client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

var newClientFn = func(opts *mqtt.ClientOptions) client {
	return mqtt.NewClient(opts)
}

type Publisher struct {
	c       client
	topic   string
	qos     byte
	timeout time.Duration
	log     *zap.SugaredLogger
}

// Connect dials the broker. The client keeps reconnecting on its own, so a
// broker that is down at startup only delays the first messages.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqttout: broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqttout: topic is required")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqttout: qos %d out of range", cfg.QoS)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnw("mqtt connection lost", "error", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infow("mqtt connected", "broker", cfg.Broker)
		})

	c := newClientFn(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		log.Warnw("mqtt broker not reachable yet, retrying in background", "broker", cfg.Broker)
	} else if err := tok.Error(); err != nil {
		c.Disconnect(0)
		return nil, fmt.Errorf("mqttout: connect %s: %w", cfg.Broker, err)
	}
	return &Publisher{c: c, topic: cfg.Topic, qos: cfg.QoS, timeout: cfg.Timeout, log: log}, nil
}

func (p *Publisher) Topic() string { return p.topic }

func (p *Publisher) Publish(m Message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	tok := p.c.Publish(p.topic, p.qos, true, b)
	if !tok.WaitTimeout(p.timeout) {
		return fmt.Errorf("mqttout: publish to %s timed out", p.topic)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqttout: publish to %s: %w", p.topic, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	p.c.Disconnect(250)
	return nil
}
