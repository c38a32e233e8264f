// Package notify publishes save-state transitions to an MQTT broker so
// dashboards can show whether the current day is saved.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roach88/rollcall/internal/engine"
)

// Defaults for broker interaction.
const (
	DefaultTopicPrefix    = "rollcall"
	DefaultConnectTimeout = 5 * time.Second
	DefaultPublishTimeout = 2 * time.Second
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt not connected")

// Config configures the publisher.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool {
	return c.Broker != ""
}

// Message is the JSON payload published for each transition.
type Message struct {
	Date  string    `json:"date"`
	From  string    `json:"from"`
	To    string    `json:"to"`
	At    time.Time `json:"at"`
	Class string    `json:"class,omitempty"`
}

// Stats counts publish outcomes.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Publisher sends transitions to MQTT.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	class  string
	logger *slog.Logger

	mu        sync.RWMutex
	published map[string]uint64
	errors    uint64
}

// New wraps an existing MQTT client.
func New(client mqtt.Client, cfg Config, class string, logger *slog.Logger) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		cfg:       cfg,
		class:     class,
		logger:    logger,
		published: make(map[string]uint64),
	}
}

// Connect dials the broker named in cfg and returns a publisher using it.
func Connect(cfg Config, class string, logger *slog.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, errors.New("mqtt broker not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}
	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("mqtt connection established", "broker", broker, "client_id", cfg.ClientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost, will auto-reconnect", "broker", broker, "error", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(DefaultConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return New(client, cfg, class, logger), nil
}

// Topic returns the state topic for date.
func (p *Publisher) Topic(date string) string {
	return fmt.Sprintf("%s/%s/state", p.cfg.TopicPrefix, date)
}

// Publish sends one transition. The message is retained so late
// subscribers see the current state.
func (p *Publisher) Publish(t engine.Transition) error {
	if !p.client.IsConnected() {
		p.fail()
		return ErrNotConnected
	}

	payload, err := json.Marshal(Message{
		Date:  t.Date,
		From:  string(t.From),
		To:    string(t.To),
		At:    t.At.UTC(),
		Class: p.class,
	})
	if err != nil {
		p.fail()
		return fmt.Errorf("encode transition: %w", err)
	}

	topic := p.Topic(t.Date)
	token := p.client.Publish(topic, p.cfg.QoS, true, payload)
	if !token.WaitTimeout(DefaultPublishTimeout) {
		p.fail()
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		p.fail()
		return fmt.Errorf("publish %s: %w", topic, err)
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()

	p.logger.Debug("state published", "topic", topic, "to", t.To)
	return nil
}

// Run publishes every transition from ch until ctx is done or ch closes.
// Failures are logged and counted, never returned.
func (p *Publisher) Run(ctx context.Context, ch <-chan engine.Transition) {
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			if err := p.Publish(t); err != nil {
				p.logger.Warn("state publish failed", "date", t.Date, "to", t.To, "error", err)
			}
		}
	}
}

// Stats returns publish counters.
func (p *Publisher) Stats() Stats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return Stats{
		Connected: p.client.IsConnected(),
		Published: published,
		Errors:    p.errors,
	}
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}
}

func (p *Publisher) fail() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}
