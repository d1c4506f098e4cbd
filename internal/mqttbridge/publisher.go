// Package mqttbridge mirrors LED commands onto an MQTT topic.
package mqttbridge

import (
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"sensor-dashboard/internal/data"
)

var ErrPublishTimeout = errors.New("mqtt publish timed out")

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	QoS            byte
	Retained       bool
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// publishClient is the subset of mqtt.Client the publisher needs.
type publishClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher implements actuator.Sink.
type Publisher struct {
	client publishClient
	cfg    Config
	logger *zap.Logger
}

// Connect dials the broker and returns a ready publisher.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	if cfg.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.ConnectTimeout)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	p := newPublisher(client, cfg, logger)
	p.logger.Info("MQTT mirror connected", zap.String("broker", cfg.Broker), zap.String("topic", cfg.Topic))
	return p, nil
}

func newPublisher(client publishClient, cfg Config, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &Publisher{client: client, cfg: cfg, logger: logger}
}

// Send publishes the command using the same JSON frame the board receives.
func (p *Publisher) Send(cmd data.LEDCommand) error {
	payload, err := data.EncodeLEDCommand(cmd)
	if err != nil {
		return err
	}
	token := p.client.Publish(p.cfg.Topic, p.cfg.QoS, p.cfg.Retained, payload)
	if !token.WaitTimeout(p.cfg.PublishTimeout) {
		return fmt.Errorf("%w: topic %s", ErrPublishTimeout, p.cfg.Topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", p.cfg.Topic, err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
