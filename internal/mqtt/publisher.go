// Package mqtt publishes Ring dings to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"ringbridge/internal/monitor"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultQuiesce        = 250 // milliseconds
	defaultKeepAlive      = 60 * time.Second
	maxQoS                = 2

	// DefaultTopicPrefix is the first topic level of everything published
	DefaultTopicPrefix = "ring"
)

var (
	ErrNotConnected     = errors.New("mqtt: client not connected")
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrInvalidQoS       = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")
	ErrInvalidTopic     = errors.New("mqtt: invalid topic")
)

// Config describes the broker connection
type Config struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// pahoClient is the part of pahomqtt.Client the publisher uses
type pahoClient interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends ding events to the broker
type Publisher struct {
	client pahoClient
	cfg    Config
	logger *zap.Logger
}

// Connect dials the broker and announces the bridge as online. The broker
// publishes the offline status if the connection drops.
func Connect(cfg Config, logger *zap.Logger) (*Publisher, error) {
	cfg = withDefaults(cfg)
	if cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	opts.SetWill(StatusTopic(cfg.TopicPrefix), "offline", cfg.QoS, true)

	p := &Publisher{cfg: cfg, logger: logger.Named("mqtt")}
	opts.SetOnConnectHandler(func(c pahomqtt.Client) {
		p.logger.Info("Connected to MQTT broker", zap.String("broker", cfg.Broker))
		c.Publish(StatusTopic(cfg.TopicPrefix), cfg.QoS, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		p.logger.Warn("Lost MQTT connection", zap.Error(err))
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	p.client = client
	return p, nil
}

// NewPublisher wraps an existing client
func NewPublisher(client pahoClient, cfg Config, logger *zap.Logger) *Publisher {
	return &Publisher{
		client: client,
		cfg:    withDefaults(cfg),
		logger: logger.Named("mqtt"),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "ringbridge"
	}
	return cfg
}

// Name identifies the sink in logs
func (p *Publisher) Name() string {
	return "mqtt"
}

// Publish sends payload to topic with the configured QoS
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, retained bool) error {
	if !p.client.IsConnected() {
		return ErrNotConnected
	}

	timeout := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	token := p.client.Publish(topic, p.cfg.QoS, retained, payload)
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishDing publishes the event as JSON to <prefix>/<unique_id>/<kind>
func (p *Publisher) PublishDing(ctx context.Context, event monitor.DingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode ding: %w", err)
	}

	topic, err := DingTopic(p.cfg.TopicPrefix, string(event.UniqueID), event.Kind)
	if err != nil {
		return err
	}
	if err := p.Publish(ctx, topic, payload, false); err != nil {
		return err
	}

	p.logger.Debug("Published ding", zap.String("topic", topic))
	return nil
}

// Close announces the bridge as offline and disconnects
func (p *Publisher) Close() error {
	if p.client == nil {
		return nil
	}

	if p.client.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		defer cancel()
		if err := p.Publish(ctx, StatusTopic(p.cfg.TopicPrefix), []byte("offline"), true); err != nil {
			p.logger.Warn("Failed to publish offline status", zap.Error(err))
		}
	}

	p.client.Disconnect(defaultQuiesce)
	return nil
}

// DingTopic returns the topic for a ding of kind on a device. Both values
// must be single, non-empty topic levels without wildcards.
func DingTopic(prefix, uniqueID, kind string) (string, error) {
	if err := validateLevel(uniqueID); err != nil {
		return "", fmt.Errorf("%w: unique id %q %v", ErrInvalidTopic, uniqueID, err)
	}
	if err := validateLevel(kind); err != nil {
		return "", fmt.Errorf("%w: kind %q %v", ErrInvalidTopic, kind, err)
	}
	return fmt.Sprintf("%s/%s/%s", prefix, uniqueID, kind), nil
}

func validateLevel(level string) error {
	if level == "" {
		return errors.New("is empty")
	}
	if strings.ContainsAny(level, "+#/\x00") {
		return errors.New("contains a wildcard, separator or NUL")
	}
	return nil
}

// StatusTopic returns the retained online/offline topic of the bridge
func StatusTopic(prefix string) string {
	return prefix + "/bridge/status"
}

var _ monitor.Sink = (*Publisher)(nil)
