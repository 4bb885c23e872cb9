package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"spider-home/internal/application"
	"spider-home/internal/domain"
)

const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 250 // milliseconds
	maxQoS                   = 2
)

var (
	ErrConnectionFailed = errors.New("mqtt connection failed")
	ErrPublishFailed    = errors.New("mqtt publish failed")
	ErrInvalidQoS       = errors.New("mqtt qos must be 0, 1 or 2")
)

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         int
}

// publisher is the subset of pahomqtt.Client the sink needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
}

// Sink publishes each device's state as a retained JSON message on
// {prefix}/{kind}/{id}/state.
type Sink struct {
	client publisher
	closer func()
	prefix string
	qos    byte
	logger *slog.Logger
}

func Connect(cfg Config, logger *slog.Logger) (*Sink, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
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
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	})

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	logger.Info("connected to mqtt broker", "broker", cfg.Broker)

	sink := NewSink(client, cfg.TopicPrefix, byte(cfg.QoS), logger)
	sink.closer = func() { client.Disconnect(defaultDisconnectQuiesce) }
	return sink, nil
}

func NewSink(client publisher, prefix string, qos byte, logger *slog.Logger) *Sink {
	return &Sink{client: client, prefix: prefix, qos: qos, logger: logger}
}

func (s *Sink) Name() string { return "mqtt" }

func (s *Sink) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func (s *Sink) Write(ctx context.Context, snap application.Snapshot) error {
	var errs []error
	for _, devices := range [][]domain.Device{snap.Thermostats, snap.PowerPlugs} {
		for i := range devices {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.publishDevice(&devices[i], snap.Time); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// StateTopic returns the topic a device's state is published on.
func (s *Sink) StateTopic(d *domain.Device) string {
	return fmt.Sprintf("%s/%s/%s/state", s.prefix, d.Kind(), d.ID)
}

func (s *Sink) publishDevice(d *domain.Device, at time.Time) error {
	payload, err := json.Marshal(newState(d, at))
	if err != nil {
		return fmt.Errorf("encoding state of %s: %w", d.ID, err)
	}

	topic := s.StateTopic(d)
	token := s.client.Publish(topic, s.qos, true, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
