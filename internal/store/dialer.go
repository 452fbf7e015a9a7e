package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/mqtt"
)

// NewDialer returns the Dialer for the configured backend.
//
// Parameters:
//   - cfg: full configuration; Store selects the backend, MQTT configures
//     the broker for the mqtt backend
//   - logger: passed to backends for watch errors
//
// Returns:
//   - Dialer: etcdDialer, mqttDialer or a *Memory
//   - error: ErrUnknownBackend for an unsupported backend
func NewDialer(cfg *config.Config, logger Logger) (Dialer, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case config.StoreBackendEtcd:
		return &etcdDialer{
			endpoints: cfg.Store.Endpoints,
			timeout:   cfg.GetDialTimeout(),
			logger:    logger,
		}, nil
	case config.StoreBackendMQTT:
		return &mqttDialer{
			mqtt:       cfg.MQTT,
			prefix:     cfg.Store.TopicPrefix,
			getTimeout: time.Duration(cfg.Store.GetTimeout) * time.Second,
			logger:     logger,
		}, nil
	case config.StoreBackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Store.Backend)
	}
}

type etcdDialer struct {
	endpoints []string
	timeout   time.Duration
	logger    Logger
}

func (d *etcdDialer) Dial(ctx context.Context, name string) (Store, error) {
	s, err := DialEtcd(ctx, d.endpoints, d.timeout, d.logger)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", name, err)
	}
	return s, nil
}

type mqttDialer struct {
	mqtt       config.MQTTConfig
	prefix     string
	getTimeout time.Duration
	logger     Logger
}

func (d *mqttDialer) Dial(_ context.Context, name string) (Store, error) {
	cfg := d.mqtt
	cfg.Broker.ClientID = clientID(cfg.Broker.ClientID, name)

	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrUnavailable, name, err)
	}
	client.SetLogger(d.logger)
	return NewMQTT(client, d.prefix, byte(cfg.QoS), d.getTimeout), nil
}

// clientID derives a unique broker client ID for one connection.
func clientID(base, name string) string {
	if base == "" {
		base = "hwmc"
	}
	return fmt.Sprintf("%s-%s-%s", base, name, uuid.NewString()[:8])
}
