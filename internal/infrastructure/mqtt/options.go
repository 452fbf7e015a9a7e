package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dsa110/dsa110-hwmc/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is in milliseconds, as paho expects.
	disconnectQuiesce = 500

	// keepAlive bounds how long a dead connection still looks online.
	keepAlive = 15 * time.Second

	maxQoS = 2
)

// Status values published on a client's status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// buildClientOptions maps the MQTT config section onto paho options.
// Reconnects back off from Reconnect.InitialDelay to Reconnect.MaxDelay
// seconds and messages are delivered to handlers in arrival order.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// The will is registered at connect time, so its timestamp is the
	// time of the last (re)connect rather than of the failure.
	opts.SetWill(Topics{}.Status(cfg.Broker.ClientID),
		string(statusMessage(cfg.Broker.ClientID, StatusOffline, "connection_lost")),
		byte(cfg.QoS), true)
	return opts
}

// statusPayload is the retained document on hwmc/status/<client_id>.
type statusPayload struct {
	Status   string    `json:"status"`
	ClientID string    `json:"client_id"`
	Reason   string    `json:"reason,omitempty"`
	Since    time.Time `json:"since"`
}

func statusMessage(clientID, status, reason string) []byte {
	data, err := json.Marshal(statusPayload{
		Status:   status,
		ClientID: clientID,
		Reason:   reason,
		Since:    time.Now().UTC(),
	})
	if err != nil {
		return []byte(`{"status":"` + status + `"}`)
	}
	return data
}
