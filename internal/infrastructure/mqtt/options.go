package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds.
	defaultDisconnectQuiesce = 1000

	// willQoS is fixed so the crash notice is delivered even with qos 0.
	willQoS = 1
)

// buildClientOptions maps the mqtt config section onto paho options: clean
// session, background reconnect between the configured delays, TLS 1.2+
// when enabled, and the unexpected-disconnect Last Will.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive).
		SetWill(Topics{}.Status(), presenceLost.payload(cfg.Broker.ClientID), willQoS, true)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// presence is one state of the retained gateway status.
type presence struct {
	status string
	reason string
}

var (
	presenceOnline   = presence{status: "online"}
	presenceShutdown = presence{status: "offline", reason: "graceful_shutdown"}
	presenceLost     = presence{status: "offline", reason: "unexpected_disconnect"}
)

// statusPayload is the JSON document published on Topics{}.Status().
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (p presence) payload(clientID string) string {
	b, err := json.Marshal(statusPayload{
		Status:    p.status,
		ClientID:  clientID,
		Reason:    p.reason,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Sprintf(`{"status":%q}`, p.status)
	}
	return string(b)
}
