package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
)

// Client announces the gateway's presence and forwards statement events.
//
// Presence is a retained document on Topics{}.Status(). It reads "online"
// after every (re)connect and "offline/graceful_shutdown" once Close runs;
// the broker substitutes "offline/unexpected_disconnect" from the Last Will
// if the gateway vanishes. Statement events go to Topics{}.Statement() and
// are never retained.
//
// All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte
	log      Logger

	// up is set by paho's connect callback and cleared on connection loss.
	up atomic.Bool
}

// Logger is the subset of logging.Logger used by the client.
type Logger interface {
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warn(string, ...any) {}

// Connect dials the broker described by cfg. A nil log discards warnings.
//
// It fails with ErrConnectionFailed if the first attempt does not succeed
// within the connect timeout; later outages are retried in the background.
func Connect(cfg config.MQTTConfig, log Logger) (*Client, error) {
	if log == nil {
		log = nopLogger{}
	}
	c := &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS),
		log:      log,
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.announceOnline() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.markLost(err) })

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// The connect callback may not have run yet.
	c.up.Store(true)
	return c, nil
}

// announceOnline runs on paho's goroutine after each successful connect, so
// it does not wait for the broker's acknowledgement.
func (c *Client) announceOnline() {
	c.up.Store(true)
	c.paho.Publish(Topics{}.Status(), c.qos, true, presenceOnline.payload(c.clientID))
}

func (c *Client) markLost(err error) {
	c.up.Store(false)
	c.log.Warn("mqtt connection lost, dropping statement events until reconnect", "error", err)
}

// Close replaces the retained status with a graceful offline notice and
// disconnects. It always returns nil.
func (c *Client) Close() error {
	if c == nil || c.paho == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.paho.Publish(Topics{}.Status(), c.qos, true, presenceShutdown.payload(c.clientID))
		if err := await(token, defaultPublishTimeout, ErrPublishFailed); err != nil {
			c.log.Warn("offline status not delivered", "error", err)
		}
	}

	c.up.Store(false)
	c.paho.Disconnect(defaultDisconnectQuiesce)
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// await waits up to timeout for token and reports failure as kind.
func await(token pahomqtt.Token, timeout time.Duration, kind error) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", kind, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return nil
}
