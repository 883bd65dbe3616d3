package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/stomp-sql-gateway/internal/events"
)

// maxPayloadSize caps a single message at 1MB.
const maxPayloadSize = 1 << 20

// PublishStatement sends ev as JSON on Topics{}.Statement() and waits for
// the broker to acknowledge it at the configured QoS.
//
// It returns ErrNotConnected without touching the network while the broker
// is unreachable, and ErrPublishFailed for timeouts and broker errors.
func (c *Client) PublishStatement(ev events.StatementEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encoding statement event: %w", ErrPublishFailed, err)
	}
	return c.publish(Topics{}.Statement(), payload)
}

func (c *Client) publish(topic string, payload []byte) error {
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.paho.Publish(topic, c.qos, false, payload), defaultPublishTimeout, ErrPublishFailed)
}
