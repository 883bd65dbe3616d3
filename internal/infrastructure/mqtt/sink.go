package mqtt

import (
	"context"

	"github.com/nerrad567/stomp-sql-gateway/internal/events"
)

// EventSink publishes statement events as JSON on Topics{}.Statement().
type EventSink struct {
	client *Client
}

// NewEventSink returns a bus sink backed by client.
func NewEventSink(client *Client) *EventSink {
	return &EventSink{client: client}
}

// Name implements events.Sink.
func (s *EventSink) Name() string { return "mqtt" }

// HandleStatement implements events.Sink. Events are skipped, not queued,
// while the broker is unreachable.
func (s *EventSink) HandleStatement(ctx context.Context, ev events.StatementEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.client.IsConnected() {
		return nil
	}
	return s.client.PublishStatement(ev)
}
