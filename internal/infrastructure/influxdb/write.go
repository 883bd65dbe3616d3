package influxdb

import (
	"context"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/stomp-sql-gateway/internal/events"
)

// Measurement names.
const (
	MeasurementStatements = "sql_statements"
	MeasurementGateway    = "gateway_stats"
)

// WriteStatement records one executed command.
//
// Tags are low-cardinality (kind, verb, success); the session ID is kept as
// a field so it does not explode series count.
func (c *Client) WriteStatement(ev events.StatementEvent) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	fields := map[string]any{
		"duration_ms": float64(ev.Duration) / float64(time.Millisecond),
		"session_id":  ev.SessionID,
	}
	if ev.Error != "" {
		fields["error"] = ev.Error
	}

	c.enqueue(write.NewPoint(
		MeasurementStatements,
		map[string]string{
			"kind":    ev.Kind,
			"verb":    ev.Verb,
			"success": boolTag(ev.Success),
		},
		fields,
		at,
	))
}

// WritePoint writes a custom point stamped with the current time.
//
//	client.WritePoint(influxdb.MeasurementGateway,
//	    map[string]string{"host": "127.0.0.1"},
//	    map[string]any{"connections_active": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.enqueue(write.NewPoint(measurement, tags, fields, time.Now()))
}

// EventSink adapts the client to events.Sink.
type EventSink struct {
	client *Client
}

// NewEventSink returns a bus sink backed by client.
func NewEventSink(client *Client) *EventSink {
	return &EventSink{client: client}
}

// Name implements events.Sink.
func (s *EventSink) Name() string { return "influxdb" }

// HandleStatement implements events.Sink. The write is queued, not awaited.
func (s *EventSink) HandleStatement(_ context.Context, ev events.StatementEvent) error {
	if !s.client.IsConnected() {
		return ErrNotConnected
	}
	s.client.WriteStatement(ev)
	return nil
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
