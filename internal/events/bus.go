package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/logging"
)

// DefaultBufferSize is the queue depth used when NewBus is given zero.
const DefaultBufferSize = 256

// sinkTimeout bounds a single sink delivery.
const sinkTimeout = 5 * time.Second

// StatementEvent describes one executed command. It never carries the
// statement text and result payload, which may contain credentials.
type StatementEvent struct {
	SessionID  string        `json:"session_id"`
	RemoteAddr string        `json:"remote_addr"`
	Kind       string        `json:"kind"`
	Verb       string        `json:"verb"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	At         time.Time     `json:"at"`
}

// Sink receives statement events from the bus.
type Sink interface {
	// Name identifies the sink in logs.
	Name() string
	// HandleStatement delivers one event. Errors are logged and otherwise
	// ignored.
	HandleStatement(ctx context.Context, ev StatementEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	ID string
	Fn func(ctx context.Context, ev StatementEvent) error
}

// Name implements Sink.
func (s SinkFunc) Name() string { return s.ID }

// HandleStatement implements Sink.
func (s SinkFunc) HandleStatement(ctx context.Context, ev StatementEvent) error {
	return s.Fn(ctx, ev)
}

// Bus fans statement events out to sinks on a single background goroutine.
//
// Publish never blocks: when the queue is full the event is dropped and
// counted. Connection handlers therefore cannot be slowed down by a stalled
// broker or database.
//
// Thread Safety:
//   - Publish, Subscribe, Dropped and Published are safe for concurrent use.
//   - Run must be called once.
type Bus struct {
	queue  chan StatementEvent
	logger *logging.Logger

	mu    sync.RWMutex
	sinks []Sink

	published atomic.Uint64
	dropped   atomic.Uint64
}

// NewBus creates a bus with the given queue depth.
func NewBus(bufferSize int, logger *logging.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Bus{
		queue:  make(chan StatementEvent, bufferSize),
		logger: logger.Component("events"),
	}
}

// Subscribe adds a sink. Sinks added after Run has started receive only
// events dequeued after the call.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish queues ev for delivery. It returns false when the queue is full
// and the event was dropped.
func (b *Bus) Publish(ev StatementEvent) bool {
	select {
	case b.queue <- ev:
		b.published.Add(1)
		return true
	default:
		b.dropped.Add(1)
		return false
	}
}

// Published returns the number of events accepted by Publish.
func (b *Bus) Published() uint64 { return b.published.Load() }

// Dropped returns the number of events rejected because the queue was full.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Run delivers queued events until ctx is cancelled, then drains what is
// left in the queue and returns nil.
func (b *Bus) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			b.drain()
			return nil
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		}
	}
}

// drain delivers events still queued at shutdown with a detached context.
func (b *Bus) drain() {
	ctx := context.Background()
	for {
		select {
		case ev := <-b.queue:
			b.dispatch(ctx, ev)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(ctx context.Context, ev StatementEvent) {
	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()

	for _, s := range sinks {
		b.deliver(ctx, s, ev)
	}
}

// deliver calls one sink, isolating the bus from its panics and errors.
func (b *Bus) deliver(ctx context.Context, s Sink, ev StatementEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("sink panic", "sink", s.Name(), "panic", fmt.Sprint(r))
		}
	}()

	sinkCtx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	if err := s.HandleStatement(sinkCtx, ev); err != nil {
		b.logger.Warn("sink delivery failed", "sink", s.Name(), "error", err)
	}
}
