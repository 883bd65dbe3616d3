package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSink collects delivered events.
type recordingSink struct {
	mu     sync.Mutex
	events []StatementEvent
}

func (r *recordingSink) Name() string { return "recorder" }

func (r *recordingSink) HandleStatement(_ context.Context, ev StatementEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func runBus(t *testing.T, b *Bus) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, b.Run(ctx))
	}()
	return func() {
		stop()
		<-done
	}
}

func TestBus_DeliversToAllSinks(t *testing.T) {
	b := NewBus(8, nil)
	first, second := &recordingSink{}, &recordingSink{}
	b.Subscribe(first)
	b.Subscribe(second)

	stop := runBus(t, b)
	defer stop()

	require.True(t, b.Publish(StatementEvent{SessionID: "s1", Kind: "write", Verb: "INSERT", Success: true}))
	require.True(t, b.Publish(StatementEvent{SessionID: "s1", Kind: "read", Verb: "SELECT", Success: true}))

	assert.Eventually(t, func() bool { return first.count() == 2 && second.count() == 2 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(2), b.Published())
	assert.Equal(t, "INSERT", first.events[0].Verb)
}

func TestBus_DropsWhenFull(t *testing.T) {
	b := NewBus(2, nil)

	assert.True(t, b.Publish(StatementEvent{}))
	assert.True(t, b.Publish(StatementEvent{}))
	assert.False(t, b.Publish(StatementEvent{}))

	assert.Equal(t, uint64(2), b.Published())
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestBus_DrainsOnShutdown(t *testing.T) {
	b := NewBus(4, nil)
	sink := &recordingSink{}
	b.Subscribe(sink)

	for range 3 {
		require.True(t, b.Publish(StatementEvent{}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, b.Run(ctx))

	assert.Equal(t, 3, sink.count())
}

func TestBus_SinkFailuresAreIsolated(t *testing.T) {
	b := NewBus(4, nil)
	healthy := &recordingSink{}

	b.Subscribe(SinkFunc{ID: "panicky", Fn: func(context.Context, StatementEvent) error {
		panic("boom")
	}})
	b.Subscribe(SinkFunc{ID: "failing", Fn: func(context.Context, StatementEvent) error {
		return errors.New("broker unavailable")
	}})
	b.Subscribe(healthy)

	stop := runBus(t, b)
	defer stop()

	b.Publish(StatementEvent{Verb: "DELETE"})
	assert.Eventually(t, func() bool { return healthy.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestNewBus_DefaultBuffer(t *testing.T) {
	b := NewBus(0, nil)
	assert.Equal(t, DefaultBufferSize, cap(b.queue))
}

func TestSinkFunc(t *testing.T) {
	var got StatementEvent
	s := SinkFunc{ID: "fn", Fn: func(_ context.Context, ev StatementEvent) error {
		got = ev
		return nil
	}}

	assert.Equal(t, "fn", s.Name())
	require.NoError(t, s.HandleStatement(context.Background(), StatementEvent{Verb: "UPDATE"}))
	assert.Equal(t, "UPDATE", got.Verb)
}
