package gateway

import (
	"sync/atomic"

	"github.com/nerrad567/stomp-sql-gateway/internal/executor"
)

// Stats holds the gateway counters. The zero value is ready to use.
type Stats struct {
	accepted atomic.Uint64
	active   atomic.Int64
	closed   atomic.Uint64
	reads    atomic.Uint64
	writes   atomic.Uint64
	failures atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	ConnectionsAccepted uint64 `json:"connections_accepted"`
	ConnectionsActive   int64  `json:"connections_active"`
	ConnectionsClosed   uint64 `json:"connections_closed"`
	Reads               uint64 `json:"reads"`
	Writes              uint64 `json:"writes"`
	Failures            uint64 `json:"failures"`
	EventsDropped       uint64 `json:"events_dropped"`
}

func (s *Stats) connOpened() {
	s.accepted.Add(1)
	s.active.Add(1)
}

func (s *Stats) connClosed() {
	s.active.Add(-1)
	s.closed.Add(1)
}

// record counts one executed command.
func (s *Stats) record(kind executor.Kind, ok bool) {
	if kind == executor.KindRead {
		s.reads.Add(1)
	} else {
		s.writes.Add(1)
	}
	if !ok {
		s.failures.Add(1)
	}
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		ConnectionsAccepted: s.accepted.Load(),
		ConnectionsActive:   s.active.Load(),
		ConnectionsClosed:   s.closed.Load(),
		Reads:               s.reads.Load(),
		Writes:              s.writes.Load(),
		Failures:            s.failures.Load(),
	}
}
