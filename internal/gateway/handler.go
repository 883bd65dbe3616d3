package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/stomp-sql-gateway/internal/events"
	"github.com/nerrad567/stomp-sql-gateway/internal/executor"
	"github.com/nerrad567/stomp-sql-gateway/internal/frame"
)

// handleConnection serves one client until it disconnects or an I/O error
// occurs. Nothing escapes this function: read and write failures end the
// loop, panics are recovered, and the socket is closed exactly once.
func (s *Server) handleConnection(conn *trackedConn) {
	defer s.wg.Done()

	sessionID := uuid.NewString()
	remote := conn.RemoteAddr().String()
	log := s.logger.Session(sessionID, remote)

	s.stats.connOpened()
	log.Info("client connected")

	defer func() {
		if r := recover(); r != nil {
			log.Error("connection handler panic", "panic", fmt.Sprint(r))
		}
		s.untrack(conn)
		if err := conn.close(); err != nil && !s.shuttingDown() {
			log.Debug("closing connection", "error", err)
		}
		s.stats.connClosed()
		log.Info("client disconnected")
	}()

	fr := frame.NewReader(conn, s.cfg.ReadChunkSize)
	for {
		command, err := fr.Next()
		if err != nil {
			switch {
			case errors.Is(err, frame.ErrEndOfStream):
				if n := fr.Buffered(); n > 0 {
					log.Debug("discarding unterminated command", "bytes", n)
				}
			case s.shuttingDown():
			default:
				log.Warn("read failed", "error", err)
			}
			return
		}

		start := time.Now()
		kind := executor.Classify(command)
		outcome := s.dispatch(kind, command)
		elapsed := time.Since(start)
		s.stats.record(kind, outcome.OK())

		if err := frame.Write(conn, outcome.Response()); err != nil {
			if !s.shuttingDown() {
				log.Warn("write failed", "error", err)
			}
			return
		}

		failure := ""
		if !outcome.OK() {
			failure = outcome.Text()
		}
		log.Command(kind.String(), executor.Verb(command), elapsed, failure)
		s.publish(sessionID, remote, kind, command, outcome, elapsed, start)
	}
}

// dispatch routes a classified command to the executor. Statements are not
// tied to the connection's lifetime: a client that disconnects mid-statement
// does not abort it.
func (s *Server) dispatch(kind executor.Kind, command string) executor.Outcome {
	ctx := context.Background()
	if kind == executor.KindRead {
		return s.exec.ExecuteQuery(ctx, command)
	}
	return s.exec.ExecuteWrite(ctx, command)
}

func (s *Server) publish(sessionID, remote string, kind executor.Kind, command string, outcome executor.Outcome, elapsed time.Duration, at time.Time) {
	if s.publisher == nil {
		return
	}
	ev := events.StatementEvent{
		SessionID:  sessionID,
		RemoteAddr: remote,
		Kind:       kind.String(),
		Verb:       executor.Verb(command),
		Success:    outcome.OK(),
		Duration:   elapsed,
		At:         at.UTC(),
	}
	if !outcome.OK() {
		ev.Error = outcome.Text()
	}
	s.publisher.Publish(ev)
}
