package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/nerrad567/stomp-sql-gateway/internal/events"
	"github.com/nerrad567/stomp-sql-gateway/internal/executor"
	"github.com/nerrad567/stomp-sql-gateway/internal/frame"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/logging"
)

// DefaultShutdownGrace is how long Run waits for open connections to finish
// before closing them.
const DefaultShutdownGrace = 5 * time.Second

// StatementExecutor runs one classified statement. *executor.Executor
// satisfies it.
type StatementExecutor interface {
	ExecuteQuery(ctx context.Context, statement string) executor.Outcome
	ExecuteWrite(ctx context.Context, statement string) executor.Outcome
}

// Publisher receives statement events. *events.Bus satisfies it.
type Publisher interface {
	Publish(ev events.StatementEvent) bool
}

// dropCounter is implemented by publishers that count rejected events.
type dropCounter interface {
	Dropped() uint64
}

// Config contains the listener settings.
type Config struct {
	// ReadChunkSize is the socket read size used by the framer.
	ReadChunkSize int
}

// Server accepts client connections and serves each one on its own
// goroutine. All handlers share one StatementExecutor.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Server struct {
	cfg       Config
	exec      StatementExecutor
	publisher Publisher
	logger    *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[*trackedConn]struct{}
	started  bool
	shutdown bool

	done  chan struct{}
	wg    sync.WaitGroup // connection handlers
	accWG sync.WaitGroup // accept loop

	stats Stats
}

// New creates a Server. publisher may be nil.
func New(cfg Config, exec StatementExecutor, publisher Publisher, logger *logging.Logger) *Server {
	if cfg.ReadChunkSize <= 0 {
		cfg.ReadChunkSize = frame.DefaultChunkSize
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:       cfg,
		exec:      exec,
		publisher: publisher,
		logger:    logger.Component("gateway"),
		conns:     make(map[*trackedConn]struct{}),
		done:      make(chan struct{}),
	}
}

// Start begins listening on addr and returns once the socket is bound.
// Connections are accepted on a background goroutine.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrServerClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = listener
	s.started = true

	s.logger.Info("gateway listening", "addr", listener.Addr().String())

	s.accWG.Add(1)
	go s.acceptLoop(listener)
	return nil
}

// Run starts the server and blocks until ctx is cancelled, then shuts down
// with DefaultShutdownGrace.
func (s *Server) Run(ctx context.Context, addr string) error {
	if err := s.Start(addr); err != nil {
		return err
	}
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownGrace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stats returns a snapshot of the gateway counters.
func (s *Server) Stats() StatsSnapshot {
	snap := s.stats.Snapshot()
	if dc, ok := s.publisher.(dropCounter); ok {
		snap.EventsDropped = dc.Dropped()
	}
	return snap
}

// Shutdown stops accepting and releases the listening socket, then waits
// for connection handlers to finish. If ctx ends first the remaining
// connections are closed and ctx.Err() is returned. Statements already
// inside the executor are not interrupted.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return nil
	}
	s.shutdown = true
	close(s.done)
	var closeErr error
	if s.listener != nil {
		closeErr = s.listener.Close()
	}
	s.mu.Unlock()

	s.accWG.Wait()

	idle := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(idle)
	}()

	select {
	case <-idle:
	case <-ctx.Done():
		s.closeConnections()
		<-idle
		return ctx.Err()
	}

	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return fmt.Errorf("closing listener: %w", closeErr)
	}
	s.logger.Info("gateway stopped")
	return nil
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.accWG.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		tc := s.track(conn)
		if tc == nil {
			conn.Close() //nolint:errcheck // Shutting down
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(tc)
	}
}

// track registers conn, or returns nil if the server is shutting down.
func (s *Server) track(conn net.Conn) *trackedConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return nil
	}
	tc := &trackedConn{Conn: conn}
	s.conns[tc] = struct{}{}
	return tc
}

func (s *Server) untrack(tc *trackedConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, tc)
}

func (s *Server) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tc := range s.conns {
		tc.close() //nolint:errcheck // Forced shutdown
	}
}

func (s *Server) shuttingDown() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// trackedConn guarantees the socket is closed once, whether by its handler
// or by a forced shutdown.
type trackedConn struct {
	net.Conn
	once sync.Once
	err  error
}

func (c *trackedConn) close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}
