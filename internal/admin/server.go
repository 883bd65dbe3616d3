package admin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/stomp-sql-gateway/internal/gateway"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/logging"
)

// gracefulShutdownTimeout bounds Close.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker reports whether a dependency is usable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GatewayStats exposes the gateway counters. *gateway.Server satisfies it.
type GatewayStats interface {
	Stats() gateway.StatsSnapshot
}

// PoolStats exposes database pool statistics. *database.DB satisfies it.
type PoolStats interface {
	Stats() sql.DBStats
}

// Connectivity reports the state of an optional outbound integration.
type Connectivity interface {
	IsConnected() bool
}

// Deps holds the dependencies of the admin server. Only Logger and Health
// are required.
type Deps struct {
	Config   config.AdminConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Health   HealthChecker
	Gateway  GatewayStats
	DB       PoolStats
	MQTT     Connectivity
	InfluxDB Connectivity
	Version  string
}

// Server is the loopback HTTP server for health, metrics and the live
// statement feed.
type Server struct {
	cfg       config.AdminConfig
	logger    *logging.Logger
	health    HealthChecker
	gateway   GatewayStats
	db        PoolStats
	mqtt      Connectivity
	influx    Connectivity
	hub       *Hub
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates an admin server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Health == nil {
		return nil, fmt.Errorf("health checker is required")
	}

	logger := deps.Logger.Component("admin")
	hub := NewHub(deps.WS, deps.Gateway, logger)

	return &Server{
		cfg:       deps.Config,
		logger:    logger,
		health:    deps.Health,
		gateway:   deps.Gateway,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		influx:    deps.InfluxDB,
		hub:       hub,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, which doubles as an events.Sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves in the background. Bind errors are
// returned synchronously.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("admin server already started")
	}

	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = listener
	s.done = make(chan struct{})
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("admin server listening", "addr", listener.Addr().String())

	srv, done := s.server, s.done
	go func() {
		defer close(done)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("admin server error", "error", err)
		}
	}()
	return nil
}

// Run starts the server, blocks until ctx is cancelled and then closes it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return s.Close()
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops background work and shuts the HTTP server down, waiting up
// to gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, done, cancel := s.server, s.done, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, stop := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer stop()

	s.logger.Info("admin server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down admin server: %w", err)
	}
	<-done
	return nil
}
