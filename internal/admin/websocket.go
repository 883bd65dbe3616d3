package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/stomp-sql-gateway/internal/events"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/config"
	"github.com/nerrad567/stomp-sql-gateway/internal/infrastructure/logging"
)

// Feed channels a client can subscribe to on /api/v1/events.
const (
	// ChannelStatementExecuted carries every executed command.
	ChannelStatementExecuted = "statement.executed"

	// ChannelStatementFailed carries only commands answered with ERROR.
	ChannelStatementFailed = "statement.failed"
)

// Feed message types.
const (
	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgStatus      = "status"
	MsgPing        = "ping"
	MsgPong        = "pong"
	MsgEvent       = "event"
	MsgResponse    = "response"
	MsgError       = "error"
)

const (
	feedSendBuffer = 256

	defaultMaxMessageSize = 8192
	defaultPingInterval   = 30
	defaultPongTimeout    = 10
)

// FeedMessage is one JSON frame on the statement feed. Events carry a
// StatementEvent payload; a status response carries gateway.StatsSnapshot.
type FeedMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Channel   string `json:"channel,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SubscribePayload names the channels of a subscribe or unsubscribe request.
type SubscribePayload struct {
	Channels []string `json:"channels"`
}

// feedRequest is FeedMessage as read from a client.
type feedRequest struct {
	Type    string           `json:"type"`
	ID      string           `json:"id"`
	Payload SubscribePayload `json:"payload"`
}

// Hub fans statement events out to WebSocket subscribers and answers status
// requests from the gateway counters. It implements events.Sink.
type Hub struct {
	cfg    config.WebSocketConfig
	stats  GatewayStats
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*feedClient]struct{}
	closed  bool
}

// feedClient is one WebSocket connection and its channel subscriptions.
type feedClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	channels map[string]bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The admin listener is loopback-only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub. Zero config values fall back to defaults; a nil
// stats source makes status requests fail.
func NewHub(cfg config.WebSocketConfig, stats GatewayStats, logger *logging.Logger) *Hub {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultPongTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Hub{
		cfg:     cfg,
		stats:   stats,
		logger:  logger,
		clients: make(map[*feedClient]struct{}),
	}
}

// Name implements events.Sink.
func (h *Hub) Name() string { return "websocket" }

// HandleStatement implements events.Sink. A failed command goes to both
// channels.
func (h *Hub) HandleStatement(_ context.Context, ev events.StatementEvent) error {
	h.publish(ChannelStatementExecuted, ev)
	if !ev.Success {
		h.publish(ChannelStatementFailed, ev)
	}
	return nil
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		close(c.send)
		if c.conn != nil {
			c.conn.Close() //nolint:errcheck // Shutting down
		}
		delete(h.clients, c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *feedClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister removes c. Whoever removes it from the map closes its send
// channel, so Run and a finishing read loop never both do.
func (h *Hub) unregister(c *feedClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		close(c.send)
	}
}

// publish encodes ev once and offers it to every subscriber of channel.
// Subscribers whose buffer is full miss it.
func (h *Hub) publish(channel string, ev events.StatementEvent) {
	data, err := json.Marshal(FeedMessage{
		Type:      MsgEvent,
		Channel:   channel,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   ev,
	})
	if err != nil {
		h.logger.Error("encoding feed event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.subscribed(channel) {
			c.offer(data)
		}
	}
}

// handleWebSocket upgrades the request and starts the client's loops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &feedClient{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, feedSendBuffer),
		channels: make(map[string]bool),
	}
	if !s.hub.register(c) {
		conn.Close() //nolint:errcheck // Hub already shut down
		return
	}
	s.logger.Debug("feed client connected", "remote_addr", r.RemoteAddr, "clients", s.hub.ClientCount())

	go c.writeLoop()
	go c.readLoop()
}

func (c *feedClient) readLoop() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close() //nolint:errcheck // Connection is finished
	}()

	idle := time.Duration(c.hub.cfg.PingInterval+c.hub.cfg.PongTimeout) * time.Second
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(idle)) }

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend("") //nolint:errcheck // Best effort; a failed read ends the loop anyway
	c.conn.SetPongHandler(extend)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("feed read failed", "error", err)
			}
			return
		}
		extend("") //nolint:errcheck // Best effort

		var req feedRequest
		if err := json.Unmarshal(data, &req); err != nil {
			c.replyError("", "invalid JSON message")
			continue
		}
		c.handle(req)
	}
}

func (c *feedClient) writeLoop() {
	ping := time.NewTicker(time.Duration(c.hub.cfg.PingInterval) * time.Second)
	defer func() {
		ping.Stop()
		c.conn.Close() //nolint:errcheck // Connection is finished
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // A missed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(time.Duration(c.hub.cfg.PongTimeout) * time.Second))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				write(websocket.CloseMessage, nil) //nolint:errcheck // Closing anyway
				return
			}
			if write(websocket.TextMessage, data) != nil {
				return
			}
		case <-ping.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *feedClient) handle(req feedRequest) {
	switch req.Type {
	case MsgSubscribe, MsgUnsubscribe:
		channels := req.Payload.Channels
		if err := checkChannels(channels); err != nil {
			c.replyError(req.ID, err.Error())
			return
		}
		on := req.Type == MsgSubscribe
		c.mu.Lock()
		for _, ch := range channels {
			if on {
				c.channels[ch] = true
			} else {
				delete(c.channels, ch)
			}
		}
		c.mu.Unlock()
		c.reply(req.ID, MsgResponse, map[string][]string{req.Type + "d": channels})
	case MsgStatus:
		if c.hub.stats == nil {
			c.replyError(req.ID, "gateway status unavailable")
			return
		}
		c.reply(req.ID, MsgResponse, c.hub.stats.Stats())
	case MsgPing:
		c.reply(req.ID, MsgPong, nil)
	default:
		c.replyError(req.ID, "unknown message type: "+req.Type)
	}
}

// checkChannels rejects an empty list or a channel the feed does not have.
func checkChannels(channels []string) error {
	if len(channels) == 0 {
		return fmt.Errorf("no channels given")
	}
	for _, ch := range channels {
		if ch != ChannelStatementExecuted && ch != ChannelStatementFailed {
			return fmt.Errorf("unknown channel: %s", ch)
		}
	}
	return nil
}

func (c *feedClient) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channels[channel]
}

// offer queues data without blocking. A full buffer or a client already
// closed by the hub drops it.
func (c *feedClient) offer(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Send on a channel closed by Run
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *feedClient) reply(id, msgType string, payload any) {
	data, err := json.Marshal(FeedMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.offer(data)
}

func (c *feedClient) replyError(id, message string) {
	c.reply(id, MsgError, map[string]string{"message": message})
}
