package signaling

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tigasdev/signaling/internal/config"
	"github.com/tigasdev/signaling/internal/metrics"
	"github.com/tigasdev/signaling/internal/origin"
	"github.com/tigasdev/signaling/internal/ratelimit"
	"github.com/tigasdev/signaling/internal/rooms"
)

const wsWriteWait = 1 * time.Second

// Server upgrades browser connections and pumps frames between sockets and
// the room engine. It implements rooms.Sender: outbound delivery goes
// through a per-connection buffered queue and never blocks the engine.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	engine   *rooms.Engine
	upgrader websocket.Upgrader
	clock    ratelimit.Clock

	mu      sync.Mutex
	clients map[string]*client
	closed  bool
}

func NewServer(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) *Server {
	if m == nil {
		m = metrics.New()
	}
	s := &Server{
		cfg:     cfg,
		log:     logger,
		metrics: m,
		clock:   ratelimit.RealClock{},
		clients: make(map[string]*client),
	}
	s.upgrader = websocket.Upgrader{
		// The Origin allowlist is enforced before Upgrade is called, so the
		// same policy covers both the 403 and the handshake.
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	s.engine = rooms.NewEngine(rooms.EngineConfig{
		Sender:  s,
		Metrics: m,
		Logger:  logger,
	})
	return s
}

// Engine exposes the room engine for read paths (the /stats endpoint).
func (s *Server) Engine() *rooms.Engine {
	return s.engine
}

// Send implements rooms.Sender. It is called with the engine lock held and
// must not block: a full queue drops the frame.
func (s *Server) Send(connectionID, event string, payload any) bool {
	s.mu.Lock()
	c := s.clients[connectionID]
	s.mu.Unlock()
	if c == nil {
		return false
	}

	frame, err := encodeFrame(event, payload)
	if err != nil {
		s.log.Error("encode frame", "event", event, "err", err)
		return false
	}

	select {
	case c.send <- frame:
		return true
	default:
		s.metrics.Inc(metrics.WSSendQueueDrops)
		s.log.Warn("send queue full, frame dropped", "connection_id", connectionID, "event", event)
		return false
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.originAllowed(r) {
		s.metrics.Inc(metrics.WSOriginForbidden)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	id := uuid.NewString()
	c := &client{
		id:        id,
		conn:      conn,
		send:      make(chan []byte, s.cfg.WSSendQueue),
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}
	s.clients[id] = c
	s.mu.Unlock()

	if err := s.engine.Connect(id, rooms.Metadata{
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}); err != nil {
		s.unregister(id)
		s.log.Error("register connection", "connection_id", id, "err", err)
		conn.Close()
		return
	}
	s.metrics.Inc(metrics.WSConnections)

	go c.writePump(s.cfg.WSPingInterval)
	s.readLoop(c)
}

// readLoop runs on the handler goroutine until the socket dies or the
// server closes it. It owns all reads and all engine calls for this
// connection, so events stay serialized per connection.
func (s *Server) readLoop(c *client) {
	conn := c.conn
	idle := s.cfg.WSIdleTimeout
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(idle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(idle))
	})

	perSecond := int64(s.cfg.MaxMessagesPerSecond)
	bucket := ratelimit.NewTokenBucket(s.clock, perSecond, perSecond)

	reason := "client-disconnect"

	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				s.metrics.Inc(metrics.WSIdleTimeouts)
				c.beginClose(websocket.ClosePolicyViolation, "idle timeout")
				reason = "idle-timeout"
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(idle))

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.WSBadMessage)
			c.beginClose(websocket.CloseUnsupportedData, "expected text frame")
			reason = "protocol-error"
			break
		}

		if !bucket.Allow(1) {
			s.metrics.Inc(metrics.WSRateLimited)
			c.beginClose(websocket.ClosePolicyViolation, "rate limit exceeded")
			reason = "rate-limited"
			break
		}

		ev, err := parseFrame(raw)
		if err != nil {
			s.metrics.Inc(metrics.WSBadMessage)
			// Tell the sender what was wrong with the frame, then drop the
			// connection: a client speaking the wrong protocol won't recover.
			s.Send(c.id, rooms.EventError, rooms.ErrorPayload{Message: err.Error()})
			c.beginClose(websocket.ClosePolicyViolation, "invalid message")
			reason = "protocol-error"
			break
		}

		s.engine.Handle(c.id, ev)
	}

	s.engine.Disconnect(c.id, reason)
	s.unregister(c.id)
	c.shutdown()
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

// Close disconnects every client and refuses new upgrades. Used during
// graceful shutdown; http.Server.Shutdown does not wait for hijacked
// websocket connections.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.beginClose(websocket.CloseGoingAway, "server shutting down")
		// Waking the read loop delivers the engine disconnect.
		_ = c.conn.SetReadDeadline(time.Now())
	}
}

func (s *Server) originAllowed(r *http.Request) bool {
	header := strings.TrimSpace(r.Header.Get("Origin"))
	if header == "" {
		// Non-browser clients send no Origin; the allowlist protects
		// browsers from cross-site WebSocket hijacking, not curl.
		return true
	}
	normalized, host, ok := origin.NormalizeHeader(header)
	if !ok {
		return false
	}
	return origin.IsAllowed(normalized, host, r.Host, s.cfg.AllowedOrigins)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// client is one upgraded socket. The write pump is the sole writer of the
// connection; the read loop is the sole reader.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	once      sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

// beginClose records the close frame to send and signals the write pump.
// First caller wins; later calls are no-ops.
func (c *client) beginClose(code int, text string) {
	c.once.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.done)
	})
}

// shutdown is called by the read loop after the engine has been told about
// the disconnect. It guarantees the pump exits even when beginClose was
// never reached.
func (c *client) shutdown() {
	c.beginClose(websocket.CloseNormalClosure, "")
}

func (c *client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.flushAndClose()
			return
		}
	}
}

// flushAndClose drains frames queued before the close decision (the error
// event explaining a policy close, typically), then sends the close frame.
func (c *client) flushAndClose() {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeText),
				time.Now().Add(wsWriteWait))
			return
		}
	}
}
