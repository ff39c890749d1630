package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conmux/conmux/internal/auth"
	"github.com/conmux/conmux/internal/console"
	"github.com/conmux/conmux/internal/infrastructure/config"
	"github.com/conmux/conmux/internal/infrastructure/logging"
)

const (
	defaultWSPollInterval = 50 * time.Millisecond
	wsReadBufferSize      = 4096
	writeWait             = 10 * time.Second
)

// Hub tracks live WebSocket console sessions so they can be shut down
// together when the server stops.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// NewHub creates a WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then closes every active session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ClientCount returns the number of active sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

// WSClient is one live console stream over a WebSocket connection.
//
// Output flows from the console to the client as binary frames, polled
// from the device at the configured interval. Binary frames from the
// client are injected as console input when the caller's role permits.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	dev      *console.Device
	registry *console.Registry
	canWrite bool

	closeOnce sync.Once
	done      chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsReadBufferSize,
	WriteBufferSize: wsReadBufferSize,
	CheckOrigin: func(_ *http.Request) bool {
		return true // origin policy is enforced by corsMiddleware
	},
}

// handleWebSocket upgrades the connection and streams the requested
// console. The console is selected with ?console=<id>; authentication
// uses ?token=<jwt> because browsers cannot set WebSocket headers.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var claims *auth.Claims
	if s.secCfg.JWT.Secret != "" {
		token := r.URL.Query().Get("token")
		if token == "" {
			writeUnauthorized(w, "missing token query parameter")
			return
		}
		var err error
		claims, err = auth.ParseToken(token, s.secCfg.JWT.Secret)
		if err != nil {
			writeUnauthorized(w, "invalid token")
			return
		}
	}

	dev, ok := s.deviceFromURLQuery(w, r)
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:      s.hub,
		conn:     conn,
		dev:      dev,
		registry: s.registry,
		canWrite: claims == nil || claims.Role.CanWrite(),
		done:     make(chan struct{}),
	}
	s.hub.Register(client)

	go client.writePump(s.pollInterval(), s.pingInterval())
	go client.readPump(s.wsCfg.MaxMessageSize, s.pongTimeout())
}

func (s *Server) pollInterval() time.Duration {
	if s.wsCfg.PollInterval <= 0 {
		return defaultWSPollInterval
	}
	return time.Duration(s.wsCfg.PollInterval) * time.Millisecond
}

func (s *Server) pingInterval() time.Duration {
	if s.wsCfg.PingInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(s.wsCfg.PingInterval) * time.Second
}

func (s *Server) pongTimeout() time.Duration {
	if s.wsCfg.PongTimeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(s.wsCfg.PongTimeout) * time.Second
}

// deviceFromURLQuery resolves ?console=<id> the same way deviceFromURL
// resolves the path parameter.
func (s *Server) deviceFromURLQuery(w http.ResponseWriter, r *http.Request) (*console.Device, bool) {
	raw := r.URL.Query().Get("console")
	if raw == "" {
		writeBadRequest(w, "console query parameter required")
		return nil, false
	}
	id, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		writeBadRequest(w, "console id must be an unsigned integer")
		return nil, false
	}
	dev, err := s.registry.Get(uint16(id))
	if err != nil {
		writeNotFound(w, "console not found")
		return nil, false
	}
	return dev, true
}

// writePump polls the console for output and forwards it as binary
// frames, interleaved with protocol pings.
func (c *WSClient) writePump(poll, ping time.Duration) {
	pollTicker := time.NewTicker(poll)
	pingTicker := time.NewTicker(ping)
	defer func() {
		pollTicker.Stop()
		pingTicker.Stop()
		c.close()
	}()

	buf := make([]byte, wsReadBufferSize)
	for {
		select {
		case <-c.done:
			return
		case <-pollTicker.C:
			n, err := c.registry.InDirect(c.dev, buf)
			if err != nil {
				return
			}
			if n == 0 {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline errors surface on the write below
			if err := c.conn.WriteMessage(websocket.BinaryMessage, buf[:n]); err != nil {
				return
			}
		case <-pingTicker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline errors surface on the write below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes client frames, injecting binary frames as console
// input. It also services pongs so idle connections stay alive.
func (c *WSClient) readPump(maxMessageSize int, pongTimeout time.Duration) {
	defer c.close()

	if maxMessageSize > 0 {
		c.conn.SetReadLimit(int64(maxMessageSize))
	}
	// Arm the deadline before the first read so a peer that never
	// pongs still gets reaped; each pong pushes it forward.
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout)) //nolint:errcheck // deadline errors surface on the read below
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
			continue
		}
		if !c.canWrite || len(data) == 0 {
			continue
		}
		if _, err := c.registry.OutDirect(c.dev, data); err != nil {
			return
		}
	}
}

// close tears down the session exactly once.
func (c *WSClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.hub.Unregister(c)
		_ = c.conn.Close() //nolint:errcheck // already tearing down
	})
}
