package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/opensource-finance/creditguard/internal/domain"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = pongTimeout * 9 / 10

	clientBuffer = 64
)

// StreamHandler pushes every evaluation result to connected websocket
// clients. A client that falls behind loses messages rather than slowing
// evaluation.
type StreamHandler struct {
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*streamClient]struct{}
	closed  bool
}

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

// NewStreamHandler creates a feed that accepts upgrades from the given
// browser origins. Requests without an Origin header are always accepted.
func NewStreamHandler(allowedOrigins []string) *StreamHandler {
	allowed := newOriginSet(allowedOrigins)
	return &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed.allows(origin)
			},
		},
		clients: make(map[*streamClient]struct{}),
	}
}

// ServeHTTP upgrades the connection and streams results until the client
// disconnects.
func (s *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	c := &streamClient{conn: conn, send: make(chan []byte, clientBuffer)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[c] = struct{}{}
	count := len(s.clients)
	s.mu.Unlock()

	slog.Info("live feed client connected", "remote_addr", r.RemoteAddr, "clients", count)

	go s.writeLoop(c)
	s.readLoop(c)
}

// OnEvaluation broadcasts result to every client.
func (s *StreamHandler) OnEvaluation(result *domain.FraudResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) == 0 {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		slog.Error("failed to marshal evaluation for live feed", "error", err)
		return
	}

	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			slog.Warn("live feed client buffer full, dropping message",
				"evaluation_id", result.EvaluationID,
			)
		}
	}
}

// Clients returns the number of connected clients.
func (s *StreamHandler) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every client and rejects new ones.
func (s *StreamHandler) Close() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*streamClient, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.remove(c)
	}
}

func (s *StreamHandler) remove(c *streamClient) {
	c.once.Do(func() {
		s.mu.Lock()
		delete(s.clients, c)
		close(c.send)
		s.mu.Unlock()
	})
}

// readLoop discards client frames and removes the client once the
// connection fails or misses a pong.
func (s *StreamHandler) readLoop(c *streamClient) {
	defer s.remove(c)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("live feed read error", "error", err)
			}
			return
		}
	}
}

func (s *StreamHandler) writeLoop(c *streamClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Debug("live feed write failed", "error", err)
				s.remove(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.remove(c)
				return
			}
		}
	}
}
