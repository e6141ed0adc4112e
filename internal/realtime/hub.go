package realtime

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	sendBuffer     = 32
)

const (
	EventConnected = "connected"
	EventRegister  = "register"
	EventAlert     = "alert"
	EventNewAlert  = "new-alert"
)

// Envelope is the single frame shape on the wire in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ClientMetrics interface {
	ClientConnected()
	ClientDisconnected()
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub relays alerts between connected clients. Nothing is persisted and a
// client that cannot keep up is dropped rather than buffered.
type Hub struct {
	logger   *slog.Logger
	metrics  ClientMetrics
	upgrader websocket.Upgrader

	mu sync.RWMutex
	// client -> registered identity, "" until register
	clients map[*client]string
	closed  bool
}

// NewHub accepts any origin when allowedOrigins is empty or contains "*".
func NewHub(logger *slog.Logger, metrics ClientMetrics, allowedOrigins []string) *Hub {
	h := &Hub{
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]string),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin(allowedOrigins),
	}
	return h
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.add(c) {
		_ = conn.Close()
		return
	}
	l := h.logger.With(slog.String("client_id", c.id))
	l.Info("realtime client connected", slog.String("remote", r.RemoteAddr))

	go h.writePump(c)

	if msg, err := encode(EventConnected, map[string]string{"client_id": c.id}); err == nil {
		h.enqueue([]*client{c}, msg)
	}

	h.readPump(c, l)

	h.remove(c)
	l.Info("realtime client disconnected")
}

// Broadcast sends an event to every connected client.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		h.logger.Error("encode realtime event", slog.String("event", event), slog.Any("error", err))
		return
	}
	h.fanout(nil, msg)
}

// Len is the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.remove(c)
	}
}

func (h *Hub) readPump(c *client, l *slog.Logger) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l.Warn("realtime read failed", slog.Any("error", err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			l.Debug("malformed realtime frame", slog.Any("error", err))
			continue
		}

		switch env.Event {
		case EventRegister:
			identity := decodeIdentity(env.Data)
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				h.clients[c] = identity
			}
			h.mu.Unlock()
			l.Info("realtime client registered", slog.String("identity", identity))
		case EventAlert:
			h.relayAlert(c, env.Data, l)
		default:
			l.Debug("unknown realtime event", slog.String("event", env.Event))
		}
	}
}

func (h *Hub) relayAlert(sender *client, data json.RawMessage, l *slog.Logger) {
	h.mu.RLock()
	senderID := h.clients[sender]
	h.mu.RUnlock()

	msg, err := encode(EventNewAlert, withSender(senderID, data))
	if err != nil {
		l.Warn("encode relayed alert", slog.Any("error", err))
		return
	}
	l.Info("relaying alert", slog.String("sender_id", senderID))
	h.fanout(sender, msg)
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// fanout queues msg for every client except skip.
func (h *Hub) fanout(skip *client, msg []byte) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != skip {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	h.enqueue(targets, msg)
}

func (h *Hub) enqueue(targets []*client, msg []byte) {
	var slow []*client

	// send is only closed after the client leaves the map, under the write lock
	h.mu.RLock()
	for _, c := range targets {
		if _, ok := h.clients[c]; !ok {
			continue
		}
		select {
		case c.send <- msg:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow realtime client", slog.String("client_id", c.id))
		h.remove(c)
	}
}

func (h *Hub) add(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = ""
	if h.metrics != nil {
		h.metrics.ClientConnected()
	}
	return true
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()

	if ok && h.metrics != nil {
		h.metrics.ClientDisconnected()
	}
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// decodeIdentity accepts a bare JSON string or any other JSON value as text.
func decodeIdentity(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	return string(data)
}

// withSender merges sender_id into an object payload, or wraps anything else.
func withSender(senderID string, data json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil || out == nil {
			out = map[string]any{"data": data}
		}
	}
	out["sender_id"] = senderID
	return out
}
