package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/sensorbridge/internal/infrastructure/config"
	"github.com/nerrad567/sensorbridge/internal/infrastructure/logging"
	"github.com/nerrad567/sensorbridge/internal/presenter"
)

// Message types on the /ws stream. A client gets one snapshot on connect,
// then an entry.* message per lifecycle change on its subscribed channels.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeSnapshot    = "snapshot"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// wsQueueLen bounds the messages waiting for one client's writer.
const wsQueueLen = 256

// DefaultChannels lists every channel the hub broadcasts on. New clients
// start subscribed to all of them.
var DefaultChannels = []string{
	string(presenter.KindRegistered),
	string(presenter.KindUpdated),
	string(presenter.KindUnregistered),
}

// WSMessage is the envelope of every frame in either direction.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload names the channels of a subscribe or unsubscribe request.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// wsInbound is a client frame with the payload left undecoded.
type wsInbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func encodeWS(msgType, id string, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// Hub tracks connected clients and implements presenter.Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
}

// WSClient is one connection. Its writer goroutine owns conn writes and
// exits when send is closed.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu            sync.Mutex
	subscriptions map[string]struct{}
	closed        bool
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS middleware decides which origins reach this handler.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run waits for ctx to end and then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*WSClient]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.shutdown()
		if c.conn != nil {
			c.conn.Close()
		}
	}
	h.track(0, "websocket hub stopped")
}

// Register adds c to the broadcast set.
func (h *Hub) Register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.track(n, "websocket client connected")
}

// Unregister removes c and stops its writer. Repeated calls are no-ops.
func (h *Hub) Unregister(c *WSClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	c.shutdown()
	h.track(n, "websocket client disconnected")
}

func (h *Hub) track(n int, msg string) {
	wsClients.Set(float64(n))
	h.logger.Debug(msg, "clients", n)
}

// Broadcast queues one message for every client subscribed to msgType.
// Clients whose queue is full miss the message.
func (h *Hub) Broadcast(msgType string, payload any) {
	data, err := encodeWS(msgType, "", payload)
	if err != nil {
		h.logger.Error("failed to encode broadcast", "type", msgType, "error", err)
		return
	}

	h.mu.RLock()
	members := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		members = append(members, c)
	}
	h.mu.RUnlock()

	recipients := 0
	for _, c := range members {
		if c.wants(msgType) && c.push(data) {
			recipients++
		}
	}
	if recipients > 0 {
		h.logger.Debug("broadcast sent", "type", msgType, "recipients", recipients)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// wsTimings holds the per-connection limits derived from configuration.
type wsTimings struct {
	readLimit int64
	pingEvery time.Duration
	pongWait  time.Duration
	writeWait time.Duration
}

func newWSTimings(cfg config.WebSocketConfig) wsTimings {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return wsTimings{
		readLimit: int64(cfg.MaxMessageSize),
		pingEvery: ping,
		pongWait:  ping + pong,
		writeWait: pong,
	}
}

// handleWebSocket upgrades the request, sends the current snapshot and
// subscribes the client to DefaultChannels.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:           s.hub,
		conn:          conn,
		send:          make(chan []byte, wsQueueLen),
		subscriptions: make(map[string]struct{}, len(DefaultChannels)),
	}
	for _, ch := range DefaultChannels {
		c.subscriptions[ch] = struct{}{}
	}

	s.hub.Register(c)
	c.reply("", WSTypeSnapshot, s.snapshots())

	t := newWSTimings(s.wsCfg)
	go c.writeLoop(t)
	go c.readLoop(t)
}

// snapshots returns every entry snapshot sorted by ID.
func (s *Server) snapshots() []presenter.Snapshot {
	entries := s.entries.All()
	out := make([]presenter.Snapshot, 0, len(entries))
	for _, e := range entries {
		out = append(out, presenter.NewSnapshot(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// push queues data for the writer. It reports false when the client has
// gone away or its queue is full.
func (c *WSClient) push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// shutdown closes the send queue exactly once.
func (c *WSClient) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *WSClient) wants(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscriptions[channel]
	return ok
}

func (c *WSClient) reply(id, msgType string, payload any) {
	data, err := encodeWS(msgType, id, payload)
	if err != nil {
		c.hub.logger.Error("failed to encode reply", "type", msgType, "error", err)
		return
	}
	c.push(data)
}

func (c *WSClient) fail(id, format string, args ...any) {
	c.reply(id, WSTypeError, map[string]string{"message": fmt.Sprintf(format, args...)})
}

func (c *WSClient) readLoop(t wsTimings) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	}
	c.conn.SetReadLimit(t.readLimit)
	c.conn.SetPongHandler(func(string) error { return extend() })
	//nolint:errcheck // a stale deadline surfaces as a read error
	extend()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		//nolint:errcheck // a stale deadline surfaces as a read error
		extend()
		c.dispatch(raw)
	}
}

func (c *WSClient) writeLoop(t wsTimings) {
	ping := time.NewTicker(t.pingEvery)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a stale deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // the connection is closing either way
				write(websocket.CloseMessage, nil)
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) dispatch(raw []byte) {
	var in wsInbound
	if err := json.Unmarshal(raw, &in); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch in.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		c.resubscribe(in)
	case WSTypePing:
		c.reply(in.ID, WSTypePong, nil)
	default:
		c.fail(in.ID, "unknown message type: %s", in.Type)
	}
}

// resubscribe applies a subscribe or unsubscribe request. Unknown channels
// reject the whole request.
func (c *WSClient) resubscribe(in wsInbound) {
	var sub WSSubscribePayload
	if len(in.Payload) == 0 || json.Unmarshal(in.Payload, &sub) != nil {
		c.fail(in.ID, "invalid %s payload", in.Type)
		return
	}
	for _, ch := range sub.Channels {
		if !slices.Contains(DefaultChannels, ch) {
			c.fail(in.ID, "unknown channel: %s", ch)
			return
		}
	}

	add := in.Type == WSTypeSubscribe
	c.mu.Lock()
	for _, ch := range sub.Channels {
		if add {
			c.subscriptions[ch] = struct{}{}
		} else {
			delete(c.subscriptions, ch)
		}
	}
	c.mu.Unlock()

	key := "unsubscribed"
	if add {
		key = "subscribed"
	}
	c.reply(in.ID, WSTypeResponse, map[string]any{key: sub.Channels})
}
