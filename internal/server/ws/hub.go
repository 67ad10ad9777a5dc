// Package ws streams link lifecycle events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/marketlink/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	replayCount    = 50
)

// Historian is implemented by buses that keep recent events (Redis streams).
type Historian interface {
	History(ctx context.Context, channel string, n int) ([][]byte, error)
}

// Gauge tracks the connected client count (metrics).
type Gauge interface {
	Set(float64)
}

// subscribeMsg lets a client narrow the stream to some topics. An empty
// list means every topic.
type subscribeMsg struct {
	Action string   `json:"action"` // "subscribe" or "unsubscribe"
	Topics []string `json:"topics"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.RWMutex
	topics map[string]bool
}

func (c *client) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.topics) == 0 || c.topics[topic]
}

// Hub fans link events from the SignalBus out to websocket clients.
type Hub struct {
	bus      domain.SignalBus
	upgrader websocket.Upgrader
	gauge    Gauge
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub. gauge may be nil.
func NewHub(bus domain.SignalBus, gauge Gauge, logger *slog.Logger) *Hub {
	return &Hub{
		bus:   bus,
		gauge: gauge,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin checks are left to the CORS/auth middleware.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]struct{}),
	}
}

// Run forwards bus events until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) error {
	events, err := h.bus.Subscribe(ctx, domain.LinkEventsChannel)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "ws: hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case data, ok := <-events:
			if !ok {
				h.closeAll()
				return nil
			}
			h.broadcast(data)
		}
	}
}

func (h *Hub) broadcast(data []byte) {
	var ev domain.LinkEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		h.logger.Warn("ws: undecodable event", slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(ev.Topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping event for slow client")
		}
	}
}

func (h *Hub) add(c *client) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	h.report()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.report()
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.report()
}

// report must be called with h.mu held.
func (h *Hub) report() {
	if h.gauge != nil {
		h.gauge.Set(float64(len(h.clients)))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades the request. ?topic=a&topic=b pre-filters the stream.
// Recent events are replayed first when the bus keeps history.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		topics: make(map[string]bool),
	}
	for _, t := range r.URL.Query()["topic"] {
		c.topics[t] = true
	}
	h.replay(r.Context(), c)
	n := h.add(c)
	h.logger.Info("ws: client connected", slog.Int("clients", n))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) replay(ctx context.Context, c *client) {
	hist, ok := h.bus.(Historian)
	if !ok {
		return
	}
	past, err := hist.History(ctx, domain.LinkEventsChannel, replayCount)
	if err != nil {
		h.logger.Warn("ws: history unavailable", slog.String("error", err.Error()))
		return
	}
	for _, data := range past {
		var ev domain.LinkEvent
		if json.Unmarshal(data, &ev) != nil || !c.wants(ev.Topic) {
			continue
		}
		select {
		case c.send <- data:
		default:
			return
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(message, &msg) == nil {
			c.apply(msg)
		}
	}
}

func (c *client) apply(msg subscribeMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, t := range msg.Topics {
			c.topics[t] = true
		}
	case "unsubscribe":
		for _, t := range msg.Topics {
			delete(c.topics, t)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
