package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/notes/backend/internal/contracts"
	"github.com/wonny/notes/backend/internal/metrics"
	"github.com/wonny/notes/backend/pkg/logger"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

// FeedMessage is one message of the event feed
type FeedMessage struct {
	Type  string          `json:"type"` // "event"
	Event contracts.Event `json:"event"`
}

type client struct {
	conn    *websocket.Conn
	product string // empty = every product
	send    chan []byte
}

// EventHub broadcasts newly recorded events to websocket clients
// ⭐ SSOT: 이벤트 피드 브로드캐스트는 여기서만
type EventHub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	broadcast  chan contracts.Event
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *logger.Logger
}

// NewEventHub creates a hub. Run must be started before clients connect.
func NewEventHub(log *logger.Logger) *EventHub {
	return &EventHub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan contracts.Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: log.WithComponent("event-feed"),
	}
}

// Run is the hub's event loop; it returns when ctx is done
func (h *EventHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))
			h.logger.WithField("total", n).Debug("Feed client connected")

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(n))

		case e := <-h.broadcast:
			data, err := json.Marshal(FeedMessage{Type: "event", Event: e})
			if err != nil {
				h.logger.WithError(err).Warn("Failed to encode feed message")
				continue
			}
			h.mu.Lock()
			for c := range h.clients {
				if c.product != "" && !strings.EqualFold(c.product, e.ProductID) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// slow client
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish queues an event for broadcast. Never blocks the detector: the
// event is dropped when the buffer is full.
func (h *EventHub) Publish(e contracts.Event) {
	select {
	case h.broadcast <- e:
	default:
		h.logger.WithField("event_type", string(e.Type)).Warn("Feed buffer full, dropping event")
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWS upgrades GET /ws/events?product=ID
func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, product: r.URL.Query().Get("product"), send: make(chan []byte, 32)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump keeps the connection alive and detects disconnects
func (h *EventHub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer of c.conn
func (h *EventHub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
