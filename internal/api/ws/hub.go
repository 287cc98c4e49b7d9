// Package ws pushes inspection verdicts, stats, metrics and log lines
// to connected operator UIs over WebSocket. The hub is push-only:
// incoming frames are read solely to detect disconnection.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/inspectline/internal/observability"
	"github.com/your-org/inspectline/internal/types"
	"github.com/your-org/inspectline/pkg/dto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // operator UI is same-deployment; no cross-origin concern
	},
}

// Client represents one connected WebSocket client.
type Client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub maintains active clients and broadcasts UI pushes to all of
// them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
}

// NewHub returns an idle hub; call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run is the hub's event loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			observability.WSConnections.Inc()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			observability.WSConnections.Dec()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) send(evt dto.WSEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		slog.Error("marshal ws event", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		slog.Warn("ws broadcast channel full, dropping event", "type", evt.Type)
	}
}

// UpdateStats pushes the lifetime total/ok/ng counters.
func (h *Hub) UpdateStats(total, ok, ng int) {
	h.send(dto.WSEvent{Type: dto.WSEventStats, Timestamp: time.Now(), Payload: dto.StatsPayload{Total: total, OK: ok, NG: ng}})
}

// UpdateResult pushes the latest cycle verdict.
func (h *Hub) UpdateResult(passed bool) {
	h.send(dto.WSEvent{Type: dto.WSEventResult, Timestamp: time.Now(), Payload: dto.ResultPayload{Passed: passed}})
}

// UpdateImage announces a new result image. Only its content type and
// byte length travel over the JSON event channel; the encoded image
// bytes themselves are not sent to clients.
func (h *Hub) UpdateImage(contentType string, data []byte) {
	h.send(dto.WSEvent{Type: dto.WSEventImage, Timestamp: time.Now(), Payload: dto.ImagePayload{ContentType: contentType, Bytes: len(data)}})
}

// UpdateMetrics pushes one cycle's timing/fps snapshot; it also
// satisfies observability.MetricsPublisher.
func (h *Hub) UpdateMetrics(m types.Metrics) {
	h.send(dto.WSEvent{Type: dto.WSEventMetrics, Timestamp: time.Now(), Payload: dto.MetricsPayloadFrom(m)})
}

// Log pushes an operator-visible log line.
func (h *Hub) Log(msg, level string) {
	h.send(dto.WSEvent{Type: dto.WSEventLog, Timestamp: time.Now(), Payload: dto.LogPayload{Message: msg, Level: level}})
}

// HandleWS upgrades an HTTP request to a WebSocket connection.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{conn: conn, send: make(chan []byte, 64)}
	h.register <- client

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Push-only channel: incoming frames are read only to detect
		// disconnection, never processed as commands.
	}
}
