// Package feed broadcasts live detection frames to websocket viewers and
// serves the Prometheus metrics endpoint next to them.
package feed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ironsheep/carvision-mcp/internal/metrics"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	broadcastQueue = 16
)

// Hub fans messages out to connected websocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	logger     *zap.Logger
	recorder   *metrics.Recorder
	dropped    uint64
}

// NewHub creates a hub. Call Run to start delivering messages.
func NewHub(logger *zap.Logger, recorder *metrics.Recorder) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, broadcastQueue),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		logger:     logger,
		recorder:   recorder,
	}
}

// Run delivers messages until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			h.recorder.SetFeedClients(0)
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mutex.Unlock()
			h.recorder.SetFeedClients(n)
			h.logger.Info("feed client connected", zap.Int("clients", n))

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.recorder.SetFeedClients(n)
			h.logger.Info("feed client disconnected", zap.Int("clients", n))

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Warn("feed write failed", zap.Error(err))
					delete(h.clients, client)
					client.Close()
				}
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.recorder.SetFeedClients(n)

		case <-ticker.C:
			// Viewers never send; pings keep their read deadlines moving.
			h.mutex.Lock()
			for client := range h.clients {
				deadline := time.Now().Add(writeWait)
				if err := client.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					delete(h.clients, client)
					client.Close()
				}
			}
			n := len(h.clients)
			h.mutex.Unlock()
			h.recorder.SetFeedClients(n)
		}
	}
}

// Register adds a client. It blocks until Run picks it up or ctx is done.
func (h *Hub) Register(ctx context.Context, client *websocket.Conn) bool {
	select {
	case h.register <- client:
		return true
	case <-ctx.Done():
		return false
	}
}

// Unregister removes and closes a client.
func (h *Hub) Unregister(ctx context.Context, client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-ctx.Done():
	}
}

// Broadcast queues a message for every client. It never blocks: when the
// queue is full the message is dropped and false is returned.
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		h.mutex.Lock()
		h.dropped++
		h.mutex.Unlock()
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Dropped returns how many broadcasts were discarded on a full queue.
func (h *Hub) Dropped() uint64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.dropped
}
