package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ayusman/touchtable/internal/geometry"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

const (
	touchQueueSize = 64
	writeTimeout   = time.Second
)

// TouchMessage is one websocket message: the screen-space points painted in a
// render pass.
type TouchMessage struct {
	Points    []geometry.Point `json:"points"`
	Timestamp int64            `json:"timestamp"`
}

// TouchHub broadcasts drawn touches to websocket clients.
type TouchHub struct {
	logger  *zap.SugaredLogger
	queue   chan TouchMessage
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
	done    chan struct{}
	once    sync.Once
}

// NewTouchHub creates a hub and starts its broadcaster.
func NewTouchHub(logger *zap.SugaredLogger) *TouchHub {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	h := &TouchHub{
		logger:  logger,
		queue:   make(chan TouchMessage, touchQueueSize),
		clients: make(map[*websocket.Conn]bool),
		done:    make(chan struct{}),
	}
	go h.broadcast()
	return h
}

// Publish queues points for every client. It never blocks; when the
// broadcaster is behind the points are dropped.
func (h *TouchHub) Publish(points []geometry.Point) {
	if len(points) == 0 || h.Clients() == 0 {
		return
	}
	msg := TouchMessage{Points: points, Timestamp: time.Now().UnixMilli()}
	select {
	case h.queue <- msg:
	default:
	}
}

// Clients returns the number of connected clients.
func (h *TouchHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *TouchHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends queued touches to all connected clients.
func (h *TouchHub) broadcast() {
	for {
		select {
		case <-h.done:
			return
		case msg := <-h.queue:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}

			h.mu.RLock()
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					h.logger.Debugw("websocket write", "error", err)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Close stops the broadcaster and disconnects every client.
func (h *TouchHub) Close() error {
	h.once.Do(func() {
		close(h.done)
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	})
	return nil
}
