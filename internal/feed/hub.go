package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"lane-siege/server/internal/bus"
	"lane-siege/server/internal/telemetry"
)

// Hub re-broadcasts the battle event stream to websocket subscribers.
// Rendering and analytics clients consume it read-only; client frames are
// drained and ignored.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
	nextID      atomic.Uint64
	upgrader    websocket.Upgrader
	logger      telemetry.Logger
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub creates a hub with no subscribers.
func NewHub(logger telemetry.Logger) *Hub {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Hub{
		subscribers: make(map[string]*subscriber),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Attach subscribes the hub to every event kind on the bus.
func (h *Hub) Attach(events *bus.Bus) {
	for _, kind := range bus.Kinds() {
		events.On(kind, func(_ context.Context, ev bus.Event) error {
			h.broadcast(ev)
			return nil
		})
	}
}

// ServeHTTP upgrades the request and keeps the connection subscribed until
// the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	id := fmt.Sprintf("feed-%d", h.nextID.Add(1))
	sub := &subscriber{conn: conn}

	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	h.logger.Info("feed subscriber connected", "subscriber", id)

	// Drain client frames; the feed is one-way.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(id)
	_ = conn.Close()
}

// SubscriberCount reports the live connection count.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, id)
}

// broadcast fans the event out to every subscriber, dropping connections
// whose writes fail.
func (h *Hub) broadcast(ev bus.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("event marshal failed", "kind", string(ev.Kind), "error", err.Error())
		return
	}

	h.mu.Lock()
	targets := make(map[string]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		targets[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range targets {
		sub.mu.Lock()
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			h.logger.Warn("feed write failed, dropping subscriber", "subscriber", id)
			h.remove(id)
			_ = sub.conn.Close()
		}
	}
}
