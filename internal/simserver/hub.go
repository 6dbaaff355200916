package simserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/marchaven/roadband/internal/game/encounter"
)

// writeWait bounds how long a single subscriber write may block.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub fans march notices and encounter events out to websocket subscribers
// as JSON frames. It implements encounter.Sink so the combat core never
// learns about transport. Writes happen on the broadcasting goroutine; a
// subscriber whose write fails is dropped.
type Hub struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// NewHub returns an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[uint64]*subscriber),
	}
}

// Subscribe registers conn on the feed and returns its subscriber id.
func (h *Hub) Subscribe(conn *websocket.Conn) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.subs[id] = &subscriber{conn: conn}
	h.logger.Debug("feed: subscriber joined", zap.Uint64("subscriber", id))
	return id
}

// Unsubscribe drops the subscriber and closes its connection. Dropping an
// unknown id is a no-op.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	sub, ok := h.subs[id]
	delete(h.subs, id)
	h.mu.Unlock()
	if ok {
		sub.conn.Close()
		h.logger.Debug("feed: subscriber left", zap.Uint64("subscriber", id))
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// HandleEvent implements encounter.Sink.
func (h *Hub) HandleEvent(ev encounter.Event) {
	h.Broadcast(ev)
}

// Broadcast marshals v once and writes it to every subscriber. Subscribers
// whose writes fail are dropped so a dead peer cannot stall the feed for
// the rest.
func (h *Hub) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("feed: marshal broadcast", zap.Error(err))
		return
	}

	h.mu.Lock()
	subs := make(map[uint64]*subscriber, len(h.subs))
	for id, sub := range h.subs {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		sub.mu.Lock()
		_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := sub.conn.WriteMessage(websocket.TextMessage, data)
		sub.mu.Unlock()
		if err != nil {
			h.logger.Debug("feed: dropping subscriber",
				zap.Uint64("subscriber", id),
				zap.Error(err),
			)
			h.Unsubscribe(id)
		}
	}
}

// ServeWS upgrades the request and holds the connection on the feed until
// the peer disconnects. The feed is one-way; inbound frames are discarded.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed: upgrade failed", zap.Error(err))
		return
	}
	id := h.Subscribe(conn)

	// The read returning an error is how a disconnect is noticed.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.Unsubscribe(id)
}

// Close drops every subscriber. Used at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*subscriber)
	h.mu.Unlock()
	for _, sub := range subs {
		sub.conn.Close()
	}
}
