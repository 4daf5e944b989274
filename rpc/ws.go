package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"escrowswap/core/events"
	"escrowswap/observability"
)

const (
	wsWriteTimeout      = 10 * time.Second
	defaultStreamBuffer = 64
)

// Hub fans committed engine events out to websocket subscribers. A subscriber
// whose buffer is full misses the event rather than stalling the engine.
type Hub struct {
	buffer int

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscriber
}

type subscriber struct {
	prefix string
	ch     chan []byte
}

// NewHub builds a hub queueing up to buffer events per subscriber.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[uint64]*subscriber)}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.prefix != "" && !strings.HasPrefix(payload.Type, sub.prefix) {
			continue
		}
		select {
		case sub.ch <- data:
		default:
			observability.Events().RecordDrop("ws")
		}
	}
}

// Subscribe registers a subscriber receiving events whose type starts with
// prefix. The returned cancel func must be called to release it.
func (h *Hub) Subscribe(prefix string) (<-chan []byte, func()) {
	sub := &subscriber{prefix: strings.TrimSpace(prefix), ch: make(chan []byte, h.buffer)}
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = sub
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Subscribers reports the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	prefix := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	updates, cancel := s.hub.Subscribe(prefix)
	defer cancel()

	// Inbound frames are ignored; CloseRead cancels ctx when the peer leaves.
	ctx := conn.CloseRead(r.Context())
	if err := streamEvents(ctx, conn, updates); err != nil {
		if status := websocket.CloseStatus(err); status == -1 && ctx.Err() == nil {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func streamEvents(ctx context.Context, conn *websocket.Conn, updates <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-updates:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
