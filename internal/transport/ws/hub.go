package ws

import (
	"sync"
)

type Conn interface {
	Send(msg Message) error
	Close() error
	PlayerID() int64
	RoomID() string
}

// Hub tracks open sockets per room for peer notices and shutdown.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Conn]struct{} // roomID -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Conn]struct{})}
}

func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomID()]
	if !ok {
		rs = make(map[Conn]struct{})
		h.rooms[c.RoomID()] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if rs, ok := h.rooms[c.RoomID()]; ok {
		delete(rs, c)
		if len(rs) == 0 {
			delete(h.rooms, c.RoomID())
		}
	}
}

func (h *Hub) Count(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Broadcast(roomID string, msg Message) {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Send(msg) // best-effort
	}
}

// CloseAll drops every socket; used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	var conns []Conn
	for _, rs := range h.rooms {
		for c := range rs {
			conns = append(conns, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
