package ws

import (
	"sync"

	"go.uber.org/zap"
)

// Hub is the connection registry: room id to the set of live connections.
// A room key exists if and only if its set is non-empty. One coarse lock
// guards the whole mapping; every membership mutation in the process goes
// through Join, Leave, or the prune phase of Broadcast.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Connection]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Connection]struct{})}
}

// Join adds conn to roomID, creating the room on first member.
func (h *Hub) Join(roomID string, conn Connection) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		r = make(map[Connection]struct{})
		h.rooms[roomID] = r
	}
	r[conn] = struct{}{}
	count := len(r)
	h.mu.Unlock()

	zap.L().Info("ws.joined", zap.String("room", roomID), zap.Int("members", count))
}

// Leave removes conn from roomID and drops the room once empty. Removing a
// connection that is already gone is a no-op; disconnect and broadcast-prune
// paths may both try.
func (h *Hub) Leave(roomID string, conn Connection) {
	h.mu.Lock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := r[conn]; !ok {
		h.mu.Unlock()
		return
	}
	delete(r, conn)
	count := len(r)
	if count == 0 {
		delete(h.rooms, roomID)
	}
	h.mu.Unlock()

	zap.L().Info("ws.left", zap.String("room", roomID), zap.Int("members", count))
}

// Snapshot returns the current membership of roomID for one fan-out pass.
func (h *Hub) Snapshot(roomID string) []Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := h.rooms[roomID]
	if len(r) == 0 {
		return nil
	}
	conns := make([]Connection, 0, len(r))
	for c := range r {
		conns = append(conns, c)
	}
	return conns
}

// Broadcast sends payload to every member of roomID except sender. Sends
// happen outside the lock; a failed send proves the peer is gone, so the
// failed connection is removed and closed before Broadcast returns.
func (h *Hub) Broadcast(roomID string, sender Connection, payload []byte) {
	conns := h.Snapshot(roomID)

	var failed []Connection
	for _, c := range conns {
		if c == sender {
			continue
		}
		if err := c.Send(payload); err != nil {
			failed = append(failed, c)
		}
	}

	for _, c := range failed {
		h.Leave(roomID, c)
		_ = c.Close()
		zap.L().Warn("ws.broadcast_dropped_peer", zap.String("room", roomID))
	}
}

// Stats reports room and connection counts for the /stats endpoint.
func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, r := range h.rooms {
		clients += len(r)
	}
	return len(h.rooms), clients
}
