package ws

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chat-gateway/internal/models"
	"chat-gateway/internal/observability"
)

// Hub maintains live connections and the rooms they joined.
type Hub struct {
	conns  map[string]*Conn
	rooms  map[string]map[*Conn]struct{}
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		conns:  make(map[string]*Conn),
		rooms:  make(map[string]map[*Conn]struct{}),
		logger: logger.Named("hub"),
	}
}

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.id] = c
}

// remove drops the connection and every room membership it holds.
func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.id)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
}

func (h *Hub) join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.id]; !ok {
		return
	}
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
	c.rooms[room] = struct{}{}
}

func (h *Hub) leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
}

func (h *Hub) leaveLocked(c *Conn, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// RoomSize returns the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// ConnCount returns the number of live connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// EmitToRoom sends event to every connection in room.
func (h *Hub) EmitToRoom(room, event string, payload any) {
	h.emitRoom(room, "", event, payload)
}

// EmitToRoomExcept sends event to every connection in room other than exceptConnID.
func (h *Hub) EmitToRoomExcept(room, exceptConnID, event string, payload any) {
	h.emitRoom(room, exceptConnID, event, payload)
}

// EmitToUser sends event to every connection registered as userID.
func (h *Hub) EmitToUser(userID int, event string, payload any) {
	h.emitRoom(models.UserRoom(userID), "", event, payload)
}

// EmitAll sends event to every live connection.
func (h *Hub) EmitAll(event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	h.deliver(targets, frame, event)
}

func (h *Hub) emitRoom(room, exceptConnID, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*Conn, 0, len(members))
	for c := range members {
		if c.id != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	h.deliver(targets, frame, event)
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		h.logger.Error("encode event failed", zap.String("event", event), zap.Error(err))
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(targets []*Conn, frame []byte, event string) {
	for _, c := range targets {
		if !c.enqueue(frame) {
			h.logger.Warn("send queue full, dropping connection", zap.String("conn_id", c.id), zap.String("event", event))
			observability.IncWSKick()
			h.publishWSError(c, "send queue full")
			c.Close()
		}
	}
}

// Close disconnects every live connection.
func (h *Hub) Close() {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		c.Close()
	}
}

func (h *Hub) publishWSError(c *Conn, reason string) {
	observability.IncWSEvent(wsKind, "ws_error")
	_ = observability.PublishEvent(context.Background(), observability.RoutingKeyWSEvents,
		wsEnvelope("ws_error", c.Info(), time.Since(c.info.ConnectedAt), reason),
		observability.BuildHeaders(c.info.RequestID, c.info.TraceID))
}
