package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn is one Socket.IO connection. Its outbound frames go through a bounded
// queue drained by a single writer goroutine.
type Conn struct {
	id   string
	hub  *Hub
	ws   *websocket.Conn
	info ConnInfo

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// rooms is guarded by hub.mu.
	rooms map[string]struct{}

	mu        sync.RWMutex
	userID    int
	pinnedID  int
	connected bool
}

func newConn(id string, hub *Hub, wsConn *websocket.Conn, sendBuffer int, info ConnInfo) *Conn {
	info.ConnID = id
	return &Conn{
		id:       id,
		hub:      hub,
		ws:       wsConn,
		info:     info,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
		pinnedID: info.UserID,
	}
}

// ID returns the connection id, also used as the Socket.IO sid.
func (c *Conn) ID() string { return c.id }

// UserID returns the bound user, or 0 before register_user.
func (c *Conn) UserID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// BindUser associates the connection with userID.
func (c *Conn) BindUser(userID int) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

// PinnedUserID returns the user proven by a verified token, or 0.
func (c *Conn) PinnedUserID() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pinnedID
}

func (c *Conn) pin(userID int) {
	c.mu.Lock()
	c.pinnedID = userID
	c.mu.Unlock()
}

func (c *Conn) markConnected() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

func (c *Conn) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Join adds the connection to room.
func (c *Conn) Join(room string) { c.hub.join(c, room) }

// Leave removes the connection from room.
func (c *Conn) Leave(room string) { c.hub.leave(c, room) }

// Rooms returns the rooms the connection is in.
func (c *Conn) Rooms() []string {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	out := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		out = append(out, room)
	}
	return out
}

// Info returns the handshake metadata with the current user binding.
func (c *Conn) Info() ConnInfo {
	info := c.info
	if uid := c.UserID(); uid != 0 {
		info.UserID = uid
	}
	return info
}

// enqueue queues frame for the writer. It reports false only when the queue is full.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close stops the writer and closes the socket. Safe to call more than once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			_ = c.ws.Close()
		}
	})
}

func (c *Conn) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write([]byte{eioPing}); err != nil {
				return
			}
		}
	}
}

func (c *Conn) write(frame []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}
