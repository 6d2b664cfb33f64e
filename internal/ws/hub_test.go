package ws

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testConn(hub *Hub, id string, buffer int) *Conn {
	c := newConn(id, hub, nil, buffer, ConnInfo{})
	hub.add(c)
	return c
}

func drain(c *Conn) []string {
	var out []string
	for {
		select {
		case frame := <-c.send:
			out = append(out, string(frame))
		default:
			return out
		}
	}
}

func TestHubJoinLeaveAndRemove(t *testing.T) {
	hub := NewHub(nil)
	a := testConn(hub, "a", 4)

	a.Join("chat_1")
	a.Join("user_3")
	require.Equal(t, 1, hub.RoomSize("chat_1"))
	require.ElementsMatch(t, []string{"chat_1", "user_3"}, a.Rooms())

	a.Leave("chat_1")
	require.Equal(t, 0, hub.RoomSize("chat_1"))

	hub.remove(a)
	require.Equal(t, 0, hub.RoomSize("user_3"))
	require.Equal(t, 0, hub.ConnCount())
	require.Empty(t, a.Rooms())
}

func TestHubJoinAfterRemoveIsIgnored(t *testing.T) {
	hub := NewHub(nil)
	a := testConn(hub, "a", 4)
	hub.remove(a)

	a.Join("chat_1")
	require.Equal(t, 0, hub.RoomSize("chat_1"))
}

func TestHubEmitTargets(t *testing.T) {
	hub := NewHub(nil)
	a := testConn(hub, "a", 8)
	b := testConn(hub, "b", 8)
	c := testConn(hub, "c", 8)
	a.Join("chat_1")
	b.Join("chat_1")
	c.Join("user_9")

	hub.EmitToRoom("chat_1", "receive_message", map[string]int{"id": 1})
	hub.EmitToRoomExcept("chat_1", "a", "user_typing", map[string]bool{"isTyping": true})
	hub.EmitToUser(9, "unread_count", 4)
	hub.EmitAll("user_status_changed", map[string]any{"userId": 9, "status": "online"})

	require.Equal(t, []string{
		`42["receive_message",{"id":1}]`,
		`42["user_status_changed",{"status":"online","userId":9}]`,
	}, drain(a))
	require.Equal(t, []string{
		`42["receive_message",{"id":1}]`,
		`42["user_typing",{"isTyping":true}]`,
		`42["user_status_changed",{"status":"online","userId":9}]`,
	}, drain(b))
	require.Equal(t, []string{
		`42["unread_count",4]`,
		`42["user_status_changed",{"status":"online","userId":9}]`,
	}, drain(c))
}

func TestHubEmitToEmptyRoom(t *testing.T) {
	hub := NewHub(nil)
	a := testConn(hub, "a", 2)

	hub.EmitToRoom("chat_404", "receive_message", nil)
	require.Empty(t, drain(a))
}

func TestHubDropsSlowConnection(t *testing.T) {
	hub := NewHub(nil)
	slow := testConn(hub, "slow", 1)
	fast := testConn(hub, "fast", 4)
	slow.Join("chat_1")
	fast.Join("chat_1")

	hub.EmitToRoom("chat_1", "a", nil)
	hub.EmitToRoom("chat_1", "b", nil)

	select {
	case <-slow.done:
	default:
		t.Fatal("expected slow connection to be closed")
	}
	require.Len(t, drain(fast), 2)
}

func TestHubCloseClosesConnections(t *testing.T) {
	hub := NewHub(nil)
	a := testConn(hub, "a", 1)

	hub.Close()
	select {
	case <-a.done:
	default:
		t.Fatal("expected connection to be closed")
	}
	require.True(t, a.enqueue([]byte("x")))
	require.Empty(t, drain(a))
}

func TestConnBinding(t *testing.T) {
	hub := NewHub(nil)
	c := newConn("id-1", hub, nil, 1, ConnInfo{UserID: 4})

	require.Equal(t, "id-1", c.ID())
	require.Equal(t, 4, c.PinnedUserID())
	require.Zero(t, c.UserID())

	c.BindUser(4)
	require.Equal(t, 4, c.Info().UserID)
	require.Equal(t, "id-1", c.Info().ConnID)
}
