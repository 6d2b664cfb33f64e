package gateway

// Socket is the gateway's view of one client connection.
type Socket interface {
	ID() string
	UserID() int
	BindUser(userID int)
	// PinnedUserID is the user proven at handshake, or 0 when none was.
	PinnedUserID() int
	Join(room string)
	Leave(room string)
}

// Broadcaster delivers server events to rooms and users.
type Broadcaster interface {
	EmitToRoom(room, event string, payload any)
	EmitToRoomExcept(room, exceptConnID, event string, payload any)
	EmitToUser(userID int, event string, payload any)
	EmitAll(event string, payload any)
}
