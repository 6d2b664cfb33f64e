package presence

import "context"

// Store keeps the connection set of each user. Add and Remove report whether
// the call changed the user's online state, decided atomically with the mutation.
type Store interface {
	// Add records connID for userID and reports whether the user was offline before.
	Add(ctx context.Context, userID int, connID string) (bool, error)
	// Remove drops connID and reports whether it was the user's last connection.
	Remove(ctx context.Context, userID int, connID string) (bool, error)
	IsOnline(ctx context.Context, userID int) (bool, error)
	// OnlineUsers returns the online user ids in ascending order.
	OnlineUsers(ctx context.Context) ([]int, error)
	Connections(ctx context.Context, userID int) ([]string, error)
}
