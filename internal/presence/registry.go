package presence

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"chat-gateway/internal/observability"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

const shardCount = 64

// StatusChange is an online/offline transition of one user.
type StatusChange struct {
	UserID int
	Status string
}

// StatusNotifier receives every transition, in mutation order per user.
type StatusNotifier func(ctx context.Context, change StatusChange)

// Registry tracks which users have at least one live connection.
type Registry struct {
	store  Store
	notify StatusNotifier
	logger *zap.Logger
	shards [shardCount]sync.Mutex
}

// NewRegistry constructs a Registry over store. notify may be nil.
func NewRegistry(store Store, notify StatusNotifier, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{store: store, notify: notify, logger: logger}
}

func (r *Registry) lockFor(userID int) *sync.Mutex {
	return &r.shards[uint(userID)%shardCount]
}

// Register adds connID to the user and announces the user online if it was offline.
func (r *Registry) Register(ctx context.Context, userID int, connID string) error {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	cameOnline, err := r.store.Add(ctx, userID, connID)
	if err != nil {
		return errors.Wrapf(err, "register user %d", userID)
	}
	if cameOnline {
		observability.IncPresenceOnline()
		r.logger.Debug("user online", zap.Int("user_id", userID), zap.String("conn_id", connID))
		r.emit(ctx, userID, StatusOnline)
	}
	return nil
}

// Unregister removes connID and announces the user offline when it was the last one.
// Unknown pairs are ignored.
func (r *Registry) Unregister(ctx context.Context, userID int, connID string) error {
	mu := r.lockFor(userID)
	mu.Lock()
	defer mu.Unlock()

	wentOffline, err := r.store.Remove(ctx, userID, connID)
	if err != nil {
		return errors.Wrapf(err, "unregister user %d", userID)
	}
	if wentOffline {
		observability.DecPresenceOnline()
		r.logger.Debug("user offline", zap.Int("user_id", userID), zap.String("conn_id", connID))
		r.emit(ctx, userID, StatusOffline)
	}
	return nil
}

// IsOnline reports whether the user has a live connection. Store failures read as offline.
func (r *Registry) IsOnline(ctx context.Context, userID int) bool {
	online, err := r.store.IsOnline(ctx, userID)
	if err != nil {
		r.logger.Warn("presence lookup failed", zap.Int("user_id", userID), zap.Error(err))
		return false
	}
	return online
}

// ListOnlineUsers returns a sorted snapshot of online user ids.
func (r *Registry) ListOnlineUsers(ctx context.Context) []int {
	ids, err := r.store.OnlineUsers(ctx)
	if err != nil {
		r.logger.Warn("presence list failed", zap.Error(err))
		return []int{}
	}
	return ids
}

// Connections returns the connection ids currently bound to the user.
func (r *Registry) Connections(ctx context.Context, userID int) []string {
	conns, err := r.store.Connections(ctx, userID)
	if err != nil {
		r.logger.Warn("presence connections failed", zap.Int("user_id", userID), zap.Error(err))
		return []string{}
	}
	return conns
}

func (r *Registry) emit(ctx context.Context, userID int, status string) {
	if r.notify == nil {
		return
	}
	r.notify(ctx, StatusChange{UserID: userID, Status: status})
}
