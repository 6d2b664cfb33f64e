package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// PresenceReader answers online-status queries.
type PresenceReader interface {
	IsOnline(ctx context.Context, userID int) bool
	ListOnlineUsers(ctx context.Context) []int
}

// PresenceHandler exposes the presence registry over HTTP.
type PresenceHandler struct {
	presence PresenceReader
}

// NewPresenceHandler builds a PresenceHandler.
func NewPresenceHandler(presence PresenceReader) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// ListOnline returns every online user id.
func (h *PresenceHandler) ListOnline(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"users": h.presence.ListOnlineUsers(c.Request.Context())})
}

// GetStatus reports whether one user is online.
func (h *PresenceHandler) GetStatus(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("userId"))
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_userId"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "online": h.presence.IsOnline(c.Request.Context(), userID)})
}
