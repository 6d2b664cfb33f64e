package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chat-gateway/internal/middleware"
	"chat-gateway/internal/telemetry"
)

// HubStats reports live transport counters.
type HubStats interface {
	ConnCount() int
	RoomSize(room string) int
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, hub HubStats, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), telemetry.LevelInfo, "audit test", requestIDFromContext(c), c.GetInt(middleware.UserIDKey))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/debug/hub", func(c *gin.Context) {
		resp := gin.H{"connections": hub.ConnCount()}
		if room := c.Query("room"); room != "" {
			resp["room"] = room
			resp["room_size"] = hub.RoomSize(room)
		}
		c.JSON(http.StatusOK, resp)
	})
}
