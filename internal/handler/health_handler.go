package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imaad666/W-Chhatt/internal/hub"
	"github.com/imaad666/W-Chhatt/internal/presence"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version string
	tracker *presence.Tracker
	hub     *hub.Hub
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, tracker *presence.Tracker, h *hub.Hub) *HealthHandler {
	return &HealthHandler{
		version: version,
		tracker: tracker,
		hub:     h,
	}
}

// RegisterRoutes registers the health check routes.
func (h *HealthHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.handleHealth)
	r.GET("/healthz", h.handleHealth)
}

// handleHealth returns the service health status and live counters.
func (h *HealthHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"service":     "chat-server",
		"version":     h.version,
		"sessions":    h.tracker.Sessions(),
		"rooms":       h.tracker.RoomCount(),
		"connections": h.hub.Count(),
	})
}
