package handler

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetMessages serves GET /messages?room=<room>&limit=<n>, oldest first.
func (h *Handler) GetMessages(c *gin.Context) {
	room := c.Query("room")
	if room == "" {
		room = h.DefaultRoom
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	msgs, err := h.History.Backfill(c.Request.Context(), room, limit)
	if err != nil {
		log.Printf("ERROR: Failed to load history for room %s: %v", room, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// ListRooms serves GET /rooms, most recently active first.
func (h *Handler) ListRooms(c *gin.Context) {
	rooms, err := h.Storage.ListRooms(c.Request.Context())
	if err != nil {
		log.Printf("ERROR: Failed to list rooms: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rooms"})
		return
	}
	c.JSON(http.StatusOK, rooms)
}
